// Package pool publishes acquired installation media into a libvirt storage
// pool so that remote or unprivileged guests can boot from it.
//
// Each artifact becomes one raw volume sized to the file. Publishing is all
// or nothing: if any create or upload fails, every volume created by that
// call is deleted again before the error is returned.
package pool

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/naming"
)

// LibvirtClient is the subset of *libvirt.Libvirt the publisher uses.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// Publisher uploads artifacts into one storage pool.
type Publisher struct {
	client LibvirtClient
	pool   string
	log    logrus.FieldLogger
}

// NewPublisher returns a Publisher for the named pool.
func NewPublisher(client LibvirtClient, poolName string, log logrus.FieldLogger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("libvirt client is required")
	}
	if poolName == "" {
		return nil, fmt.Errorf("pool name is required")
	}
	return &Publisher{
		client: client,
		pool:   poolName,
		log:    logging.OrDiscard(log).WithField("pool", poolName),
	}, nil
}

// artifact is one local file and the volume it becomes.
type artifact struct {
	path   string
	volume string
}

// PublishKernel uploads the kernel and initrd under the prefix's kernel and
// initrd volume names. The returned Kernel points at the volume paths and
// keeps the boot argument. Local files are left in place.
func (p *Publisher) PublishKernel(ctx context.Context, k *media.Kernel, prefix string) (*media.Kernel, error) {
	paths, err := p.publish(ctx, []artifact{
		{path: k.KernelPath, volume: naming.VolumeNameKernel(prefix)},
		{path: k.InitrdPath, volume: naming.VolumeNameInitrd(prefix)},
	})
	if err != nil {
		return nil, err
	}
	return &media.Kernel{
		KernelPath: paths[0],
		InitrdPath: paths[1],
		BootArg:    k.BootArg,
	}, nil
}

// PublishBootDisk uploads the ISO as the prefix's ISO volume.
func (p *Publisher) PublishBootDisk(ctx context.Context, d *media.BootDisk, prefix string) (*media.BootDisk, error) {
	paths, err := p.publish(ctx, []artifact{
		{path: d.ISOPath, volume: naming.VolumeNameISO(prefix)},
	})
	if err != nil {
		return nil, err
	}
	return &media.BootDisk{ISOPath: paths[0]}, nil
}

// publish creates and fills one volume per artifact and returns their paths
// in order. On failure all volumes created here are deleted.
func (p *Publisher) publish(ctx context.Context, artifacts []artifact) ([]string, error) {
	pool, err := p.client.StoragePoolLookupByName(p.pool)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	var created []libvirt.StorageVol
	rollback := func() {
		for _, vol := range created {
			if err := p.client.StorageVolDelete(vol, 0); err != nil {
				p.log.WithError(err).WithField("volume", vol.Name).Warn("Failed to delete partially published volume")
			}
		}
	}

	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, err
		}

		vol, path, err := p.publishOne(pool, a, &created)
		if err != nil {
			rollback()
			return nil, err
		}
		p.log.WithFields(logrus.Fields{"volume": vol.Name, "path": path}).Info("Published volume")
		paths = append(paths, path)
	}
	return paths, nil
}

// publishOne creates the volume for a, appending it to created as soon as
// it exists, then uploads the file into it.
func (p *Publisher) publishOne(pool libvirt.StoragePool, a artifact, created *[]libvirt.StorageVol) (libvirt.StorageVol, string, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("failed to open %s: %w", a.path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("failed to stat %s: %w", a.path, err)
	}
	size := uint64(fi.Size())

	if _, err := p.client.StorageVolLookupByName(pool, a.volume); err == nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("volume %s already exists in pool %s", a.volume, p.pool)
	}

	volumeXML, err := generateVolumeXML(a.volume, size)
	if err != nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := p.client.StorageVolCreateXML(pool, volumeXML, 0)
	if err != nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("failed to create volume %s: %w", a.volume, err)
	}
	*created = append(*created, vol)

	if err := p.client.StorageVolUpload(vol, f, 0, size, 0); err != nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("failed to upload %s to volume %s: %w", a.path, a.volume, err)
	}

	path, err := p.client.StorageVolGetPath(vol)
	if err != nil {
		return libvirt.StorageVol{}, "", fmt.Errorf("failed to get volume path: %w", err)
	}
	return vol, path, nil
}

// generateVolumeXML describes a raw file volume readable by qemu.
func generateVolumeXML(name string, size uint64) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: size,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: "raw",
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: "107", // qemu user
				Group: "107", // qemu group
				Mode:  "0644",
			},
		},
	}

	doc, err := vol.Marshal()
	if err != nil {
		return "", err
	}

	doc = strings.TrimPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`)
	return strings.TrimSpace(doc), nil
}
