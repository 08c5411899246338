package libvirt

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/media"
)

const (
	// DefaultArch is the guest architecture used when none is given.
	DefaultArch = "x86_64"

	// InstallCDROMTarget is the device the installer ISO is attached as.
	InstallCDROMTarget = "sda"
)

// InstallOS returns the <os> element that direct-boots an installer kernel
// and initrd with its boot argument on the command line.
func InstallOS(k *media.Kernel, arch string) *libvirtxml.DomainOS {
	if arch == "" {
		arch = DefaultArch
	}
	return &libvirtxml.DomainOS{
		Type: &libvirtxml.DomainOSType{
			Arch: arch,
			Type: "hvm",
		},
		Kernel:  k.KernelPath,
		Initrd:  k.InitrdPath,
		Cmdline: k.BootArg,
	}
}

// InstallCDROM returns a read-only cdrom disk backed by the installer ISO,
// first in boot order.
func InstallCDROM(d *media.BootDisk) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{
				File: d.ISOPath,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: InstallCDROMTarget,
			Bus: "sata",
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 1,
		},
	}
}

// MarshalFragment renders v as an indented XML element called name.
func MarshalFragment(name string, v any) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.EncodeElement(v, xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
		return "", fmt.Errorf("failed to marshal %s XML: %w", name, err)
	}
	if err := enc.Flush(); err != nil {
		return "", fmt.Errorf("failed to marshal %s XML: %w", name, err)
	}
	return buf.String() + "\n", nil
}
