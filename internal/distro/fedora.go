package distro

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// Fedora covers Fedora and RHEL trees. Both ship a pxeboot kernel and
// initrd, plus per-variant pairs under images/<variant>/.
type Fedora struct {
	storeBase
}

// No marker is consistent across releases; the GPG key file is the best
// available hint.
var fedoraMarkers = []string{"RPM-GPG-KEY", "RPM-GPG-KEY-redhat-release"}

func (s *Fedora) IsValid(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (bool, error) {
	for _, marker := range fedoraMarkers {
		ok, err := s.probe(ctx, f, marker, p, nil)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// imagesDir is images/pxeboot, or images/<variant> when a variant is set.
func (s *Fedora) imagesDir() string {
	if v := s.variant(); v != "" {
		return path.Join("images", v)
	}
	return "images/pxeboot"
}

// AcquireKernel fetches vmlinuz and initrd.img. If the initrd cannot be
// fetched the kernel temp file is removed before returning.
func (s *Fedora) AcquireKernel(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.Kernel, error) {
	dir := s.imagesDir()

	kernel, err := acquireFile(ctx, f, path.Join(dir, "vmlinuz"), p)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire kernel: %w", err)
	}

	initrd, err := acquireFile(ctx, f, path.Join(dir, "initrd.img"), p)
	if err != nil {
		if rmErr := os.Remove(kernel); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.WithError(rmErr).Warn("Failed to remove kernel temp file")
		}
		return nil, fmt.Errorf("failed to acquire initrd: %w", err)
	}

	s.log.WithField("dir", dir).Info("Acquired kernel and initrd")
	return &media.Kernel{
		KernelPath: kernel,
		InitrdPath: initrd,
		BootArg:    "method=" + f.Location(),
	}, nil
}

func (s *Fedora) AcquireBootDisk(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.BootDisk, error) {
	return s.acquireBootDisk(ctx, f, "images/boot.iso", p)
}

// acquireFile is f.Acquire where a skipped directory counts as missing.
func acquireFile(ctx context.Context, f fetcher.Fetcher, relPath string, p progress.Reporter) (string, error) {
	tmp, err := f.Acquire(ctx, relPath, p)
	if err != nil {
		return "", err
	}
	if tmp == "" {
		return "", media.NotFound("acquire", relPath, errors.New("path is a directory"))
	}
	return tmp, nil
}
