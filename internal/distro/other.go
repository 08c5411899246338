package distro

import (
	"context"
	"strings"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// Debian trees are recognized by their installer MANIFEST. Only the netboot
// mini ISO is supported, and only without a variant.
type Debian struct {
	storeBase
}

func (s *Debian) IsValid(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (bool, error) {
	if s.variant() != "" {
		return false, nil
	}
	return s.probe(ctx, f, "current/images/MANIFEST", p, func(path string) (bool, error) {
		found := false
		err := scanLines(path, func(line string) bool {
			found = strings.Contains(line, "debian")
			return !found
		})
		return found, err
	})
}

func (s *Debian) AcquireKernel(context.Context, fetcher.Fetcher, progress.Reporter) (*media.Kernel, error) {
	return s.unsupportedKernel()
}

// AcquireBootDisk fetches the netboot mini ISO, e.g. from
// dists/<release>/main/installer-<arch>/.
func (s *Debian) AcquireBootDisk(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.BootDisk, error) {
	return s.acquireBootDisk(ctx, f, "current/images/netboot/mini.iso", p)
}

// Ubuntu has no marker file yet and never matches.
type Ubuntu struct {
	storeBase
}

func (s *Ubuntu) IsValid(context.Context, fetcher.Fetcher, progress.Reporter) (bool, error) {
	return false, nil
}

func (s *Ubuntu) AcquireKernel(context.Context, fetcher.Fetcher, progress.Reporter) (*media.Kernel, error) {
	return s.unsupportedKernel()
}

func (s *Ubuntu) AcquireBootDisk(context.Context, fetcher.Fetcher, progress.Reporter) (*media.BootDisk, error) {
	return s.unsupportedBootDisk()
}

// Gentoo has no marker file yet and never matches.
type Gentoo struct {
	storeBase
}

func (s *Gentoo) IsValid(context.Context, fetcher.Fetcher, progress.Reporter) (bool, error) {
	return false, nil
}

func (s *Gentoo) AcquireKernel(context.Context, fetcher.Fetcher, progress.Reporter) (*media.Kernel, error) {
	return s.unsupportedKernel()
}

func (s *Gentoo) AcquireBootDisk(context.Context, fetcher.Fetcher, progress.Reporter) (*media.BootDisk, error) {
	return s.unsupportedBootDisk()
}

// Mandriva trees and media carry a top-level VERSION file starting with
// "Mandriva".
type Mandriva struct {
	storeBase
}

func (s *Mandriva) IsValid(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (bool, error) {
	if s.variant() != "" {
		return false, nil
	}
	return s.probe(ctx, f, "VERSION", p, func(path string) (bool, error) {
		line, err := firstLine(path)
		return strings.HasPrefix(line, "Mandriva"), err
	})
}

func (s *Mandriva) AcquireKernel(context.Context, fetcher.Fetcher, progress.Reporter) (*media.Kernel, error) {
	return s.unsupportedKernel()
}

func (s *Mandriva) AcquireBootDisk(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.BootDisk, error) {
	return s.acquireBootDisk(ctx, f, "install/images/boot.iso", p)
}
