// Package media defines the artifacts produced by an acquisition and the
// error taxonomy shared by fetchers, distribution stores and the initrd
// synthesis pipeline.
//
// Ownership of every path in Kernel and BootDisk transfers to the caller,
// who is responsible for deleting the files once the guest has booted.
package media

import (
	"errors"
	"fmt"
	"os"
)

// Kernel is a kernel+initrd pair plus the argument that tells the installer
// where its install tree lives (e.g. "method=http://..." or "install=...").
type Kernel struct {
	KernelPath string `json:"kernel" yaml:"kernel"`
	InitrdPath string `json:"initrd" yaml:"initrd"`
	BootArg    string `json:"bootArg" yaml:"bootArg"`
}

// Remove deletes both files. Missing files are not an error.
func (k *Kernel) Remove() error {
	if k == nil {
		return nil
	}
	return removeAll(k.KernelPath, k.InitrdPath)
}

// BootDisk is a bootable installer ISO.
type BootDisk struct {
	ISOPath string `json:"iso" yaml:"iso"`
}

// Remove deletes the ISO. A missing file is not an error.
func (b *BootDisk) Remove() error {
	if b == nil {
		return nil
	}
	return removeAll(b.ISOPath)
}

func removeAll(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
