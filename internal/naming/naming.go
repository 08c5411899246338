// Package naming holds the naming conventions for the libvirt storage
// volumes anvil publishes.
//
// All volumes from one publish call share a prefix, so a kernel and its
// initrd can be found (and cleaned up) together.
package naming

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixBase starts every generated prefix.
const PrefixBase = "anvil"

// NewPrefix returns a fresh prefix of the form anvil-<8 hex digits>.
func NewPrefix() string {
	return PrefixBase + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// VolumeNameKernel returns the volume name for an installer kernel.
// Format: {prefix}-vmlinuz
func VolumeNameKernel(prefix string) string {
	return fmt.Sprintf("%s-vmlinuz", prefix)
}

// VolumeNameInitrd returns the volume name for an installer initrd.
// Format: {prefix}-initrd.img
func VolumeNameInitrd(prefix string) string {
	return fmt.Sprintf("%s-initrd.img", prefix)
}

// VolumeNameISO returns the volume name for a boot ISO.
// Format: {prefix}.iso
func VolumeNameISO(prefix string) string {
	return fmt.Sprintf("%s.iso", prefix)
}
