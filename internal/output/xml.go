package output

import (
	"fmt"

	"github.com/jbweber/anvil/internal/libvirt"
)

// XMLFormatter renders results as libvirt domain XML fragments: an <os>
// element for kernels and a cdrom <disk> for boot disks.
type XMLFormatter struct {
	// Arch is the guest architecture, defaults to x86_64.
	Arch string
}

// Format returns the fragment for whichever artifact r holds.
func (f *XMLFormatter) Format(r *Result) (string, error) {
	switch {
	case r.Kernel != nil:
		return libvirt.MarshalFragment("os", libvirt.InstallOS(r.Kernel, f.Arch))
	case r.BootDisk != nil:
		disk := libvirt.InstallCDROM(r.BootDisk)
		return libvirt.MarshalFragment("disk", &disk)
	default:
		return "", fmt.Errorf("xml output needs a kernel or boot disk, detection results have neither")
	}
}
