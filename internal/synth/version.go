package synth

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const systemMapPrefix = "System.map-"

// KernelVersion is derived from the kernel package's System.map file name,
// System.map-<release>-<build>-<flavor>.
type KernelVersion struct {
	Release string // e.g. "2.6.16.21"
	Build   string // e.g. "0.8"
	Flavor  string // e.g. "xen"
}

// Version is the literal kernel version, <release>-<build>-<flavor>.
func (v KernelVersion) Version() string {
	return v.Release + "-" + v.Build + "-" + v.Flavor
}

// Override is the module directory the installer searches first,
// <release>-override-<flavor>.
func (v KernelVersion) Override() string {
	return v.Release + "-override-" + v.Flavor
}

// ParseSystemMap derives the kernel version from a System.map file name.
func ParseSystemMap(name string) (KernelVersion, error) {
	rest, ok := strings.CutPrefix(name, systemMapPrefix)
	if !ok {
		return KernelVersion{}, fmt.Errorf("%q is not a System.map file", name)
	}
	parts := strings.Split(rest, "-")
	if len(parts) != 3 {
		return KernelVersion{}, fmt.Errorf("cannot derive kernel version from %q: want System.map-<release>-<build>-<flavor>", name)
	}
	for _, p := range parts {
		if p == "" {
			return KernelVersion{}, fmt.Errorf("cannot derive kernel version from %q: empty component", name)
		}
	}
	return KernelVersion{Release: parts[0], Build: parts[1], Flavor: parts[2]}, nil
}

// FindSystemMap locates the System.map file in bootDir. If several exist
// the lexically first is used.
func FindSystemMap(bootDir string) (string, KernelVersion, error) {
	entries, err := os.ReadDir(bootDir)
	if err != nil {
		return "", KernelVersion{}, fmt.Errorf("failed to read kernel boot directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), systemMapPrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", KernelVersion{}, fmt.Errorf("no System.map file in %s", bootDir)
	}
	sort.Strings(names)

	v, err := ParseSystemMap(names[0])
	if err != nil {
		return "", KernelVersion{}, err
	}
	return names[0], v, nil
}
