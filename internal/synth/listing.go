package synth

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/sys/unix"
)

// Packages names the two packages the initrd is built from, as paths
// relative to the install tree.
type Packages struct {
	Arch          string
	Kernel        string
	InstallInitrd string
}

// Arches returns the architecture directories to search, in order, and the
// kernel package name for machine. i686 hosts also accept i586 and i386
// packages and need the PAE kernel.
func Arches(machine string) ([]string, string) {
	if machine == "i686" {
		return []string{"i686", "i586", "i386"}, "kernel-xenpae"
	}
	return []string{machine}, "kernel-xen"
}

// Machine returns the running kernel's machine name, e.g. "x86_64".
func Machine() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("failed to read machine name: %w", err)
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}

// FindPackages scans an `ls -lR` listing for the kernel and install-initrd
// packages. Sections look like "./suse/<arch>:" and end at a blank line.
// Package names must be followed by a version ("kernel-xen-2.6.16-8.rpm"),
// which keeps kernel-xen-devel and friends out. The first architecture in
// arches whose section holds both packages wins; within a section a later
// entry replaces an earlier one.
func FindPackages(r io.Reader, arches []string, kernelName string) (*Packages, error) {
	kernelGlob, err := glob.Compile(kernelName + "-[0-9]*.rpm")
	if err != nil {
		return nil, fmt.Errorf("invalid kernel package name %q: %w", kernelName, err)
	}
	initrdGlob := glob.MustCompile("install-initrd-[0-9]*.rpm")

	headers := make(map[string]string, len(arches))
	for _, arch := range arches {
		headers["./suse/"+arch+":"] = arch
	}

	found := make(map[string]*Packages, len(arches))
	var current *Packages

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if current == nil {
			if arch, ok := headers[line]; ok {
				current = &Packages{Arch: arch}
				found[arch] = current
			}
			continue
		}

		if line == "" {
			current = nil
			continue
		}
		if strings.HasPrefix(line, "total") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		name := fields[8]
		dir := path.Join("suse", current.Arch)

		switch {
		case initrdGlob.Match(name):
			current.InstallInitrd = path.Join(dir, name)
		case kernelGlob.Match(name):
			current.Kernel = path.Join(dir, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read package listing: %w", err)
	}

	for _, arch := range arches {
		p, ok := found[arch]
		if ok && p.Kernel != "" && p.InstallInitrd != "" {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no %s and install-initrd packages found for %s", kernelName, strings.Join(arches, ", "))
}
