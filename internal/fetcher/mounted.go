package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// Mounter mounts and unmounts install trees.
type Mounter interface {
	Mount(ctx context.Context, source, target string, options []string) error
	Unmount(ctx context.Context, target string) error
}

// ExecMounter runs mount(8) and umount(8).
type ExecMounter struct {
	MountCommand  string // Defaults to "mount"
	UmountCommand string // Defaults to "umount"
}

// Mount runs `mount -o <options> <source> <target>`.
func (m ExecMounter) Mount(ctx context.Context, source, target string, options []string) error {
	cmd := m.MountCommand
	if cmd == "" {
		cmd = "mount"
	}
	args := []string{}
	if len(options) > 0 {
		args = append(args, "-o", strings.Join(options, ","))
	}
	args = append(args, source, target)
	return run(ctx, cmd, args...)
}

// Unmount runs `umount <target>`.
func (m ExecMounter) Unmount(ctx context.Context, target string) error {
	cmd := m.UmountCommand
	if cmd == "" {
		cmd = "umount"
	}
	return run(ctx, cmd, target)
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return nil
}

// MountedFetcher reads files from an install tree mounted read-only into a
// private directory under the scratch dir.
type MountedFetcher struct {
	base
	mounter  Mounter
	mountDir string
	mounted  bool
}

// MountDir returns the private mount point, empty before Prepare.
func (f *MountedFetcher) MountDir() string {
	return f.mountDir
}

// mountSpec returns the mount source and options for the location:
// nfs:<share> mounts the share, block devices mount directly and anything
// else is loop-mounted.
func (f *MountedFetcher) mountSpec() (string, []string, error) {
	if share, ok := strings.CutPrefix(f.location, "nfs:"); ok {
		return share, []string{"ro"}, nil
	}

	var st unix.Stat_t
	if err := unix.Stat(f.location, &st); err != nil {
		return "", nil, fmt.Errorf("failed to stat %s: %w", f.location, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		return f.location, []string{"ro"}, nil
	}
	return f.location, []string{"ro", "loop"}, nil
}

// Prepare creates the mount point and mounts the location read-only.
// A failed mount removes the mount point again.
func (f *MountedFetcher) Prepare(ctx context.Context, p progress.Reporter) error {
	source, opts, err := f.mountSpec()
	if err != nil {
		return media.Unreachable("prepare", f.location, err)
	}

	dir, err := os.MkdirTemp(f.scratchDir, "anvilmnt.")
	if err != nil {
		return media.Unreachable("prepare", f.location, fmt.Errorf("failed to create mount point: %w", err))
	}
	f.mountDir = dir
	f.log.WithField("mount_dir", dir).Debug("Preparing mount")

	if err := progress.Start(p, verifyingText, 0); err != nil {
		_ = f.Cleanup()
		return err
	}

	if err := f.mounter.Mount(ctx, source, dir, opts); err != nil {
		_ = f.Cleanup()
		return media.Unreachable("prepare", f.location, err)
	}
	f.mounted = true

	if err := progress.End(p, 0); err != nil {
		return err
	}
	return nil
}

// Acquire copies mountDir/relPath into a temp file. Directories are skipped:
// the result is ("", nil).
func (f *MountedFetcher) Acquire(ctx context.Context, relPath string, p progress.Reporter) (string, error) {
	if f.mountDir == "" {
		return "", fmt.Errorf("location %s is not mounted", f.location)
	}

	rel := cleanRel(relPath)
	src := filepath.Join(f.mountDir, filepath.FromSlash(rel))
	log := f.log.WithField("path", rel)
	log.Debug("Acquiring file from mount")

	fi, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", media.NotFound("acquire", rel, err)
		}
		return "", media.Unreachable("acquire", rel, err)
	}
	if fi.IsDir() {
		log.Debug("Path is a directory, skipping")
		return "", nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", media.Unreachable("acquire", rel, err)
	}
	defer func() {
		_ = in.Close()
	}()

	return f.saveTemp(ctx, in, path.Base(rel), retrievingText(rel), fi.Size(), p)
}

// Cleanup unmounts the location, then removes the mount point.
func (f *MountedFetcher) Cleanup() error {
	if f.mountDir == "" {
		return nil
	}
	f.log.WithField("mount_dir", f.mountDir).Debug("Cleaning up mount")

	var errs []error
	if f.mounted {
		if err := f.mounter.Unmount(context.Background(), f.mountDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmount %s: %w", f.mountDir, err))
		} else {
			f.mounted = false
		}
	}
	if !f.mounted {
		if err := os.Remove(f.mountDir); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove mount point: %w", err))
		} else {
			f.mountDir = ""
		}
	}
	return errors.Join(errs...)
}
