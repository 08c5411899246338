package fetcher

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/kdomanski/iso9660"

	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// ISOFetcher reads files straight out of an ISO9660 image, without mounting
// it. Name lookups ignore case.
type ISOFetcher struct {
	base
	file *os.File
	root *iso9660.File
}

// Prepare opens the image and reads its root directory.
func (f *ISOFetcher) Prepare(ctx context.Context, p progress.Reporter) error {
	if err := progress.Start(p, verifyingText, 0); err != nil {
		return err
	}

	file, err := os.Open(f.location)
	if err != nil {
		return media.Unreachable("prepare", f.location, err)
	}

	img, err := iso9660.OpenImage(file)
	if err != nil {
		_ = file.Close()
		return media.Unreachable("prepare", f.location, fmt.Errorf("failed to open ISO image: %w", err))
	}

	root, err := img.RootDir()
	if err != nil {
		_ = file.Close()
		return media.Unreachable("prepare", f.location, fmt.Errorf("failed to read root directory: %w", err))
	}

	f.file = file
	f.root = root
	f.log.Debug("Opened ISO image")

	return progress.End(p, 0)
}

// Acquire copies the image file at relPath into a temp file. Directories are
// skipped the same way MountedFetcher skips them.
func (f *ISOFetcher) Acquire(ctx context.Context, relPath string, p progress.Reporter) (string, error) {
	if f.root == nil {
		return "", fmt.Errorf("image %s is not open", f.location)
	}

	rel := cleanRel(relPath)
	entry, err := lookup(f.root, rel)
	if err != nil {
		return "", err
	}
	if entry.IsDir() {
		f.log.WithField("path", rel).Debug("Path is a directory, skipping")
		return "", nil
	}

	return f.saveTemp(ctx, entry.Reader(), path.Base(rel), retrievingText(rel), entry.Size(), p)
}

// Cleanup closes the image.
func (f *ISOFetcher) Cleanup() error {
	f.root = nil
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	if err != nil {
		return fmt.Errorf("failed to close image: %w", err)
	}
	return nil
}

// lookup walks rel from dir one component at a time.
func lookup(dir *iso9660.File, rel string) (*iso9660.File, error) {
	if rel == "" {
		return dir, nil
	}

	current := dir
	for _, part := range strings.Split(rel, "/") {
		if !current.IsDir() {
			return nil, media.NotFound("acquire", rel, fmt.Errorf("%s is not a directory", current.Name()))
		}
		children, err := current.GetChildren()
		if err != nil {
			return nil, media.Unreachable("acquire", rel, fmt.Errorf("failed to list directory: %w", err))
		}

		var next *iso9660.File
		for _, child := range children {
			if strings.EqualFold(child.Name(), part) {
				next = child
				break
			}
		}
		if next == nil {
			return nil, media.NotFound("acquire", rel, nil)
		}
		current = next
	}
	return current, nil
}

// VerifyISO reports whether the file at p is a readable ISO9660 image.
func VerifyISO(p string) error {
	file, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	img, err := iso9660.OpenImage(file)
	if err != nil {
		return fmt.Errorf("failed to open ISO image: %w", err)
	}
	if _, err := img.RootDir(); err != nil {
		return fmt.Errorf("failed to read root directory: %w", err)
	}
	return nil
}
