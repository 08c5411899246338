// Package distro recognizes Linux distribution install trees and knows
// where each one keeps its installer kernel, initrd and boot ISO.
//
// Detection is a first-match scan over a fixed order of stores. Each store
// probes the tree for a marker file through a fetcher. A probe that fails
// for any media reason means "not this distribution"; only progress aborts,
// context cancellation and local failures (scratch dir unwritable) escape.
package distro

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// Store is one distribution's layout strategy.
type Store interface {
	// Name is the lowercase distribution name, also used as the hint value.
	Name() string

	// IsValid reports whether the tree behind f belongs to this distribution.
	IsValid(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (bool, error)

	// AcquireKernel fetches or builds the installer kernel and initrd.
	AcquireKernel(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.Kernel, error)

	// AcquireBootDisk fetches the installer boot ISO.
	AcquireBootDisk(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.BootDisk, error)
}

// KernelBuilder produces a kernel and initrd for trees that ship none.
type KernelBuilder interface {
	BuildKernel(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.Kernel, error)
}

// Params are shared by every store.
type Params struct {
	Variant   string             // Install variant hint such as "xen", empty for the default
	VerifyISO bool               // Check boot disks are ISO9660 images
	Builder   KernelBuilder      // Used by stores that synthesize their initrd
	Logger    logrus.FieldLogger // Defaults to a discarding logger
}

// Names lists every known distribution in detection order.
var Names = []string{"fedora", "suse", "debian", "ubuntu", "gentoo", "mandriva"}

// All returns one store per known distribution, in detection order.
func All(params Params) []Store {
	log := logging.OrDiscard(params.Logger)
	b := storeBase{params: params}

	stores := make([]Store, 0, len(Names))
	for _, name := range Names {
		b.name = name
		b.log = log.WithField("store", name)
		stores = append(stores, newStore(b))
	}
	return stores
}

func newStore(b storeBase) Store {
	switch b.name {
	case "fedora":
		return &Fedora{storeBase: b}
	case "suse":
		return &SUSE{storeBase: b}
	case "debian":
		return &Debian{storeBase: b}
	case "ubuntu":
		return &Ubuntu{storeBase: b}
	case "gentoo":
		return &Gentoo{storeBase: b}
	case "mandriva":
		return &Mandriva{storeBase: b}
	}
	return nil
}

// Candidates returns the stores to scan. An empty hint means all of them; a
// hint restricts the scan to exactly that store.
func Candidates(hint string, params Params) ([]Store, error) {
	all := All(params)
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return all, nil
	}
	for _, s := range all {
		if s.Name() == hint {
			return []Store{s}, nil
		}
	}
	return nil, &media.Error{
		Kind: media.KindDetection,
		Op:   "detect",
		Err:  fmt.Errorf("unknown distribution %q, expected one of %s", hint, strings.Join(Names, ", ")),
	}
}

// Detect returns the first store in stores that recognizes the tree.
func Detect(ctx context.Context, f fetcher.Fetcher, stores []Store, p progress.Reporter) (Store, error) {
	for _, s := range stores {
		ok, err := s.IsValid(ctx, f, p)
		if err != nil {
			return nil, fmt.Errorf("failed to probe for %s: %w", s.Name(), err)
		}
		if ok {
			return s, nil
		}
	}
	return nil, &media.Error{
		Kind: media.KindDetection,
		Op:   "detect",
		Path: f.Location(),
		Err:  fmt.Errorf("no installable distribution found at %s", f.Location()),
	}
}

// storeBase carries what every store needs.
type storeBase struct {
	name   string
	params Params
	log    logrus.FieldLogger
}

func (b *storeBase) Name() string {
	return b.name
}

// variant returns the install variant hint.
func (b *storeBase) variant() string {
	return b.params.Variant
}

func (b *storeBase) unsupportedKernel() (*media.Kernel, error) {
	return nil, media.Unsupported(b.name, "acquire kernel")
}

func (b *storeBase) unsupportedBootDisk() (*media.BootDisk, error) {
	return nil, media.Unsupported(b.name, "acquire boot disk")
}

// probe fetches relPath and hands the temp file to inspect. The temp file is
// always removed afterwards. A nil inspect means presence alone matches.
func (b *storeBase) probe(ctx context.Context, f fetcher.Fetcher, relPath string, p progress.Reporter, inspect func(path string) (bool, error)) (bool, error) {
	log := b.log.WithField("path", relPath)

	tmp, err := f.Acquire(ctx, relPath, p)
	if err != nil {
		if progress.IsAborted(err) || ctx.Err() != nil {
			return false, err
		}
		var me *media.Error
		if errors.As(err, &me) {
			log.WithError(err).Debugf("Doesn't look like a %s tree", b.name)
			return false, nil
		}
		return false, err
	}
	if tmp == "" {
		log.Debugf("Probe path is a directory, doesn't look like a %s tree", b.name)
		return false, nil
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Failed to remove probe file")
		}
	}()

	if inspect == nil {
		log.Debugf("Detected a %s tree", b.name)
		return true, nil
	}
	ok, err := inspect(tmp)
	if err != nil {
		log.WithError(err).Debugf("Failed to inspect probe file, doesn't look like a %s tree", b.name)
		return false, nil
	}
	if ok {
		log.Debugf("Detected a %s tree", b.name)
	}
	return ok, nil
}

// acquireBootDisk fetches relPath and optionally verifies it is an ISO
// image, deleting it if not.
func (b *storeBase) acquireBootDisk(ctx context.Context, f fetcher.Fetcher, relPath string, p progress.Reporter) (*media.BootDisk, error) {
	iso, err := f.Acquire(ctx, relPath, p)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire boot disk: %w", err)
	}
	if iso == "" {
		return nil, media.NotFound("acquire boot disk", relPath, errors.New("path is a directory"))
	}

	if b.params.VerifyISO {
		if err := fetcher.VerifyISO(iso); err != nil {
			_ = os.Remove(iso)
			return nil, &media.Error{Kind: media.KindInvalidMedia, Op: "verify boot disk", Path: relPath, Err: err}
		}
	}

	b.log.WithField("path", iso).Info("Acquired boot disk")
	return &media.BootDisk{ISOPath: iso}, nil
}

// firstLine returns the first line of the file at path, without the newline.
func firstLine(path string) (string, error) {
	var line string
	err := scanLines(path, func(l string) bool {
		line = l
		return false
	})
	return line, err
}

// scanLines calls fn for each line of the file at path, without the
// trailing newline, until fn returns false. Lines may be of any length.
func scanLines(path string, fn func(line string) bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	r := bufio.NewReader(file)
	for {
		line, err := r.ReadString('\n')
		if line != "" && !fn(strings.TrimRight(line, "\r\n")) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
