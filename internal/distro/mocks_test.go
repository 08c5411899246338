package distro

import (
	"context"
	"io"
	"os"
	"path"
	"testing"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// fakeFetcher serves files from memory and writes each acquisition to a
// real temp file so callers can inspect and remove it.
type fakeFetcher struct {
	location  string
	scratch   string
	files     map[string]string
	errs      map[string]error
	dirs      map[string]bool // skipped like directories on a mounted tree
	vanished  map[string]bool // report a temp file that no longer exists
	requested []string
	saved     []string
}

func newFakeFetcher(t *testing.T, location string, files map[string]string) *fakeFetcher {
	t.Helper()
	return &fakeFetcher{
		location: location,
		scratch:  t.TempDir(),
		files:    files,
		errs:     map[string]error{},
		dirs:     map[string]bool{},
		vanished: map[string]bool{},
	}
}

var _ fetcher.Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Location() string { return f.location }

func (f *fakeFetcher) Prepare(context.Context, progress.Reporter) error { return nil }

func (f *fakeFetcher) Acquire(ctx context.Context, relPath string, p progress.Reporter) (string, error) {
	f.requested = append(f.requested, relPath)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.errs[relPath]; ok {
		return "", err
	}
	if f.dirs[relPath] {
		return "", nil
	}
	if f.vanished[relPath] {
		return path.Join(f.scratch, "gone."+path.Base(relPath)), nil
	}
	body, ok := f.files[relPath]
	if !ok {
		return "", media.NotFound("acquire", relPath, nil)
	}
	if err := progress.Start(p, "Retrieving "+path.Base(relPath)+"...", int64(len(body))); err != nil {
		return "", err
	}
	tmp, err := f.write(body, path.Base(relPath))
	if err != nil {
		return "", err
	}
	if err := progress.End(p, int64(len(body))); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func (f *fakeFetcher) SaveTemp(r io.Reader, prefix string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return f.write(string(data), prefix)
}

func (f *fakeFetcher) write(body, prefix string) (string, error) {
	tmp, err := os.CreateTemp(f.scratch, fetcher.TempPrefix+prefix+".*")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := tmp.WriteString(body); err != nil {
		return "", err
	}
	f.saved = append(f.saved, tmp.Name())
	return tmp.Name(), nil
}

func (f *fakeFetcher) Cleanup() error { return nil }

// leftovers lists temp files that still exist in the scratch dir.
func (f *fakeFetcher) leftovers(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	if err != nil {
		t.Fatalf("failed to read scratch dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// fakeBuilder returns a fixed kernel or error.
type fakeBuilder struct {
	kernel *media.Kernel
	err    error
	calls  int
}

func (b *fakeBuilder) BuildKernel(context.Context, fetcher.Fetcher, progress.Reporter) (*media.Kernel, error) {
	b.calls++
	return b.kernel, b.err
}
