package install

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// stubFetcher serves files from memory and counts lifecycle calls.
type stubFetcher struct {
	location   string
	scratch    string
	files      map[string]string
	prepareErr error
	cleanupErr error

	prepares  int
	cleanups  int
	requested []string
}

var _ fetcher.Fetcher = (*stubFetcher)(nil)

func (f *stubFetcher) Location() string { return f.location }

func (f *stubFetcher) Prepare(context.Context, progress.Reporter) error {
	f.prepares++
	return f.prepareErr
}

func (f *stubFetcher) Acquire(_ context.Context, relPath string, _ progress.Reporter) (string, error) {
	f.requested = append(f.requested, relPath)
	body, ok := f.files[relPath]
	if !ok {
		return "", media.NotFound("acquire", relPath, nil)
	}
	return f.SaveTemp(strings.NewReader(body), path.Base(relPath))
}

func (f *stubFetcher) SaveTemp(r io.Reader, prefix string) (string, error) {
	tmp, err := os.CreateTemp(f.scratch, fetcher.TempPrefix+prefix+".*")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

func (f *stubFetcher) Cleanup() error {
	f.cleanups++
	return f.cleanupErr
}

// stubFactory always returns f, recording the arguments it was called with.
type stubFactory struct {
	f          fetcher.Fetcher
	err        error
	location   string
	scratchDir string
}

func (s *stubFactory) New(location, scratchDir string, _ fetcher.Options) (fetcher.Fetcher, error) {
	s.location = location
	s.scratchDir = scratchDir
	if s.err != nil {
		return nil, s.err
	}
	return s.f, nil
}

// eventLog interleaves mount activity with progress reports so tests can
// check their relative order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) index(e string) int {
	for i, got := range l.events {
		if got == e {
			return i
		}
	}
	return -1
}

func (l *eventLog) Start(text string, _ int64) error {
	l.add("start " + text)
	return nil
}

func (l *eventLog) Update(int64) error { return nil }

func (l *eventLog) End(int64) error { return nil }

// logMounter copies files into the mount point and records both calls.
type logMounter struct {
	log   *eventLog
	files map[string]string
}

func (m *logMounter) Mount(_ context.Context, _, target string, _ []string) error {
	m.log.add("mount")
	for rel, body := range m.files {
		p := filepath.Join(target, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (m *logMounter) Unmount(_ context.Context, target string) error {
	m.log.add("umount")
	entries, err := os.ReadDir(target)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(target, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

var errStub = errors.New("stub failure")

func newStubFetcher(t *testing.T, files map[string]string) *stubFetcher {
	t.Helper()
	return &stubFetcher{
		location: "http://mirror.example/fedora/",
		scratch:  t.TempDir(),
		files:    files,
	}
}
