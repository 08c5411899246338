package fetcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kdomanski/iso9660"
	"github.com/stretchr/testify/require"
)

// fakeMounter "mounts" by writing files into the target directory and
// "unmounts" by emptying it.
type fakeMounter struct {
	files      map[string]string
	mountErr   error
	unmountErr error
	calls      []string
}

func (m *fakeMounter) Mount(_ context.Context, source, target string, options []string) error {
	m.calls = append(m.calls, "mount -o "+strings.Join(options, ",")+" "+source+" "+target)
	if m.mountErr != nil {
		return m.mountErr
	}
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

func (m *fakeMounter) Unmount(_ context.Context, target string) error {
	m.calls = append(m.calls, "umount "+target)
	if m.unmountErr != nil {
		return m.unmountErr
	}
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

// writeISO builds an ISO9660 image holding files and returns its path.
func writeISO(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	w, err := iso9660.NewWriter()
	require.NoError(t, err)
	defer func() {
		_ = w.Cleanup()
	}()

	for name, body := range files {
		require.NoError(t, w.AddFile(bytes.NewReader([]byte(body)), name))
	}

	p := filepath.Join(dir, "install.iso")
	out, err := os.Create(p)
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, w.WriteTo(out, "ANVIL"))
	return p
}
