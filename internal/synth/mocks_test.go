package synth

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

const testVersion = "2.6.16.21-0.8-xen"

// kernelPayload is what the fake toolchain unpacks from a kernel package.
func kernelPayload() map[string]string {
	return map[string]string{
		"boot/System.map-" + testVersion: "symbols",
		"boot/vmlinuz-" + testVersion:    "KERNEL-IMAGE",
		"lib/modules/" + testVersion + "/kernel/drivers/xen/blkfront/xenblk.ko": "xenblk",
		"lib/modules/" + testVersion + "/kernel/drivers/xen/netfront/xennet.ko": "xennet-kernel",
		"lib/modules/" + testVersion + "/extra/xennet.ko":                       "xennet-extra",
	}
}

// initrdPayload is what the fake toolchain unpacks from an install-initrd
// package.
func initrdPayload(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{
		"usr/lib/install-initrd/xen/module.list":   "xenblk.ko\nxennet\n\nmissing.ko\n",
		"usr/lib/install-initrd/xen/module.config": "xennet\n",
		"usr/lib/install-initrd/initrd-base.gz":    gzipString(t, "BASE-ARCHIVE"),
	}
}

func gzipString(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.String()
}

func gunzipFile(t *testing.T, p string) string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func writeTree(dir string, files map[string]string) error {
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			return err
		}
	}
	return nil
}

// fakeTools stands in for rpm2cpio, cpio and depmod.
type fakeTools struct {
	kernel  map[string]string
	initrd  map[string]string
	failOn  string // "extract", "depmod" or "append"
	calls   []string
	depmod  []string
	listing []string
}

func (ft *fakeTools) Extract(_ context.Context, pkg, dir string) error {
	ft.calls = append(ft.calls, "extract "+filepath.Base(dir))
	if ft.failOn == "extract" {
		return errFake
	}
	if strings.Contains(filepath.Base(pkg), "install-initrd") {
		return writeTree(dir, ft.initrd)
	}
	return writeTree(dir, ft.kernel)
}

func (ft *fakeTools) Depmod(_ context.Context, root, systemMap, version string) error {
	ft.calls = append(ft.calls, "depmod")
	ft.depmod = []string{root, systemMap, version}
	if ft.failOn == "depmod" {
		return errFake
	}
	return writeTree(root, map[string]string{"lib/modules/" + version + "/modules.dep": "deps"})
}

func (ft *fakeTools) AppendArchive(_ context.Context, archive, dir string, files []string) error {
	ft.calls = append(ft.calls, "append")
	ft.listing = files
	if ft.failOn == "append" {
		return errFake
	}
	f, err := os.OpenFile(archive, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("\n" + strings.Join(files, "\n"))
	return err
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFake = fakeError("tool failed")

// fakeFetcher serves files from memory into real temp files.
type fakeFetcher struct {
	location  string
	scratch   string
	files     map[string]string
	requested []string
	saveErr   map[string]error
}

var _ fetcher.Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Location() string { return f.location }

func (f *fakeFetcher) Prepare(context.Context, progress.Reporter) error { return nil }

func (f *fakeFetcher) Acquire(_ context.Context, relPath string, _ progress.Reporter) (string, error) {
	f.requested = append(f.requested, relPath)
	body, ok := f.files[relPath]
	if !ok {
		return "", media.NotFound("acquire", relPath, nil)
	}
	return f.SaveTemp(strings.NewReader(body), path.Base(relPath))
}

func (f *fakeFetcher) SaveTemp(r io.Reader, prefix string) (string, error) {
	if err := f.saveErr[prefix]; err != nil {
		return "", err
	}
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

func (f *fakeFetcher) Cleanup() error { return nil }

func scratchEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
