package synth

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Gunzip decompresses the gzip file src into dst.
func Gunzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(src), err)
	}
	defer func() {
		_ = in.Close()
	}()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read gzip header of %s: %w", filepath.Base(src), err)
	}
	defer func() {
		_ = zr.Close()
	}()

	return writeFile(dst, zr)
}

// GzipBest compresses src into dst at maximum compression, recording the
// original name and modification time in the header.
func GzipBest(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(src), err)
	}
	defer func() {
		_ = in.Close()
	}()

	fi, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(src), err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(dst), err)
	}

	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	zw.Name = filepath.Base(src)
	zw.ModTime = fi.ModTime()

	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return fmt.Errorf("failed to compress %s: %w", filepath.Base(src), err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finish %s: %w", filepath.Base(dst), err)
	}
	return out.Close()
}

func writeFile(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(dst), err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(dst), err)
	}
	return out.Close()
}
