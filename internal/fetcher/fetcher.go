// Package fetcher retrieves named files from an install tree.
//
// A tree is reached either by streaming (HTTP, HTTPS, FTP), by mounting it
// read-only (NFS share, block device, loopback image), or, for ISO images
// when enabled, by reading the image in-process. All variants present the
// same contract: Prepare once, Acquire any number of relative paths into
// temp files under the scratch directory, and Cleanup exactly once.
//
// Temp files returned by Acquire and SaveTemp belong to the caller. Cleanup
// only releases what the fetcher itself holds (mounts, open images).
package fetcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// ChunkSize is the copy buffer size used for every transfer.
const ChunkSize = 16 * 1024

// TempPrefix starts the name of every temp file a fetcher creates.
const TempPrefix = "anvil-"

// Fetcher retrieves files relative to an install location.
type Fetcher interface {
	// Location returns the install location as given by the caller.
	Location() string

	// Prepare probes or mounts the location. Failure is a
	// media.KindUnreachable error and the location must not be used.
	Prepare(ctx context.Context, p progress.Reporter) error

	// Acquire copies relPath into a new temp file and returns its path.
	// A missing path is a media.KindNotFound error.
	Acquire(ctx context.Context, relPath string, p progress.Reporter) (string, error)

	// SaveTemp copies r into a new temp file named after prefix.
	SaveTemp(r io.Reader, prefix string) (string, error)

	// Cleanup releases mounts and handles. Safe to call more than once
	// and after a failed Prepare.
	Cleanup() error
}

// Options configures fetcher construction.
type Options struct {
	Timeout   time.Duration      // Connection setup timeout for network transports
	ISOReader bool               // Read *.iso locations in-process instead of loop-mounting
	Mounter   Mounter            // Mount implementation, defaults to ExecMounter{}
	Logger    logrus.FieldLogger // Defaults to a discarding logger
}

// New selects the fetcher variant for location.
//
// http://, https:// and ftp:// stream; everything else (nfs: shares, block
// devices, image files) is mounted, except *.iso files when opts.ISOReader
// is set.
func New(location, scratchDir string, opts Options) (Fetcher, error) {
	if location == "" {
		return nil, fmt.Errorf("install location is required")
	}
	if scratchDir == "" {
		return nil, fmt.Errorf("scratch directory is required")
	}

	b := base{
		location:   location,
		scratchDir: scratchDir,
		log:        logging.OrDiscard(opts.Logger).WithField("location", location),
	}

	switch {
	case hasScheme(location, "http://", "https://", "ftp://"):
		return newURIFetcher(b, opts.Timeout)
	case opts.ISOReader && isISOImage(location):
		return &ISOFetcher{base: b}, nil
	default:
		m := opts.Mounter
		if m == nil {
			m = ExecMounter{}
		}
		return &MountedFetcher{base: b, mounter: m}, nil
	}
}

func hasScheme(location string, schemes ...string) bool {
	lower := strings.ToLower(location)
	for _, s := range schemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

func isISOImage(location string) bool {
	if !strings.HasSuffix(strings.ToLower(location), ".iso") {
		return false
	}
	fi, err := os.Stat(location)
	return err == nil && fi.Mode().IsRegular()
}

// base holds what every variant shares: identity, scratch space, logging
// and temp file creation.
type base struct {
	location   string
	scratchDir string
	log        logrus.FieldLogger
}

func (b *base) Location() string {
	return b.location
}

// SaveTemp copies r into scratchDir/anvil-<prefix>.<random>. The file is
// removed if the copy fails.
func (b *base) SaveTemp(r io.Reader, prefix string) (string, error) {
	return b.saveTemp(context.Background(), r, prefix, "", 0, nil)
}

// saveTemp is SaveTemp with progress reporting. When text is empty no
// Start/End is reported.
func (b *base) saveTemp(ctx context.Context, r io.Reader, prefix, text string, size int64, p progress.Reporter) (string, error) {
	f, err := os.CreateTemp(b.scratchDir, TempPrefix+prefix+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()

	_, copyErr := copyChunks(ctx, f, r, text, size, p)
	closeErr := f.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if copyErr != nil {
		_ = os.Remove(name)
		return "", copyErr
	}

	b.log.WithField("path", name).Debug("Saved temp file")
	return name, nil
}

// copyChunks copies src to dst in ChunkSize pieces, reporting the running
// byte count after each chunk. Read failures are media.KindUnreachable.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, text string, size int64, p progress.Reporter) (int64, error) {
	if size < 0 {
		size = 0
	}
	if text != "" {
		if err := progress.Start(p, text, size); err != nil {
			return 0, err
		}
	}

	buf := make([]byte, ChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write temp file: %w", err)
			}
			written += int64(n)
			if text != "" {
				if err := progress.Update(p, written); err != nil {
					return written, err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, media.Unreachable("read", "", readErr)
		}
	}

	if text != "" {
		if err := progress.End(p, written); err != nil {
			return written, err
		}
	}
	return written, nil
}

// retrievingText is the progress label for a transfer of relPath.
func retrievingText(relPath string) string {
	return fmt.Sprintf("Retrieving %s...", path.Base(relPath))
}

// cleanRel normalizes a tree-relative path, dropping leading slashes.
func cleanRel(relPath string) string {
	return strings.TrimPrefix(path.Clean("/"+relPath), "/")
}
