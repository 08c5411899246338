package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jlaffaye/ftp"

	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

const verifyingText = "Verifying install location..."

// URIFetcher streams files from an HTTP, HTTPS or FTP install tree.
type URIFetcher struct {
	base
	url     *url.URL
	timeout time.Duration
	client  *retryablehttp.Client
}

func newURIFetcher(b base, timeout time.Duration) (*URIFetcher, error) {
	u, err := url.Parse(b.location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse install location: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("install location %q has no host", b.location)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = logging.NewLeveledLogger(b.log)
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if t, ok := client.HTTPClient.Transport.(*http.Transport); ok && timeout > 0 {
		t.ResponseHeaderTimeout = timeout
		t.TLSHandshakeTimeout = timeout
		t.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
	}

	return &URIFetcher{
		base:    b,
		url:     u,
		timeout: timeout,
		client:  client,
	}, nil
}

func (f *URIFetcher) isFTP() bool {
	return strings.EqualFold(f.url.Scheme, "ftp")
}

// Prepare issues a GET of the base location (HTTP), or logs in and changes
// into the base directory (FTP).
func (f *URIFetcher) Prepare(ctx context.Context, p progress.Reporter) error {
	f.log.Debug("Verifying install location")

	if f.isFTP() {
		conn, err := f.dialFTP(ctx)
		if err != nil {
			return media.Unreachable("prepare", f.location, err)
		}
		defer f.quit(conn)

		if dir := f.url.Path; dir != "" && dir != "/" {
			if err := conn.ChangeDir(dir); err != nil {
				return media.Unreachable("prepare", f.location, err)
			}
		}
		if err := progress.Start(p, verifyingText, 0); err != nil {
			return err
		}
		return progress.End(p, 0)
	}

	resp, err := f.get(ctx, f.location)
	if err != nil {
		return media.Unreachable("prepare", f.location, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return media.Unreachable("prepare", f.location, fmt.Errorf("unexpected status %s", resp.Status))
	}

	_, err = copyChunks(ctx, io.Discard, resp.Body, verifyingText, resp.ContentLength, p)
	if err != nil && !progress.IsAborted(err) && ctx.Err() == nil {
		return media.Unreachable("prepare", f.location, err)
	}
	return err
}

// Acquire downloads location/relPath into a temp file.
func (f *URIFetcher) Acquire(ctx context.Context, relPath string, p progress.Reporter) (string, error) {
	rel := cleanRel(relPath)
	prefix := path.Base(rel)
	log := f.log.WithField("path", rel)
	log.Debug("Fetching file")

	if f.isFTP() {
		return f.acquireFTP(ctx, rel, p)
	}

	target := f.join(rel)
	resp, err := f.get(ctx, target)
	if err != nil {
		return "", media.Unreachable("acquire", target, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return "", media.NotFound("acquire", target, fmt.Errorf("server returned %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", media.Unreachable("acquire", target, fmt.Errorf("server returned %s", resp.Status))
	}

	return f.saveTemp(ctx, resp.Body, prefix, retrievingText(rel), resp.ContentLength, p)
}

// Cleanup is a no-op; each transfer closes its own connection.
func (f *URIFetcher) Cleanup() error {
	return nil
}

func (f *URIFetcher) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return f.client.Do(req)
}

// join appends rel to the base location without doubling slashes.
func (f *URIFetcher) join(rel string) string {
	return strings.TrimRight(f.location, "/") + "/" + rel
}

func (f *URIFetcher) ftpAddr() string {
	if f.url.Port() != "" {
		return f.url.Host
	}
	return net.JoinHostPort(f.url.Hostname(), "21")
}

func (f *URIFetcher) dialFTP(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if f.timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(f.timeout))
	}

	conn, err := ftp.Dial(f.ftpAddr(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	user, pass := "anonymous", "anonymous"
	if f.url.User != nil {
		user = f.url.User.Username()
		if pw, ok := f.url.User.Password(); ok {
			pass = pw
		}
	}
	if err := conn.Login(user, pass); err != nil {
		f.quit(conn)
		return nil, fmt.Errorf("failed to log in as %s: %w", user, err)
	}
	return conn, nil
}

func (f *URIFetcher) quit(conn *ftp.ServerConn) {
	if err := conn.Quit(); err != nil {
		f.log.WithError(err).Debug("Failed to close FTP connection")
	}
}

func (f *URIFetcher) acquireFTP(ctx context.Context, rel string, p progress.Reporter) (string, error) {
	target := f.join(rel)
	remote := path.Join("/", f.url.Path, rel)

	conn, err := f.dialFTP(ctx)
	if err != nil {
		return "", media.Unreachable("acquire", target, err)
	}
	defer f.quit(conn)

	// SIZE is optional on many servers; an unknown size only affects progress.
	size, err := conn.FileSize(remote)
	if err != nil {
		size = 0
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		if isFTPNotFound(err) {
			return "", media.NotFound("acquire", target, err)
		}
		return "", media.Unreachable("acquire", target, err)
	}
	defer func() {
		if closeErr := resp.Close(); closeErr != nil {
			f.log.WithError(closeErr).Debug("Failed to close FTP transfer")
		}
	}()

	return f.saveTemp(ctx, resp, path.Base(rel), retrievingText(rel), size, p)
}

func isFTPNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}
