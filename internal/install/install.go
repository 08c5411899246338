// Package install is the entry point for acquiring installation media.
//
// An Acquirer turns an install location into either a kernel/initrd pair
// with its boot argument, or a bootable ISO:
//
//  1. A fetcher is chosen from the location's scheme.
//  2. The location is prepared (probed or mounted). Failure here is a
//     media.KindInvalidLocation error and nothing else is attempted.
//  3. Distribution stores are probed in a fixed order, or only the hinted
//     one.
//  4. The matching store produces the artifact.
//
// The fetcher is cleaned up exactly once however the call ends. Returned
// files belong to the caller.
package install

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/distro"
	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
	"github.com/jbweber/anvil/internal/synth"
)

// DefaultScratchDir is used when a Request names no scratch directory.
const DefaultScratchDir = config.DefaultScratchDir

// Request describes one acquisition.
type Request struct {
	Location   string // Install tree: http://, https://, ftp://, nfs:<share>, block device or image file
	ScratchDir string // Temp files and mount points, defaults to DefaultScratchDir
	Variant    string // Install variant hint, e.g. "xen"
	Distro     string // Restricts detection to one distribution
}

func (r Request) withDefaults() Request {
	if r.ScratchDir == "" {
		r.ScratchDir = DefaultScratchDir
	}
	return r
}

// FetcherFactory constructs the fetcher for a location.
type FetcherFactory func(location, scratchDir string, opts fetcher.Options) (fetcher.Fetcher, error)

// Acquirer wires fetchers, detection and stores together.
type Acquirer struct {
	newFetcher FetcherFactory
	fetchOpts  fetcher.Options
	synthOpts  synth.Options
	verifyISO  bool
	log        logrus.FieldLogger
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Acquirer) {
		a.log = logging.OrDiscard(log)
	}
}

// WithFetcherFactory replaces fetcher.New.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(a *Acquirer) {
		a.newFetcher = f
	}
}

// WithFetcherOptions sets the options passed to the fetcher factory.
func WithFetcherOptions(opts fetcher.Options) Option {
	return func(a *Acquirer) {
		a.fetchOpts = opts
	}
}

// WithSynthOptions configures initrd synthesis for SUSE trees.
func WithSynthOptions(opts synth.Options) Option {
	return func(a *Acquirer) {
		a.synthOpts = opts
	}
}

// WithVerifyISO makes boot disk acquisition check the ISO9660 structure.
func WithVerifyISO(verify bool) Option {
	return func(a *Acquirer) {
		a.verifyISO = verify
	}
}

// New creates an Acquirer.
func New(opts ...Option) *Acquirer {
	a := &Acquirer{
		newFetcher: fetcher.New,
		log:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fetchOpts.Logger == nil {
		a.fetchOpts.Logger = a.log
	}
	if a.synthOpts.Logger == nil {
		a.synthOpts.Logger = a.log
	}
	return a
}

// FromConfig creates an Acquirer using the transport, mount and synthesis
// settings in cfg.
func FromConfig(cfg *config.Config, log logrus.FieldLogger, opts ...Option) *Acquirer {
	log = logging.OrDiscard(log)
	tools := synth.NewExecToolchain(log)
	tools.RPM2CPIOCommand = cfg.Synth.Tools.RPM2CPIO
	tools.CPIOCommand = cfg.Synth.Tools.CPIO
	tools.DepmodCommand = cfg.Synth.Tools.Depmod

	base := []Option{
		WithLogger(log),
		WithFetcherOptions(fetcher.Options{
			Timeout:   cfg.Transport.Timeout,
			ISOReader: cfg.Transport.ISOReader,
			Mounter: fetcher.ExecMounter{
				MountCommand:  cfg.Mount.MountCommand,
				UmountCommand: cfg.Mount.UmountCommand,
			},
			Logger: log,
		}),
		WithSynthOptions(synth.Options{
			Machine: cfg.Synth.Arch,
			Tools:   tools,
			Logger:  log,
		}),
		WithVerifyISO(cfg.Transport.VerifyISO),
	}
	return New(append(base, opts...)...)
}

// AcquireKernel returns a kernel, initrd and boot argument for the tree at
// req.Location.
func (a *Acquirer) AcquireKernel(ctx context.Context, req Request, p progress.Reporter) (*media.Kernel, error) {
	var kernel *media.Kernel
	err := a.withStore(ctx, req, p, "kernel", func(s distro.Store, f fetcher.Fetcher) error {
		k, err := s.AcquireKernel(ctx, f, p)
		if err != nil {
			return fmt.Errorf("failed to acquire %s kernel: %w", s.Name(), err)
		}
		kernel = k
		return nil
	})
	if err != nil {
		return nil, err
	}
	return kernel, nil
}

// AcquireBootDisk returns a bootable ISO for the tree at req.Location.
func (a *Acquirer) AcquireBootDisk(ctx context.Context, req Request, p progress.Reporter) (*media.BootDisk, error) {
	var disk *media.BootDisk
	err := a.withStore(ctx, req, p, "boot-disk", func(s distro.Store, f fetcher.Fetcher) error {
		d, err := s.AcquireBootDisk(ctx, f, p)
		if err != nil {
			return fmt.Errorf("failed to acquire %s boot disk: %w", s.Name(), err)
		}
		disk = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return disk, nil
}

// Detect returns the name of the distribution at req.Location without
// acquiring anything.
func (a *Acquirer) Detect(ctx context.Context, req Request, p progress.Reporter) (string, error) {
	var name string
	err := a.withStore(ctx, req, p, "detect", func(s distro.Store, _ fetcher.Fetcher) error {
		name = s.Name()
		return nil
	})
	return name, err
}

// withStore prepares the location, detects the distribution and hands the
// matched store to fn. The fetcher is cleaned up exactly once on return.
func (a *Acquirer) withStore(ctx context.Context, req Request, p progress.Reporter, op string, fn func(distro.Store, fetcher.Fetcher) error) error {
	req = req.withDefaults()
	log := a.log.WithFields(logrus.Fields{
		"op":       op,
		"op_id":    uuid.NewString(),
		"location": req.Location,
	})

	fetchOpts := a.fetchOpts
	fetchOpts.Logger = log
	f, err := a.newFetcher(req.Location, req.ScratchDir, fetchOpts)
	if err != nil {
		return &media.Error{Kind: media.KindInvalidLocation, Op: "invalid install location", Path: req.Location, Err: err}
	}
	defer func() {
		if err := f.Cleanup(); err != nil {
			log.WithError(err).Warn("Failed to clean up install location")
		}
	}()

	log.Debug("Preparing install location")
	if err := f.Prepare(ctx, p); err != nil {
		return &media.Error{Kind: media.KindInvalidLocation, Op: "invalid install location", Path: req.Location, Err: err}
	}

	synthOpts := a.synthOpts
	synthOpts.Logger = log
	stores, err := distro.Candidates(req.Distro, distro.Params{
		Variant:   req.Variant,
		VerifyISO: a.verifyISO,
		Builder:   synth.NewBuilder(req.ScratchDir, synthOpts),
		Logger:    log,
	})
	if err != nil {
		return err
	}

	store, err := distro.Detect(ctx, f, stores, p)
	if err != nil {
		return err
	}
	log.WithField("store", store.Name()).Info("Detected distribution")

	return fn(store, f)
}

// RequestOption adjusts a Request built by the package-level helpers.
type RequestOption func(*Request)

// ScratchDir sets the scratch directory.
func ScratchDir(dir string) RequestOption {
	return func(r *Request) { r.ScratchDir = dir }
}

// Variant sets the install variant hint.
func Variant(v string) RequestOption {
	return func(r *Request) { r.Variant = v }
}

// Distro restricts detection to one distribution.
func Distro(name string) RequestOption {
	return func(r *Request) { r.Distro = name }
}

func newRequest(location string, opts []RequestOption) Request {
	req := Request{Location: location}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// AcquireKernel acquires a kernel with default settings.
func AcquireKernel(ctx context.Context, location string, p progress.Reporter, opts ...RequestOption) (*media.Kernel, error) {
	return New().AcquireKernel(ctx, newRequest(location, opts), p)
}

// AcquireBootDisk acquires a boot disk with default settings.
func AcquireBootDisk(ctx context.Context, location string, p progress.Reporter, opts ...RequestOption) (*media.BootDisk, error) {
	return New().AcquireBootDisk(ctx, newRequest(location, opts), p)
}
