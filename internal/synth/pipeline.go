package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// BuildSteps is the number of progress steps reported while building.
const BuildSteps = 11

const (
	listingPath   = "ls-lR.gz"
	installInitrd = "usr/lib/install-initrd"
)

// Options configures a Builder.
type Options struct {
	Machine string             // Architecture to build for, defaults to the running machine
	Tools   Toolchain          // Defaults to NewExecToolchain
	Logger  logrus.FieldLogger // Defaults to a discarding logger
}

// Builder synthesizes an installer kernel and initrd for SUSE trees.
type Builder struct {
	scratchDir string
	machine    string
	tools      Toolchain
	log        logrus.FieldLogger
}

// NewBuilder creates a Builder staging its work under scratchDir.
func NewBuilder(scratchDir string, opts Options) *Builder {
	log := logging.OrDiscard(opts.Logger)
	tools := opts.Tools
	if tools == nil {
		tools = NewExecToolchain(log)
	}
	return &Builder{
		scratchDir: scratchDir,
		machine:    opts.Machine,
		tools:      tools,
		log:        log.WithField("component", "synth"),
	}
}

// BuildKernel locates the kernel and install-initrd packages through the
// tree's package listing, downloads them and builds the kernel/initrd pair.
// The listing and both packages are deleted before returning.
func (b *Builder) BuildKernel(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.Kernel, error) {
	machine := b.machine
	if machine == "" {
		m, err := Machine()
		if err != nil {
			return nil, media.Synthesis("detect architecture", err)
		}
		machine = m
	}
	arches, kernelName := Arches(machine)

	pkgs, err := b.findPackages(ctx, f, arches, kernelName, p)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{
		"arch":           pkgs.Arch,
		"kernel":         pkgs.Kernel,
		"install_initrd": pkgs.InstallInitrd,
	}).Info("Found kernel packages")

	kernelPkg, err := b.fetch(ctx, f, pkgs.Kernel, p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch kernel package: %w", err)
	}
	defer b.remove(kernelPkg)

	initrdPkg, err := b.fetch(ctx, f, pkgs.InstallInitrd, p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch install-initrd package: %w", err)
	}
	defer b.remove(initrdPkg)

	return b.Build(ctx, f, kernelPkg, initrdPkg, p)
}

func (b *Builder) findPackages(ctx context.Context, f fetcher.Fetcher, arches []string, kernelName string, p progress.Reporter) (*Packages, error) {
	listing, err := b.fetch(ctx, f, listingPath, p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package listing: %w", err)
	}
	defer b.remove(listing)

	file, err := os.Open(listing)
	if err != nil {
		return nil, media.Synthesis("read listing", err)
	}
	defer func() {
		_ = file.Close()
	}()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, media.Synthesis("read listing", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	pkgs, err := FindPackages(zr, arches, kernelName)
	if err != nil {
		return nil, media.Synthesis("find packages", err)
	}
	return pkgs, nil
}

// Build runs the eleven build steps on two downloaded package files and
// saves the results through f. The staging directory is always removed.
func (b *Builder) Build(ctx context.Context, f fetcher.Fetcher, kernelPkg, initrdPkg string, p progress.Reporter) (*media.Kernel, error) {
	if err := progress.Start(p, "Building initrd", BuildSteps); err != nil {
		return nil, err
	}
	if err := progress.Update(p, 1); err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp(b.scratchDir, "anvilcpio.")
	if err != nil {
		return nil, media.Synthesis("create staging", err)
	}
	log := b.log.WithField("staging", staging)
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.WithError(err).Warn("Failed to remove staging directory")
		}
	}()

	s := &stage{
		Builder: b,
		ctx:     ctx,
		p:       p,
		log:     log,
		root:    staging,
	}
	initrd, kernel, err := s.run(kernelPkg, initrdPkg)
	if err != nil {
		return nil, err
	}

	initrdName, err := saveFile(f, initrd, "initrd.img")
	if err != nil {
		return nil, media.Synthesis("save initrd", err)
	}
	kernelName, err := saveFile(f, kernel, "vmlinuz")
	if err != nil {
		b.remove(initrdName)
		return nil, media.Synthesis("save kernel", err)
	}

	log.WithFields(logrus.Fields{"kernel": kernelName, "initrd": initrdName}).Info("Built installer kernel and initrd")
	return &media.Kernel{
		KernelPath: kernelName,
		InitrdPath: initrdName,
		BootArg:    "install=" + f.Location(),
	}, nil
}

// stage is one run of the build steps inside a staging directory.
type stage struct {
	*Builder
	ctx  context.Context
	p    progress.Reporter
	log  logrus.FieldLogger
	root string
}

func (s *stage) path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

func (s *stage) step(n int64) error {
	s.log.WithField("step", n).Debug("Build step complete")
	return progress.Update(s.p, n)
}

// run performs the build steps and returns the compressed initrd and the
// kernel image, both inside the staging directory.
func (s *stage) run(kernelPkg, initrdPkg string) (string, string, error) {
	kernelDir := s.path("kernel")
	if err := s.extract(kernelPkg, kernelDir); err != nil {
		return "", "", err
	}
	if err := s.step(2); err != nil {
		return "", "", err
	}

	bootDir := filepath.Join(kernelDir, "boot")
	sysmap, version, err := FindSystemMap(bootDir)
	if err != nil {
		return "", "", media.Synthesis("kernel version", err)
	}
	s.log.WithFields(logrus.Fields{"version": version.Version(), "override": version.Override()}).Debug("Got kernel version")

	index, err := IndexModules(filepath.Join(kernelDir, "lib", "modules"))
	if err != nil {
		return "", "", media.Synthesis("index modules", err)
	}
	if err := s.step(3); err != nil {
		return "", "", err
	}

	payloadDir := s.path("installinitrd")
	if err := s.extract(initrdPkg, payloadDir); err != nil {
		return "", "", err
	}
	if err := s.step(4); err != nil {
		return "", "", err
	}

	flavorDir := filepath.Join(payloadDir, filepath.FromSlash(installInitrd), version.Flavor)
	modules, err := ReadModuleList(filepath.Join(flavorDir, "module.list"))
	if err != nil {
		return "", "", media.Synthesis("module list", err)
	}
	if err := s.step(5); err != nil {
		return "", "", err
	}

	image := s.path("initrd.img")
	if err := Gunzip(filepath.Join(payloadDir, filepath.FromSlash(installInitrd), "initrd-base.gz"), image); err != nil {
		return "", "", media.Synthesis("decompress base initrd", err)
	}
	if err := s.step(6); err != nil {
		return "", "", err
	}

	overlay := s.path("initrd")
	if err := OverlaySkeleton(version, filepath.Join(flavorDir, "module.config")).Apply(overlay); err != nil {
		return "", "", media.Synthesis("build overlay", err)
	}
	if err := s.step(7); err != nil {
		return "", "", err
	}

	plan, missing := OverlayModules(version, modules, index)
	if len(missing) > 0 {
		s.log.WithField("modules", strings.Join(missing, ",")).Warn("Modules not shipped with kernel, skipping")
	}
	if err := plan.Apply(overlay); err != nil {
		return "", "", media.Synthesis("copy modules", err)
	}
	if err := s.step(8); err != nil {
		return "", "", err
	}

	if err := s.tools.Depmod(s.ctx, overlay, filepath.Join(bootDir, sysmap), version.Version()); err != nil {
		return "", "", media.Synthesis("depmod", err)
	}
	if err := s.step(9); err != nil {
		return "", "", err
	}

	files, err := ListTree(overlay)
	if err != nil {
		return "", "", media.Synthesis("append overlay", err)
	}
	if err := s.tools.AppendArchive(s.ctx, image, overlay, files); err != nil {
		return "", "", media.Synthesis("append overlay", err)
	}
	if err := s.step(10); err != nil {
		return "", "", err
	}

	compressed := image + ".gz"
	if err := GzipBest(image, compressed); err != nil {
		return "", "", media.Synthesis("compress initrd", err)
	}

	kernel := filepath.Join(bootDir, "vmlinuz-"+version.Version())
	if _, err := os.Stat(kernel); err != nil {
		return "", "", media.Synthesis("locate kernel", err)
	}

	if err := progress.End(s.p, BuildSteps); err != nil {
		return "", "", err
	}
	return compressed, kernel, nil
}

func (s *stage) extract(pkg, dir string) error {
	if err := os.Mkdir(dir, 0755); err != nil {
		return media.Synthesis("extract "+filepath.Base(dir), err)
	}
	if err := s.tools.Extract(s.ctx, pkg, dir); err != nil {
		return media.Synthesis("extract "+filepath.Base(dir), err)
	}
	return nil
}

// fetch acquires relPath, treating a skipped directory as missing.
func (b *Builder) fetch(ctx context.Context, f fetcher.Fetcher, relPath string, p progress.Reporter) (string, error) {
	name, err := f.Acquire(ctx, relPath, p)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", media.NotFound("acquire", relPath, errors.New("path is a directory"))
	}
	return name, nil
}

func (b *Builder) remove(name string) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		b.log.WithError(err).WithField("path", name).Warn("Failed to remove temp file")
	}
}

func saveFile(f fetcher.Fetcher, src, prefix string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = in.Close()
	}()
	return f.SaveTemp(in, prefix)
}
