package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/install"
	"github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/pool"
	"github.com/jbweber/anvil/internal/synth"
)

// Per-command flags shared by kernel, boot-disk and detect.
var (
	variant      string
	distro       string
	scratchDir   string
	outputFormat string
	noHeaders    bool
	poolName     string
)

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&variant, "variant", "", "install variant, e.g. xen")
	cmd.Flags().StringVar(&distro, "distro", "", "only look for this distribution (fedora, suse, debian, ubuntu, gentoo, mandriva)")
	cmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "directory for temp files and mounts (overrides config)")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "output format: table, yaml, json, xml (overrides config)")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit table headers")
}

func init() {
	addRequestFlags(kernelCmd)
	addOutputFlags(kernelCmd)
	kernelCmd.Flags().StringVar(&poolName, "pool", "", "publish the artifacts into this libvirt storage pool")

	addRequestFlags(bootDiskCmd)
	addOutputFlags(bootDiskCmd)
	bootDiskCmd.Flags().StringVar(&poolName, "pool", "", "publish the ISO into this libvirt storage pool")

	addRequestFlags(detectCmd)
	addOutputFlags(detectCmd)
}

var kernelCmd = &cobra.Command{
	Use:   "kernel <location>",
	Short: "Acquire an installer kernel and initrd",
	Long: `Acquire the installer kernel and initrd for the install tree at location,
together with the boot argument that points the installer back at the tree.

Locations:
  http://, https://, ftp://   streamed
  nfs:<server>:<path>         mounted read-only
  /dev/<device>, <file>       mounted read-only (files via loopback)

The files are left in the scratch directory and belong to the caller.

Example:
  anvil kernel http://mirror.example/fedora/ -o xml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, format, err := prepare()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		k, err := s.acquirer.AcquireKernel(ctx, s.request(args[0]), s.progress)
		if err != nil {
			return fmt.Errorf("failed to acquire kernel: %w", err)
		}

		if name := s.poolTarget(); name != "" {
			published, err := publishKernel(ctx, s, name, k)
			if err != nil {
				return err
			}
			k = published
		}

		status("Kernel acquired from %s", args[0])
		return render(format, s, &output.Result{Location: args[0], Distro: distro, Kernel: k})
	},
}

var bootDiskCmd = &cobra.Command{
	Use:   "boot-disk <location>",
	Short: "Acquire a bootable installer ISO",
	Long: `Acquire the bootable installer ISO for the install tree at location.

The ISO is left in the scratch directory and belongs to the caller.

Example:
  anvil boot-disk nfs:server:/export/fedora --pool anvil-media`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, format, err := prepare()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		d, err := s.acquirer.AcquireBootDisk(ctx, s.request(args[0]), s.progress)
		if err != nil {
			return fmt.Errorf("failed to acquire boot disk: %w", err)
		}

		if name := s.poolTarget(); name != "" {
			published, err := publishBootDisk(ctx, s, name, d)
			if err != nil {
				return err
			}
			d = published
		}

		status("Boot disk acquired from %s", args[0])
		return render(format, s, &output.Result{Location: args[0], Distro: distro, BootDisk: d})
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <location>",
	Short: "Report which distribution an install tree belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, format, err := prepare()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		name, err := s.acquirer.Detect(ctx, s.request(args[0]), s.progress)
		if err != nil {
			return fmt.Errorf("failed to detect distribution: %w", err)
		}

		return render(format, s, &output.Result{Location: args[0], Distro: name})
	},
}

// prepare runs setup and resolves the output format before any work starts.
func prepare() (*session, output.Format, error) {
	s, err := setup()
	if err != nil {
		return nil, "", err
	}

	format := outputFormat
	if format == "" {
		format = s.cfg.Output.Format
	}
	if err := output.ValidateFormat(format); err != nil {
		return nil, "", err
	}
	return s, output.Format(format), nil
}

func (s *session) request(location string) install.Request {
	req := install.Request{
		Location:   location,
		ScratchDir: s.cfg.ScratchDir,
		Variant:    variant,
		Distro:     distro,
	}
	if scratchDir != "" {
		req.ScratchDir = scratchDir
	}
	return req
}

func (s *session) poolTarget() string {
	if poolName != "" {
		return poolName
	}
	return s.cfg.Pool.Name
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func render(format output.Format, s *session, r *output.Result) error {
	arch := s.cfg.Synth.Arch
	if arch == "" {
		if m, err := synth.Machine(); err == nil {
			arch = m
		}
	}

	formatter, err := output.NewFormatter(output.Options{
		Format:    format,
		NoHeaders: noHeaders,
		Arch:      arch,
	})
	if err != nil {
		return err
	}

	out, err := formatter.Format(r)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Print(out)
	return nil
}

// status prints a ✓ line on stderr so stdout stays machine readable.
func status(format string, args ...any) {
	if quiet {
		return
	}
	_, _ = color.New(color.FgGreen).Fprint(os.Stderr, "✓ ")
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// withPublisher connects to libvirt and runs fn with a publisher for the
// named pool.
func withPublisher(ctx context.Context, s *session, name string, fn func(*pool.Publisher) error) error {
	client, err := libvirt.ConnectWithContext(ctx, s.cfg.Pool.Socket, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			s.log.WithError(closeErr).Warn("Failed to close libvirt connection")
		}
	}()
	if err := client.Ping(); err != nil {
		return err
	}

	pub, err := pool.NewPublisher(client.Libvirt(), name, s.log)
	if err != nil {
		return err
	}
	return fn(pub)
}

// publishKernel uploads k into the pool. The local copies are removed
// whether or not publishing succeeds.
func publishKernel(ctx context.Context, s *session, name string, k *media.Kernel) (*media.Kernel, error) {
	defer removeLocal(s, k)

	var published *media.Kernel
	err := withPublisher(ctx, s, name, func(p *pool.Publisher) error {
		var err error
		published, err = p.PublishKernel(ctx, k, naming.NewPrefix())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish kernel to pool %s: %w", name, err)
	}
	status("Published kernel and initrd to pool %s", name)
	return published, nil
}

// publishBootDisk uploads d into the pool, removing the local ISO after.
func publishBootDisk(ctx context.Context, s *session, name string, d *media.BootDisk) (*media.BootDisk, error) {
	defer removeLocal(s, d)

	var published *media.BootDisk
	err := withPublisher(ctx, s, name, func(p *pool.Publisher) error {
		var err error
		published, err = p.PublishBootDisk(ctx, d, naming.NewPrefix())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish boot disk to pool %s: %w", name, err)
	}
	status("Published boot disk to pool %s", name)
	return published, nil
}

type removable interface {
	Remove() error
}

func removeLocal(s *session, r removable) {
	if err := r.Remove(); err != nil {
		s.log.WithError(err).Warn("Failed to remove local artifact")
	}
}
