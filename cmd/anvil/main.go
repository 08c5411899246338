package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/install"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/progress"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags.
var (
	configPath string
	logLevel   string
	quiet      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "anvil",
	Short: "Anvil - installation media for guest provisioning",
	Long: `Anvil locates a Linux distribution install tree and produces what a
guest needs to start its installer: a kernel and initrd with the matching
boot argument, or a bootable ISO.

Install trees can be reached over HTTP, HTTPS, FTP or NFS, or read from a
block device or image file. Fedora/RHEL trees provide their own kernels;
for SUSE trees an installer initrd is built from the tree's packages.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not show progress")

	rootCmd.AddCommand(kernelCmd)
	rootCmd.AddCommand(bootDiskCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the anvil version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("anvil %s (commit: %s)\n", version, commit)
	},
}

// session is what every acquisition command needs.
type session struct {
	cfg      *config.Config
	log      *logrus.Logger
	progress progress.Reporter
	acquirer *install.Acquirer
}

// setup loads the configuration and builds the logger, progress reporter
// and acquirer from it and the global flags.
func setup() (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log, err := logging.New(level, os.Stderr)
	if err != nil {
		return nil, err
	}

	var p progress.Reporter = progress.NewTerminal(os.Stderr)
	if quiet {
		p = progress.Nop{}
	}

	return &session{
		cfg:      cfg,
		log:      log,
		progress: p,
		acquirer: install.FromConfig(cfg, log),
	}, nil
}
