// Package config loads the anvil configuration file.
//
// Every field has a default, so a missing default config file is not an
// error: anvil runs with Default(). An explicitly requested file that does
// not exist is.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/libvirt"
)

const (
	// DefaultScratchDir backs all temp files and mount points.
	DefaultScratchDir = "/var/tmp"

	// DefaultConfigPath is consulted when no --config flag is given.
	DefaultConfigPath = "~/.config/anvil/config.yaml"

	// DefaultTimeout bounds connection setup for network transports.
	DefaultTimeout = 30 * time.Second
)

// Config is the complete anvil configuration.
type Config struct {
	ScratchDir string          `yaml:"scratch_dir,omitempty"`
	LogLevel   string          `yaml:"log_level,omitempty"`
	Transport  TransportConfig `yaml:"transport,omitempty"`
	Mount      MountConfig     `yaml:"mount,omitempty"`
	Synth      SynthConfig     `yaml:"synth,omitempty"`
	Output     OutputConfig    `yaml:"output,omitempty"`
	Pool       PoolConfig      `yaml:"pool,omitempty"`
}

// TransportConfig controls the network and image-file fetchers.
type TransportConfig struct {
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	ISOReader bool          `yaml:"iso_reader,omitempty"` // Read .iso files in-process instead of loop-mounting
	VerifyISO bool          `yaml:"verify_iso,omitempty"` // Check boot disks are ISO9660 images
}

// MountConfig names the commands used by the mounted fetcher.
type MountConfig struct {
	MountCommand  string `yaml:"mount_command,omitempty"`
	UmountCommand string `yaml:"umount_command,omitempty"`
}

// SynthConfig controls SUSE initrd synthesis.
type SynthConfig struct {
	Arch  string      `yaml:"arch,omitempty"` // Overrides the host machine architecture
	Tools ToolsConfig `yaml:"tools,omitempty"`
}

// ToolsConfig names the external programs used during synthesis.
type ToolsConfig struct {
	RPM2CPIO string `yaml:"rpm2cpio,omitempty"`
	CPIO     string `yaml:"cpio,omitempty"`
	Depmod   string `yaml:"depmod,omitempty"`
}

// OutputConfig selects the CLI result format.
type OutputConfig struct {
	Format string `yaml:"format,omitempty"`
}

// PoolConfig enables publishing acquired artifacts into a libvirt pool.
type PoolConfig struct {
	Name   string `yaml:"name,omitempty"` // Empty disables publishing
	Socket string `yaml:"socket,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in defaults for unset fields.
func (c *Config) Normalize() {
	if c.ScratchDir == "" {
		c.ScratchDir = DefaultScratchDir
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = DefaultTimeout
	}
	if c.Mount.MountCommand == "" {
		c.Mount.MountCommand = "mount"
	}
	if c.Mount.UmountCommand == "" {
		c.Mount.UmountCommand = "umount"
	}
	if c.Synth.Tools.RPM2CPIO == "" {
		c.Synth.Tools.RPM2CPIO = "rpm2cpio"
	}
	if c.Synth.Tools.CPIO == "" {
		c.Synth.Tools.CPIO = "cpio"
	}
	if c.Synth.Tools.Depmod == "" {
		c.Synth.Tools.Depmod = "depmod"
	}
	if c.Output.Format == "" {
		c.Output.Format = "table"
	}
	if c.Pool.Socket == "" {
		c.Pool.Socket = libvirt.DefaultSocket
	}
}

// Validate checks the configuration for errors.
// Does not check that tools or the libvirt socket exist, only structure.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.ScratchDir) {
		return fmt.Errorf("scratch_dir must be an absolute path, got %q", c.ScratchDir)
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be one of trace, debug, info, warn, error, got %q", c.LogLevel)
	}

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	if err := c.Synth.Validate(); err != nil {
		return fmt.Errorf("synth: %w", err)
	}

	switch c.Output.Format {
	case "table", "yaml", "json", "xml":
	default:
		return fmt.Errorf("output: format must be one of table, yaml, json, xml, got %q", c.Output.Format)
	}

	if c.Pool.Name != "" && !filepath.IsAbs(c.Pool.Socket) {
		return fmt.Errorf("pool: socket must be an absolute path, got %q", c.Pool.Socket)
	}

	return nil
}

// Validate checks transport configuration.
func (t *TransportConfig) Validate() error {
	if t.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", t.Timeout)
	}
	return nil
}

// Validate checks synthesis configuration.
func (s *SynthConfig) Validate() error {
	if strings.ContainsAny(s.Arch, "/ ") {
		return fmt.Errorf("arch must be a bare architecture name, got %q", s.Arch)
	}
	for name, tool := range map[string]string{
		"rpm2cpio": s.Tools.RPM2CPIO,
		"cpio":     s.Tools.CPIO,
		"depmod":   s.Tools.Depmod,
	} {
		if tool == "" {
			return fmt.Errorf("tools.%s must not be empty", name)
		}
	}
	return nil
}

// ExpandPath expands a leading "~" in path to the user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	return expanded, nil
}

// Load reads the configuration at path. If path is empty, the default
// location is tried and a missing file yields Default().
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFromFile(expanded)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads a configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML parses, normalizes and validates configuration bytes.
func LoadFromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
