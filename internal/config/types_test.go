package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/anvil/internal/libvirt"
)

func TestLoadFromFile_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configYAML := `scratch_dir: /srv/scratch
log_level: DEBUG
transport:
  timeout: 45s
  iso_reader: true
synth:
  arch: i686
  tools:
    depmod: /sbin/depmod
output:
  format: json
pool:
  name: anvil-media
`
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	want := &Config{
		ScratchDir: "/srv/scratch",
		LogLevel:   "debug",
		Transport: TransportConfig{
			Timeout:   45 * time.Second,
			ISOReader: true,
		},
		Mount: MountConfig{
			MountCommand:  "mount",
			UmountCommand: "umount",
		},
		Synth: SynthConfig{
			Arch: "i686",
			Tools: ToolsConfig{
				RPM2CPIO: "rpm2cpio",
				CPIO:     "cpio",
				Depmod:   "/sbin/depmod",
			},
		},
		Output: OutputConfig{Format: "json"},
		Pool: PoolConfig{
			Name:   "anvil-media",
			Socket: libvirt.DefaultSocket,
		},
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadFromFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultScratchDir, cfg.ScratchDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultTimeout, cfg.Transport.Timeout)
	assert.Equal(t, "table", cfg.Output.Format)
	assert.Empty(t, cfg.Pool.Name)
	assert.Equal(t, libvirt.DefaultSocket, cfg.Pool.Socket)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "relative scratch dir",
			mutate: func(c *Config) { c.ScratchDir = "tmp" },
			errMsg: "scratch_dir must be an absolute path",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			errMsg: "log_level must be one of",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Transport.Timeout = -time.Second },
			errMsg: "transport: timeout must be >= 0",
		},
		{
			name:   "arch with path",
			mutate: func(c *Config) { c.Synth.Arch = "suse/i586" },
			errMsg: "synth: arch must be a bare architecture name",
		},
		{
			name:   "empty tool",
			mutate: func(c *Config) { c.Synth.Tools.CPIO = "" },
			errMsg: "synth: tools.cpio must not be empty",
		},
		{
			name:   "unknown output format",
			mutate: func(c *Config) { c.Output.Format = "csv" },
			errMsg: "output: format must be one of",
		},
		{
			name: "relative pool socket",
			mutate: func(c *Config) {
				c.Pool.Name = "media"
				c.Pool.Socket = "libvirt-sock"
			},
			errMsg: "pool: socket must be an absolute path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFromYAML_InvalidYAML(t *testing.T) {
	_, err := LoadFromYAML([]byte("scratch_dir: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad(t *testing.T) {
	t.Run("explicit missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing default file yields defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scratch_dir: /data/tmp\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/data/tmp", cfg.ScratchDir)
	})
}
