package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lccnr/pkg/config"
	"lccnr/pkg/validation"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, validation.DefaultProtocol(), cfg.ValidationProtocol())
	assert.Equal(t, "LC_[FT]SE.nii*", cfg.Batch.ImagePattern)
	assert.Equal(t, "error", cfg.Logging.ConsoleLevel)
	assert.Positive(t, cfg.Batch.Workers)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Protocol, cfg.Protocol)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lccnr.yaml")

	cfg := config.DefaultConfig()
	cfg.Protocol.PTVoxels = 80
	cfg.Output.Strict = true
	cfg.Store.Path = "runs.db"
	require.NoError(t, config.SaveConfig(cfg, path))

	got, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lccnr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("protocol:\n  ptVentralOffset: 5\n"), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Protocol.PTVentralOffset)
	assert.Equal(t, 100, cfg.Protocol.PTVoxels, "unset keys keep defaults")
}

func TestLoadConfigInvalid(t *testing.T) {
	tcs := map[string]string{
		"bad yaml":        "protocol: [",
		"zero slices":     "protocol:\n  slices: 0\n",
		"negative worker": "batch:\n  workers: -1\n",
		"unknown level":   "logging:\n  fileLevel: chatty\n",
		"unknown format":  "logging:\n  format: xml\n",
	}

	for name, body := range tcs {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lccnr.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := config.LoadConfig(path)
			require.Error(t, err)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lccnr.yaml")
	require.NoError(t, config.CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ptVentralOffset: 6")
	assert.Contains(t, string(data), "subjectPattern:")
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, config.Encode(&buf, config.DefaultConfig()))
	assert.Contains(t, buf.String(), "protocol:\n  slices: 3\n")
}
