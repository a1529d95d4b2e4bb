package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/diod/internal/bytesize"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.NumWorkers)
	assert.Equal(t, bytesize.ByteSize(64*1024), cfg.Msize)
	assert.Equal(t, "nobody", cfg.SquashUser)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diod.yaml")
	content := []byte("listen:\n  - \"0.0.0.0:564\"\nnwthreads: 4\nexport:\n  - \"/srv\"\nallsquash: true\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.0.0.0:564"}, cfg.Listen)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.True(t, cfg.AllSquash)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	v := viper.New()
	v.Set("log-level", "verbose")
	_, err := Load(v, "")
	assert.Error(t, err)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nwthreads: 4\n"), 0o644))

	v := viper.New()
	v.Set("nwthreads", 32) // simulates a bound CLI flag, which wins over the file
	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.NumWorkers)
}
