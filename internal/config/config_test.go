package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hajjtech/mawkib/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 3, cfg.SampleWindow)
	assert.Equal(t, 2, cfg.SampleQuorum)
	assert.Equal(t, 3, cfg.HeadcountWindows)
	assert.Equal(t, 60*time.Second, cfg.DoorTimeout)
	assert.Equal(t, 90, cfg.AttemptRetentionDays)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mawkib.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
sample_window: 5
sample_quorum: 3
door_timeout: 30s
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.SampleWindow)
	assert.Equal(t, 3, cfg.SampleQuorum)
	assert.Equal(t, 30*time.Second, cfg.DoorTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, "dev", cfg.Env)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mawkib.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`http_addr: ":9090"`), 0o600))

	t.Setenv("MAWKIB_HTTP_ADDR", ":7070")
	t.Setenv("MAWKIB_SAMPLE_WINDOW", "7")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 7, cfg.SampleWindow)
}

func TestLoad_ProdRequiresSecrets(t *testing.T) {
	t.Setenv("MAWKIB_ENV", "prod")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card_key_secret")
}

func TestValidate_QuorumBounds(t *testing.T) {
	t.Setenv("MAWKIB_SAMPLE_WINDOW", "3")
	t.Setenv("MAWKIB_SAMPLE_QUORUM", "5")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_quorum")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
