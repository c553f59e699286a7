package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MINDSIM_ADMIN_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, time.Second, cfg.CycleInterval.Std())
	assert.NotEmpty(t, cfg.Needs)
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MINDSIM_ADMIN_KEY", "")

	path := filepath.Join(t.TempDir(), "mindsim.yaml")
	body := `
db_path: /tmp/other.db
api_port: 9090
cycle_interval: 250ms
speed: 4.0
needs: [hunger, rest]
progress_gain: 0.4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 250*time.Millisecond, cfg.CycleInterval.Std())
	assert.Equal(t, 4.0, cfg.Speed)
	assert.Equal(t, []string{"hunger", "rest"}, cfg.Needs)
	assert.Equal(t, 0.4, cfg.ProgressGain)
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().MilestoneSetback, cfg.MilestoneSetback)
}

func TestLoadEnvSecretsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oracle_api_key: from-file\nadmin_key: also-from-file\n"), 0o644))
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("MINDSIM_ADMIN_KEY", "admin-from-env")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OracleAPIKey)
	assert.Equal(t, "admin-from-env", cfg.AdminKey)
}

func TestLoadRejectsEmptyNeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("needs: []\n"), 0o644))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed: [not a number\n"), 0o644))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoadFixesNonPositiveInterval(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MINDSIM_ADMIN_KEY", "")

	path := filepath.Join(t.TempDir(), "mindsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycle_interval: 0s\n"), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.CycleInterval.Std())
}
