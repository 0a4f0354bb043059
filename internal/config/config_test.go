package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk:\n  max_open_positions: 3\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	// Untouched fields keep their default.
	require.Equal(t, Default().Risk.MaxContractsPerTrade, cfg.Risk.MaxContractsPerTrade)
}

func TestApplyEnvOverridesSecretsAndToggles(t *testing.T) {
	t.Setenv("ARBCORE_API_KEY_ID", "key-123")
	t.Setenv("ARBCORE_API_SECRET", "secret-456")
	t.Setenv("ARBCORE_DRY_RUN", "false")
	t.Setenv("ARBCORE_KILL_SWITCH", "1")

	cfg := Default()
	cfg.ApplyEnv()

	require.Equal(t, "key-123", cfg.Exchange.APIKeyID)
	require.Equal(t, "secret-456", cfg.Exchange.APISecret)
	require.False(t, cfg.DryRun)
	require.True(t, cfg.Risk.KillSwitch)
}

func TestValidateRejectsBadCaps(t *testing.T) {
	cfg := Default()
	cfg.Risk.MaxOpenPositions = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Detect.FeeSafetyMultiplier = 0.5
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DryRun = false
	require.Error(t, cfg.Validate(), "live trading requires exchange credentials")
}
