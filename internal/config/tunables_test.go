package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTunables(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tunables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTunablesEmptyPathReturnsDefaults(t *testing.T) {
	got, err := LoadTunables("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTunables(), got)
}

func TestLoadTunablesOverridesFields(t *testing.T) {
	path := writeTunables(t, `
session:
  pause_threshold: 220
power:
  sleep_threshold: 80
  dark_debounce: 5
timer:
  initial_target_ms: 1200000
`)

	got, err := LoadTunables(path)
	require.NoError(t, err)

	assert.Equal(t, 220, got.Session.PauseThreshold)
	assert.Equal(t, 80, got.Power.SleepThreshold)
	assert.Equal(t, 5, got.Power.DarkDebounce)
	assert.Equal(t, 20*time.Minute, got.Timer.InitialTarget())

	// Unmentioned fields keep their defaults.
	assert.Equal(t, DefaultTunables().Library.Capacity, got.Library.Capacity)
	assert.Equal(t, DefaultTunables().Trend.Alpha, got.Trend.Alpha)
}

func TestLoadTunablesMissingFile(t *testing.T) {
	_, err := LoadTunables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadTunablesRejectsMalformedYAML(t *testing.T) {
	path := writeTunables(t, "session: [not a map")

	_, err := LoadTunables(path)
	assert.Error(t, err)
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	var tun Tunables
	NormalizeTunables(&tun)

	assert.Equal(t, DefaultTunables(), tun)
}

func TestValidateRejectsInvertedTimerBounds(t *testing.T) {
	tun := DefaultTunables()
	tun.Timer.MinTargetMs = tun.Timer.MaxTargetMs

	err := ValidateTunables(&tun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_target_ms")
}

func TestValidateRejectsInitialTargetOutOfBounds(t *testing.T) {
	tun := DefaultTunables()
	tun.Timer.InitialTargetMs = tun.Timer.MaxTargetMs + 60000

	err := ValidateTunables(&tun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_target_ms")
}

func TestValidateRejectsSleepAbovePauseThreshold(t *testing.T) {
	tun := DefaultTunables()
	tun.Power.SleepThreshold = tun.Session.PauseThreshold

	err := ValidateTunables(&tun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sleep_threshold")
}

func TestValidateRejectsRestLongerThanIdleTimeout(t *testing.T) {
	tun := DefaultTunables()
	tun.Session.RestDurationMs = tun.Power.IdleTimeoutMs

	err := ValidateTunables(&tun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rest_duration_ms")
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	tun := DefaultTunables()
	tun.Trend.Alpha = 1.5

	assert.Error(t, ValidateTunables(&tun))

	tun = DefaultTunables()
	tun.Power.DarkDebounce = 100

	assert.Error(t, ValidateTunables(&tun))
}

func TestDurationAccessors(t *testing.T) {
	tun := DefaultTunables()

	assert.Equal(t, 5*time.Minute, tun.Session.RestDuration())
	assert.Equal(t, 5*time.Minute, tun.Timer.MinTarget())
	assert.Equal(t, 60*time.Minute, tun.Timer.MaxTarget())
	assert.Equal(t, 10*time.Minute, tun.Power.IdleTimeout())
	assert.Equal(t, 30*time.Minute, tun.Power.SafetyTimer())
}
