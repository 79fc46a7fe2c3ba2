package focustimer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readtrack/readtrack-device/internal/kv"
)

func newTestModel(t *testing.T, cfg Config) (*Model, *kv.Store) {
	t.Helper()

	store, err := kv.OpenInMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := Load(store, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.NoError(t, err)
	return m, store
}

func TestFreshModelSeedsInitialTarget(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	assert.Equal(t, 25*time.Minute, m.Target())
	assert.Equal(t, int64(0), m.LifetimeSessions())
	assert.Equal(t, time.Duration(0), m.HistoricalAverage())
}

func TestAdjustIgnoresInsignificantSessions(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	m.Adjust(4*time.Minute + 59*time.Second)

	assert.Equal(t, 25*time.Minute, m.Target())
	assert.Equal(t, int64(0), m.LifetimeSessions())
}

func TestAdjustSuccessGrowth(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	// 30m against a 25m target is ratio 1.2: strong success.
	m.Adjust(30 * time.Minute)

	want := time.Duration(float64(25*time.Minute) * 1.05)
	assert.Equal(t, want, m.Target())
	assert.Equal(t, int64(1), m.LifetimeSessions())
}

func TestAdjustModestGrowth(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	// Exactly on target: modest growth.
	m.Adjust(25 * time.Minute)

	want := time.Duration(float64(25*time.Minute) * 1.02)
	assert.Equal(t, want, m.Target())
}

func TestAdjustShortSessionBlendsTowardAverage(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	// 20m against 25m is ratio 0.8. The session joins the lifetime totals
	// first, so the historical average it blends toward is 20m.
	m.Adjust(20 * time.Minute)

	want := blend(25*time.Minute, 20*time.Minute, 0.15)
	assert.Equal(t, want, m.Target())
	assert.Less(t, m.Target(), 25*time.Minute)
}

func TestAdjustVeryShortSessionBlendsBelowAverage(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	// 6m against 25m is ratio 0.24: blend toward 0.7x the historical
	// average (6m), pulling the target down.
	m.Adjust(6 * time.Minute)

	hist := 6 * time.Minute
	want := blend(25*time.Minute, time.Duration(float64(hist)*0.7), 0.15)
	assert.Equal(t, want, m.Target())
}

func TestAdjustClampsToBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTarget = 25 * time.Minute
	m, _ := newTestModel(t, cfg)

	// Growth would push past the ceiling; the bound holds.
	m.Adjust(40 * time.Minute)
	assert.Equal(t, 25*time.Minute, m.Target())

	cfg = DefaultConfig()
	cfg.SignificanceFloor = 0
	m, _ = newTestModel(t, cfg)

	// Repeated near-zero sessions cannot drag below the floor.
	for i := 0; i < 50; i++ {
		m.Adjust(time.Second)
	}
	assert.GreaterOrEqual(t, m.Target(), cfg.MinTarget)
}

func TestModelSurvivesReload(t *testing.T) {
	m, store := newTestModel(t, DefaultConfig())

	m.Adjust(30 * time.Minute)
	m.Adjust(28 * time.Minute)
	target := m.Target()
	sessions := m.LifetimeSessions()

	reloaded, err := Load(store, slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultConfig())
	require.NoError(t, err)

	// Persistence carries millisecond resolution.
	assert.Equal(t, target.Milliseconds(), reloaded.Target().Milliseconds())
	assert.Equal(t, sessions, reloaded.LifetimeSessions())
	assert.Equal(t, m.HistoricalAverage().Milliseconds(), reloaded.HistoricalAverage().Milliseconds())
}

func TestSetConfigReclampsTarget(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())
	require.Equal(t, 25*time.Minute, m.Target())

	cfg := DefaultConfig()
	cfg.MaxTarget = 20 * time.Minute
	m.SetConfig(cfg)

	assert.Equal(t, 20*time.Minute, m.Target())
}

func TestHistoricalAverage(t *testing.T) {
	m, _ := newTestModel(t, DefaultConfig())

	m.Adjust(20 * time.Minute)
	m.Adjust(30 * time.Minute)

	assert.Equal(t, 25*time.Minute, m.HistoricalAverage())
}
