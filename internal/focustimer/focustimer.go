// Package focustimer maintains the adaptive focus-session target: a
// monotonically-bounded exponential-smoothing controller, not a learned
// model. The target grows when sessions run long relative to it and blends
// back toward the historical average when they run short.
package focustimer

import (
	"log/slog"
	"time"

	"github.com/readtrack/readtrack-device/internal/errors"
	"github.com/readtrack/readtrack-device/internal/kv"
)

// Config holds the controller's tunables.
type Config struct {
	// MinTarget and MaxTarget bound the target duration.
	MinTarget time.Duration
	MaxTarget time.Duration
	// InitialTarget seeds a fresh device.
	InitialTarget time.Duration
	// SignificanceFloor: sessions shorter than this are noise and never
	// touch the model.
	SignificanceFloor time.Duration
	// SuccessGrowth multiplies the target when ratio >= 1.2.
	SuccessGrowth float64
	// ModestGrowth multiplies the target when 1.0 <= ratio < 1.2.
	ModestGrowth float64
	// BlendRate is the learning rate for blending toward the historical
	// average on short sessions.
	BlendRate float64
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		MinTarget:         5 * time.Minute,
		MaxTarget:         60 * time.Minute,
		InitialTarget:     25 * time.Minute,
		SignificanceFloor: 5 * time.Minute,
		SuccessGrowth:     1.05,
		ModestGrowth:      1.02,
		BlendRate:         0.15,
	}
}

// persistedState is the model's on-disk shape, stored in the global
// namespace as durations in milliseconds.
type persistedState struct {
	TargetMs        int64 `json:"target_ms"`
	LifetimeTotalMs int64 `json:"lifetime_total_ms"`
	LifetimeCount   int64 `json:"lifetime_count"`
}

// Model is the process-wide timer state. Not safe for concurrent use; it
// lives on the single control loop.
type Model struct {
	cfg    Config
	kv     *kv.Store
	logger *slog.Logger

	target        time.Duration
	lifetimeTotal time.Duration
	lifetimeCount int64
}

// Load restores the model from the global namespace, seeding defaults on a
// fresh device.
func Load(store *kv.Store, logger *slog.Logger, cfg Config) (*Model, error) {
	m := &Model{
		cfg:    cfg,
		kv:     store,
		logger: logger,
		target: cfg.InitialTarget,
	}

	var st persistedState
	err := store.Get(kv.GlobalKey(kv.FieldTimerModel), &st)
	switch {
	case err == nil:
		m.target = clamp(time.Duration(st.TargetMs)*time.Millisecond, cfg.MinTarget, cfg.MaxTarget)
		m.lifetimeTotal = time.Duration(st.LifetimeTotalMs) * time.Millisecond
		m.lifetimeCount = st.LifetimeCount
	case errors.Is(err, errors.ErrNotFound):
		// Fresh device; keep seeds.
	default:
		return nil, err
	}

	logger.Info("timer model loaded",
		"target", m.target,
		"lifetime_sessions", m.lifetimeCount)
	return m, nil
}

// SetConfig swaps the tunables, re-clamping the target into the new bounds.
func (m *Model) SetConfig(cfg Config) {
	m.cfg = cfg
	m.target = clamp(m.target, cfg.MinTarget, cfg.MaxTarget)
}

// Target returns the current focus-session target duration.
func (m *Model) Target() time.Duration { return m.target }

// LifetimeSessions returns the count of significant sessions ever adjusted.
func (m *Model) LifetimeSessions() int64 { return m.lifetimeCount }

// HistoricalAverage returns the lifetime mean significant-session length,
// or zero before any session has been recorded.
func (m *Model) HistoricalAverage() time.Duration {
	if m.lifetimeCount == 0 {
		return 0
	}
	return m.lifetimeTotal / time.Duration(m.lifetimeCount)
}

// Adjust folds one closed session into the model. Sessions below the
// significance floor are noise and change nothing. Lifetime totals update
// before the tier is applied, so the historical average already reflects
// this session when blending toward it.
func (m *Model) Adjust(session time.Duration) {
	if session < m.cfg.SignificanceFloor {
		return
	}

	m.lifetimeTotal += session
	m.lifetimeCount++
	hist := m.HistoricalAverage()

	before := m.target
	ratio := float64(session) / float64(m.target)

	switch {
	case ratio >= 1.2:
		m.target = time.Duration(float64(m.target) * m.cfg.SuccessGrowth)
	case ratio >= 1.0:
		m.target = time.Duration(float64(m.target) * m.cfg.ModestGrowth)
	case ratio >= 0.8:
		m.target = blend(m.target, hist, m.cfg.BlendRate)
	case ratio >= 0.6:
		m.target = blend(m.target, time.Duration(float64(hist)*0.8), m.cfg.BlendRate)
	default:
		m.target = blend(m.target, time.Duration(float64(hist)*0.7), m.cfg.BlendRate)
	}

	m.target = clamp(m.target, m.cfg.MinTarget, m.cfg.MaxTarget)
	m.Persist()

	m.logger.Info("timer target adjusted",
		"session", session,
		"ratio", ratio,
		"target_before", before,
		"target_after", m.target,
		"historical_avg", hist)
}

// Persist writes the model through to the global namespace. A failed write
// is logged; the in-memory model stays authoritative until the next commit.
func (m *Model) Persist() {
	st := persistedState{
		TargetMs:        m.target.Milliseconds(),
		LifetimeTotalMs: m.lifetimeTotal.Milliseconds(),
		LifetimeCount:   m.lifetimeCount,
	}
	if err := m.kv.Put(kv.GlobalKey(kv.FieldTimerModel), st); err != nil {
		m.logger.Error("failed to persist timer model", "error", err)
	}
}

// blend moves current toward goal by rate.
func blend(current, goal time.Duration, rate float64) time.Duration {
	return current + time.Duration(rate*float64(goal-current))
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
