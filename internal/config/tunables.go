package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Tunables are the behavioral constants that varied across hardware variants
// of the original appliance with no authoritative values: thresholds,
// debounce counts, timer bounds. They ship with defaults and load from a
// YAML file so bench tuning never needs a rebuild.
type Tunables struct {
	Trend   TrendTunables   `yaml:"trend"`
	Session SessionTunables `yaml:"session"`
	Timer   TimerTunables   `yaml:"timer"`
	Library LibraryTunables `yaml:"library"`
	Power   PowerTunables   `yaml:"power"`
}

// TrendTunables configures the light-sample filter.
type TrendTunables struct {
	Alpha  float64 `yaml:"alpha" validate:"gt=0,lt=1"`
	Window int     `yaml:"window" validate:"min=4,max=256"`
}

// SessionTunables configures the state machine.
type SessionTunables struct {
	PauseThreshold int `yaml:"pause_threshold" validate:"min=0,max=4095"`
	RestDurationMs int `yaml:"rest_duration_ms" validate:"min=1000"`
}

// TimerTunables configures the adaptive timer model.
type TimerTunables struct {
	MinTargetMs         int     `yaml:"min_target_ms" validate:"min=60000"`
	MaxTargetMs         int     `yaml:"max_target_ms" validate:"min=60000"`
	InitialTargetMs     int     `yaml:"initial_target_ms" validate:"min=60000"`
	SignificanceFloorMs int     `yaml:"significance_floor_ms" validate:"min=0"`
	SuccessGrowth       float64 `yaml:"success_growth" validate:"gte=1,lte=2"`
	ModestGrowth        float64 `yaml:"modest_growth" validate:"gte=1,lte=2"`
	BlendRate           float64 `yaml:"blend_rate" validate:"gt=0,lt=1"`
}

// LibraryTunables configures the book table.
type LibraryTunables struct {
	Capacity int `yaml:"capacity" validate:"min=1,max=64"`
}

// PowerTunables configures sleep triggers and wake conditions.
type PowerTunables struct {
	SleepThreshold int `yaml:"sleep_threshold" validate:"min=0,max=4095"`
	DarkDebounce   int `yaml:"dark_debounce" validate:"min=1,max=50"`
	IdleTimeoutMs  int `yaml:"idle_timeout_ms" validate:"min=10000"`
	WakeLightLevel int `yaml:"wake_light_level" validate:"min=0,max=4095"`
	SafetyTimerMs  int `yaml:"safety_timer_ms" validate:"min=60000"`
}

// DefaultTunables returns the stock values.
func DefaultTunables() Tunables {
	return Tunables{
		Trend: TrendTunables{
			Alpha:  0.05,
			Window: 32,
		},
		Session: SessionTunables{
			PauseThreshold: 180,
			RestDurationMs: int((5 * time.Minute).Milliseconds()),
		},
		Timer: TimerTunables{
			MinTargetMs:         int((5 * time.Minute).Milliseconds()),
			MaxTargetMs:         int((60 * time.Minute).Milliseconds()),
			InitialTargetMs:     int((25 * time.Minute).Milliseconds()),
			SignificanceFloorMs: int((5 * time.Minute).Milliseconds()),
			SuccessGrowth:       1.05,
			ModestGrowth:        1.02,
			BlendRate:           0.15,
		},
		Library: LibraryTunables{
			Capacity: 10,
		},
		Power: PowerTunables{
			SleepThreshold: 60,
			DarkDebounce:   3,
			IdleTimeoutMs:  int((10 * time.Minute).Milliseconds()),
			WakeLightLevel: 200,
			SafetyTimerMs:  int((30 * time.Minute).Milliseconds()),
		},
	}
}

// LoadTunables reads, normalizes, and validates the tunables file. An empty
// path returns the defaults.
func LoadTunables(path string) (Tunables, error) {
	t := DefaultTunables()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- tunables path comes from config
	if err != nil {
		return t, fmt.Errorf("read tunables: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tunables: %w", err)
	}

	NormalizeTunables(&t)
	if err := ValidateTunables(&t); err != nil {
		return t, err
	}
	return t, nil
}

// NormalizeTunables fills zero values with defaults. It is allowed to mutate
// the configuration and must run before ValidateTunables.
func NormalizeTunables(t *Tunables) {
	d := DefaultTunables()

	if t.Trend.Alpha == 0 {
		t.Trend.Alpha = d.Trend.Alpha
	}
	if t.Trend.Window == 0 {
		t.Trend.Window = d.Trend.Window
	}
	if t.Session.PauseThreshold == 0 {
		t.Session.PauseThreshold = d.Session.PauseThreshold
	}
	if t.Session.RestDurationMs == 0 {
		t.Session.RestDurationMs = d.Session.RestDurationMs
	}
	if t.Timer.MinTargetMs == 0 {
		t.Timer.MinTargetMs = d.Timer.MinTargetMs
	}
	if t.Timer.MaxTargetMs == 0 {
		t.Timer.MaxTargetMs = d.Timer.MaxTargetMs
	}
	if t.Timer.InitialTargetMs == 0 {
		t.Timer.InitialTargetMs = d.Timer.InitialTargetMs
	}
	if t.Timer.SignificanceFloorMs == 0 {
		t.Timer.SignificanceFloorMs = d.Timer.SignificanceFloorMs
	}
	if t.Timer.SuccessGrowth == 0 {
		t.Timer.SuccessGrowth = d.Timer.SuccessGrowth
	}
	if t.Timer.ModestGrowth == 0 {
		t.Timer.ModestGrowth = d.Timer.ModestGrowth
	}
	if t.Timer.BlendRate == 0 {
		t.Timer.BlendRate = d.Timer.BlendRate
	}
	if t.Library.Capacity == 0 {
		t.Library.Capacity = d.Library.Capacity
	}
	if t.Power.SleepThreshold == 0 {
		t.Power.SleepThreshold = d.Power.SleepThreshold
	}
	if t.Power.DarkDebounce == 0 {
		t.Power.DarkDebounce = d.Power.DarkDebounce
	}
	if t.Power.IdleTimeoutMs == 0 {
		t.Power.IdleTimeoutMs = d.Power.IdleTimeoutMs
	}
	if t.Power.WakeLightLevel == 0 {
		t.Power.WakeLightLevel = d.Power.WakeLightLevel
	}
	if t.Power.SafetyTimerMs == 0 {
		t.Power.SafetyTimerMs = d.Power.SafetyTimerMs
	}
}

// ValidateTunables enforces field ranges plus cross-field constraints the
// struct tags cannot express.
func ValidateTunables(t *Tunables) error {
	v := validator.New()
	if err := v.Struct(t); err != nil {
		return fmt.Errorf("tunables validation: %w", err)
	}

	if t.Timer.MinTargetMs >= t.Timer.MaxTargetMs {
		return fmt.Errorf("tunables validation: min_target_ms (%d) must be below max_target_ms (%d)",
			t.Timer.MinTargetMs, t.Timer.MaxTargetMs)
	}
	if t.Timer.InitialTargetMs < t.Timer.MinTargetMs || t.Timer.InitialTargetMs > t.Timer.MaxTargetMs {
		return fmt.Errorf("tunables validation: initial_target_ms (%d) outside [%d, %d]",
			t.Timer.InitialTargetMs, t.Timer.MinTargetMs, t.Timer.MaxTargetMs)
	}
	if t.Power.SleepThreshold >= t.Session.PauseThreshold {
		return fmt.Errorf("tunables validation: sleep_threshold (%d) must be below pause_threshold (%d)",
			t.Power.SleepThreshold, t.Session.PauseThreshold)
	}
	if t.Session.RestDurationMs >= t.Power.IdleTimeoutMs {
		return fmt.Errorf("tunables validation: rest_duration_ms (%d) must be below idle_timeout_ms (%d), or every rest would suspend the device",
			t.Session.RestDurationMs, t.Power.IdleTimeoutMs)
	}
	return nil
}

// Duration accessors; YAML carries integer milliseconds.

// RestDuration returns the rest duration.
func (t SessionTunables) RestDuration() time.Duration {
	return time.Duration(t.RestDurationMs) * time.Millisecond
}

// MinTarget returns the timer lower bound.
func (t TimerTunables) MinTarget() time.Duration {
	return time.Duration(t.MinTargetMs) * time.Millisecond
}

// MaxTarget returns the timer upper bound.
func (t TimerTunables) MaxTarget() time.Duration {
	return time.Duration(t.MaxTargetMs) * time.Millisecond
}

// InitialTarget returns the fresh-device target.
func (t TimerTunables) InitialTarget() time.Duration {
	return time.Duration(t.InitialTargetMs) * time.Millisecond
}

// SignificanceFloor returns the noise floor.
func (t TimerTunables) SignificanceFloor() time.Duration {
	return time.Duration(t.SignificanceFloorMs) * time.Millisecond
}

// IdleTimeout returns the idle suspend window.
func (t PowerTunables) IdleTimeout() time.Duration {
	return time.Duration(t.IdleTimeoutMs) * time.Millisecond
}

// SafetyTimer returns the fallback wake interval.
func (t PowerTunables) SafetyTimer() time.Duration {
	return time.Duration(t.SafetyTimerMs) * time.Millisecond
}
