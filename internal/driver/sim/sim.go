// Package sim provides simulated drivers: scripted sensors, a terminal
// display, and a recording power controller. The simulator CLI and the
// package tests run the real loop against these instead of hardware.
package sim

import (
	"log/slog"
	"sync"
	"time"

	"github.com/readtrack/readtrack-device/internal/driver"
)

// LightScript replays a fixed sequence of raw samples, holding the final
// sample once the script is exhausted.
type LightScript struct {
	mu      sync.Mutex
	samples []int
	pos     int
}

// NewLightScript creates a scripted light sensor. An empty script reads as
// full darkness.
func NewLightScript(samples []int) *LightScript {
	return &LightScript{samples: samples}
}

// Append extends the script.
func (l *LightScript) Append(samples ...int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, samples...)
}

// ReadRaw returns the next scripted sample.
func (l *LightScript) ReadRaw() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.samples) == 0 {
		return 0, nil
	}
	s := l.samples[min(l.pos, len(l.samples)-1)]
	if l.pos < len(l.samples) {
		l.pos++
	}
	return s, nil
}

// TagScript replays tag poll results: a nil entry means no tag present. The
// final entry holds once the script is exhausted.
type TagScript struct {
	mu    sync.Mutex
	steps []driver.TagID
	pos   int
}

// NewTagScript creates a scripted tag reader.
func NewTagScript(steps []driver.TagID) *TagScript {
	return &TagScript{steps: steps}
}

// Append extends the script.
func (t *TagScript) Append(steps ...driver.TagID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, steps...)
}

// PollTag returns the next scripted poll result.
func (t *TagScript) PollTag(_ time.Duration) (driver.TagID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.steps) == 0 {
		return nil, false, nil
	}
	step := t.steps[min(t.pos, len(t.steps)-1)]
	if t.pos < len(t.steps) {
		t.pos++
	}
	if step == nil {
		return nil, false, nil
	}
	return step, true, nil
}

// ConsoleAudio logs cues instead of playing them.
type ConsoleAudio struct {
	Logger *slog.Logger
}

// Play logs the cue.
func (a ConsoleAudio) Play(cue driver.Cue) {
	a.Logger.Info("audio cue", "cue", string(cue))
}

// PowerSim stands in for the platform suspend primitive. Suspend latches a
// flag and returns nil; real hardware would not return.
type PowerSim struct {
	mu        sync.Mutex
	logger    *slog.Logger
	wake      driver.WakeSource
	wakeCfg   driver.WakeConfig
	parked    bool
	suspended bool
}

// NewPowerSim creates a power controller whose wake latch reads as source.
func NewPowerSim(logger *slog.Logger, source driver.WakeSource) *PowerSim {
	return &PowerSim{logger: logger, wake: source}
}

// ConfigureWake records the armed wake conditions.
func (p *PowerSim) ConfigureWake(cfg driver.WakeConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeCfg = cfg
	return nil
}

// ParkPins records that pins were parked.
func (p *PowerSim) ParkPins() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parked = true
	return nil
}

// Suspend latches the suspended flag.
func (p *PowerSim) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = true
	p.logger.Info("simulated suspend",
		"wake_light_level", p.wakeCfg.LightLevel,
		"safety_timer", p.wakeCfg.SafetyTimer)
	return nil
}

// WakeSource returns the configured wake latch.
func (p *PowerSim) WakeSource() driver.WakeSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wake
}

// Suspended reports whether Suspend has run.
func (p *PowerSim) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

// WakeConfigured returns the last armed wake conditions.
func (p *PowerSim) WakeConfigured() driver.WakeConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wakeCfg
}

// PinsParked reports whether ParkPins has run.
func (p *PowerSim) PinsParked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parked
}
