// Package power gates entry into deep sleep and classifies the cause of the
// subsequent resume. Its one hard rule: a failed shutdown step must never
// block the suspend itself — staying awake indefinitely is the worse failure
// for a microamp standby budget.
package power

import (
	"log/slog"
	"time"

	"github.com/readtrack/readtrack-device/internal/bus"
	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/errors"
	"github.com/readtrack/readtrack-device/internal/kv"
)

// WakeReason classifies why the device is running.
type WakeReason int

// Wake reasons.
const (
	ColdBoot WakeReason = iota
	LightWake
	TimerWake
	ButtonWake
)

// String returns the reason name.
func (r WakeReason) String() string {
	switch r {
	case LightWake:
		return "light_wake"
	case TimerWake:
		return "timer_wake"
	case ButtonWake:
		return "button_wake"
	default:
		return "cold_boot"
	}
}

// Config holds the orchestrator's tunables.
type Config struct {
	// SleepThreshold: samples below this count as darkness.
	SleepThreshold int
	// DarkDebounce is the number of consecutive sub-threshold samples
	// required to trigger sleep. Never a single sample: transient
	// occlusion must not suspend the device.
	DarkDebounce int
	// IdleTimeout suspends after this long without qualifying activity.
	IdleTimeout time.Duration
	// WakeLightLevel arms the level-triggered light wake.
	WakeLightLevel int
	// SafetyTimer is the coarse fallback wake.
	SafetyTimer time.Duration
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		SleepThreshold: 60,
		DarkDebounce:   3,
		IdleTimeout:    10 * time.Minute,
		WakeLightLevel: 200,
		SafetyTimer:    30 * time.Minute,
	}
}

// Flusher is the commit path invoked before power is cut. The session state
// machine implements it.
type Flusher interface {
	PrepareSuspend()
}

// Orchestrator decides when to suspend and runs the suspend sequence.
type Orchestrator struct {
	ctrl    driver.PowerController
	lease   *bus.Lease
	store   *kv.Store
	flusher Flusher
	clk     clock.Clock
	logger  *slog.Logger
	cfg     Config

	darkCount    int
	lastActivity time.Time
	prepared     bool

	classified bool
	reason     WakeReason
}

// New creates an orchestrator. Activity starts "now" so a freshly booted
// device gets a full idle window before its first suspend.
func New(ctrl driver.PowerController, lease *bus.Lease, store *kv.Store, flusher Flusher, clk clock.Clock, logger *slog.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		ctrl:         ctrl,
		lease:        lease,
		store:        store,
		flusher:      flusher,
		clk:          clk,
		logger:       logger,
		cfg:          cfg,
		lastActivity: clk.Now(),
	}
}

// SetConfig swaps the tunables; takes effect on the next tick.
func (o *Orchestrator) SetConfig(cfg Config) { o.cfg = cfg }

// NoteActivity resets both sleep triggers. Called on any qualifying
// activity: a tag event or active reading.
func (o *Orchestrator) NoteActivity(now time.Time) {
	o.darkCount = 0
	o.lastActivity = now
}

// ShouldSleep evaluates the tick's filtered sample against the two sleep
// triggers: sustained darkness (debounced) and the idle timeout.
func (o *Orchestrator) ShouldSleep(sample int, now time.Time) bool {
	if sample < o.cfg.SleepThreshold {
		o.darkCount++
	} else {
		o.darkCount = 0
	}

	if o.darkCount >= o.cfg.DarkDebounce {
		o.logger.Info("sleep trigger: sustained darkness",
			"consecutive_dark", o.darkCount,
			"threshold", o.cfg.SleepThreshold)
		return true
	}
	if now.Sub(o.lastActivity) >= o.cfg.IdleTimeout {
		o.logger.Info("sleep trigger: idle timeout",
			"idle", now.Sub(o.lastActivity),
			"timeout", o.cfg.IdleTimeout)
		return true
	}
	return false
}

// PrepareSleep runs the suspend sequence exactly once: flush session state
// through the machine's commit path, release the shared bus, park pins, arm
// the dual wake conditions, and suspend. Every step after the flush is
// best-effort; errors are logged and the sequence proceeds.
//
// On success Suspend never returns. A non-nil return therefore means the
// platform refused to power down.
func (o *Orchestrator) PrepareSleep() error {
	if o.prepared {
		return errors.Internal("prepare sleep called twice")
	}
	o.prepared = true

	o.flusher.PrepareSuspend()

	if err := o.store.Put(kv.GlobalKey(kv.FieldSuspendMarker), o.clk.Now()); err != nil {
		o.logger.Error("failed to persist suspend marker", "error", err)
	}

	o.lease.ForceRelease()

	if err := o.ctrl.ParkPins(); err != nil {
		o.logger.Error("pin parking failed, proceeding to suspend", "error", err)
	}

	wake := driver.WakeConfig{
		LightLevel:  o.cfg.WakeLightLevel,
		SafetyTimer: o.cfg.SafetyTimer,
	}
	if err := o.ctrl.ConfigureWake(wake); err != nil {
		o.logger.Error("wake configuration failed, proceeding to suspend", "error", err)
	}

	o.logger.Info("suspending",
		"wake_light_level", wake.LightLevel,
		"safety_timer", wake.SafetyTimer)

	if err := o.ctrl.Suspend(); err != nil {
		// Staying awake must not be permanent: clear the latch and the
		// triggers so the next debounce window or idle expiry retries,
		// and drop the marker so a later reboot is not misread as a
		// power loss in deep sleep.
		o.prepared = false
		o.darkCount = 0
		o.lastActivity = o.clk.Now()
		if derr := o.store.Delete(kv.GlobalKey(kv.FieldSuspendMarker)); derr != nil {
			o.logger.Error("failed to clear suspend marker", "error", derr)
		}
		o.logger.Error("suspend refused by platform, staying awake", "error", err)
		return err
	}
	return nil
}

// ClassifyWake reads the hardware wake latch once, at resume, before any
// other initialization. Subsequent calls return the first answer.
func (o *Orchestrator) ClassifyWake() WakeReason {
	if o.classified {
		return o.reason
	}
	o.classified = true

	switch o.ctrl.WakeSource() {
	case driver.WakeSourceLight:
		o.reason = LightWake
	case driver.WakeSourceTimer:
		o.reason = TimerWake
	case driver.WakeSourceButton:
		o.reason = ButtonWake
	default:
		o.reason = ColdBoot
	}

	// A suspend marker with a clear latch means power was lost in deep
	// sleep (battery pull or brownout). Worth a log line, nothing more.
	var suspendedAt time.Time
	err := o.store.Get(kv.GlobalKey(kv.FieldSuspendMarker), &suspendedAt)
	if err == nil {
		if o.reason == ColdBoot {
			o.logger.Warn("cold boot after suspend, wake latch lost",
				"suspended_at", suspendedAt)
		}
		if err := o.store.Delete(kv.GlobalKey(kv.FieldSuspendMarker)); err != nil {
			o.logger.Error("failed to clear suspend marker", "error", err)
		}
	}

	o.logger.Info("wake classified", "reason", o.reason.String())
	return o.reason
}
