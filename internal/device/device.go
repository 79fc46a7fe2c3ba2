// Package device owns the top-level polling loop. All mutable state lives on
// an explicit Context passed into each component rather than in package
// globals, so every component can be exercised without hardware bring-up.
package device

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/readtrack/readtrack-device/internal/bus"
	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/config"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/focustimer"
	"github.com/readtrack/readtrack-device/internal/library"
	"github.com/readtrack/readtrack-device/internal/power"
	"github.com/readtrack/readtrack-device/internal/session"
	"github.com/readtrack/readtrack-device/internal/trend"
)

// peripheralFailLimit marks a peripheral unavailable after this many
// consecutive errors. The core keeps running with degraded input rather
// than halting.
const peripheralFailLimit = 3

// tagPollTimeout bounds one proximity poll so a wedged reader cannot hold
// the bus past its tick.
const tagPollTimeout = 50 * time.Millisecond

// Peripherals groups the hardware collaborators.
type Peripherals struct {
	Display driver.Display
	Tags    driver.TagReader
	Light   driver.LightSensor
	Audio   driver.Audio
	Power   driver.PowerController
}

// Context is the explicit device state owned by the loop and passed by
// reference into each component's operations.
type Context struct {
	Logger  *slog.Logger
	Clock   clock.Clock
	Trend   *trend.Filter
	Library *library.Store
	Timer   *focustimer.Model
	Machine *session.Machine
	Power   *power.Orchestrator
	Bus     *bus.Lease

	Peripherals Peripherals
}

// Loop drives one tick of the whole device per polling interval.
type Loop struct {
	ctx        *Context
	logger     *slog.Logger
	tagLimiter *rate.Limiter

	pendingTunables atomic.Pointer[config.Tunables]

	lastSample int
	lightFails int
	lightDown  bool
	tagFails   int
	tagDown    bool
	notice     string
}

// NewLoop creates the loop. tagPollsPerSecond rate-limits proximity polling
// so it cannot starve display refresh on the shared bus.
func NewLoop(ctx *Context, tagPollsPerSecond float64) *Loop {
	return &Loop{
		ctx:        ctx,
		logger:     ctx.Logger,
		tagLimiter: rate.NewLimiter(rate.Limit(tagPollsPerSecond), 1),
	}
}

// ApplyTunables queues a tunables revision; the loop applies it at the top
// of the next tick. Safe to call from the reload watcher goroutine.
func (l *Loop) ApplyTunables(t config.Tunables) {
	l.pendingTunables.Store(&t)
}

// Resume classifies the wake reason and reconstructs session state. Called
// once, before the first tick. When the wake came from light or the safety
// timer and the persisted last-active book's tag is still present, the
// machine re-attaches directly into Reading.
func (l *Loop) Resume() power.WakeReason {
	reason := l.ctx.Power.ClassifyWake()

	var rec *library.BookRecord
	if reason == power.LightWake || reason == power.TimerWake {
		if uid, ok := l.ctx.Library.LastActiveTag(); ok {
			if tag, present := l.pollTag(); present && tag.Equal(uid) {
				rec, _ = l.ctx.Library.FindByTag(uid)
			}
		}
	}

	l.ctx.Machine.Resume(rec)
	return reason
}

// Run ticks the device until the context is cancelled or the device
// suspends. One goroutine; no overlap between ticks.
func (l *Loop) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			l.logger.Info("loop stopped")
			return
		case <-ticker.C:
			if !l.Tick() {
				return
			}
		}
	}
}

// Tick runs one full poll cycle. Returns false once the device has entered
// deep sleep (execution is over until hardware wake).
func (l *Loop) Tick() bool {
	now := l.ctx.Clock.Now()

	if t := l.pendingTunables.Swap(nil); t != nil {
		l.applyTunables(*t)
	}

	raw := l.readLight()
	filtered := l.ctx.Trend.Observe(raw, l.ctx.Machine.State() == session.Reading)

	in := session.TickInput{Sample: filtered.Sample}
	if tag, present := l.maybePollTag(); present {
		in.Tag = tag
		in.TagPresent = true
	}

	res := l.ctx.Machine.Tick(in)
	attached := false
	for _, cue := range res.Cues {
		l.ctx.Peripherals.Audio.Play(cue)
		if cue == driver.CueBookAttached {
			attached = true
		}
	}
	if attached {
		// A successful attachment supersedes any standing notice.
		l.notice = ""
	}
	if res.Notice != "" {
		l.notice = res.Notice
	}

	// A new attachment and active reading count as activity. Continued
	// presence of a tag does not: a closed book left in the dark must
	// still walk into sleep.
	if attached || l.ctx.Machine.State() == session.Reading {
		l.ctx.Power.NoteActivity(now)
	}

	if l.ctx.Power.ShouldSleep(filtered.Sample, now) {
		l.ctx.Peripherals.Audio.Play(driver.CueSleep)
		l.render(filtered) // last frame before the display powers down
		if err := l.ctx.Power.PrepareSleep(); err != nil {
			// The platform refused to power down. Put the machine back in
			// service so later ticks stay responsive and a fresh debounce
			// window can retry the suspend.
			l.ctx.Machine.AbortSuspend()
			return true
		}
		l.ctx.Machine.EnterDeepSleep()
		return false
	}

	l.render(filtered)
	return true
}

// readLight samples the ambient-light sensor, holding the last sample when
// the sensor misbehaves and marking it unavailable after repeated failures.
func (l *Loop) readLight() int {
	raw, err := l.ctx.Peripherals.Light.ReadRaw()
	if err != nil {
		l.lightFails++
		if l.lightFails == peripheralFailLimit && !l.lightDown {
			l.lightDown = true
			l.logger.Error("light sensor unavailable, holding last sample", "error", err)
		}
		return l.lastSample
	}
	l.lightFails = 0
	if l.lightDown {
		l.lightDown = false
		l.logger.Info("light sensor recovered")
	}
	l.lastSample = raw
	return raw
}

// maybePollTag polls the reader when the rate limiter and the bus both
// allow it. Losing the bus just skips this tick; presence is re-polled
// frequently.
func (l *Loop) maybePollTag() (driver.TagID, bool) {
	if l.tagDown || !l.tagLimiter.Allow() {
		return nil, false
	}
	return l.pollTag()
}

// pollTag runs one bus-guarded proximity poll.
func (l *Loop) pollTag() (driver.TagID, bool) {
	release, ok := l.ctx.Bus.TryAcquire("tag")
	if !ok {
		return nil, false
	}
	defer release()

	tag, present, err := l.ctx.Peripherals.Tags.PollTag(tagPollTimeout)
	if err != nil {
		l.tagFails++
		if l.tagFails >= peripheralFailLimit && !l.tagDown {
			l.tagDown = true
			l.logger.Error("tag reader unavailable, continuing without tag input", "error", err)
		}
		return nil, false
	}
	l.tagFails = 0
	return tag, present
}

// render draws the current frame, best-effort: a failed or skipped render is
// repainted next tick anyway.
func (l *Loop) render(filtered trend.Filtered) {
	release, ok := l.ctx.Bus.TryAcquire("display")
	if !ok {
		return
	}
	defer release()

	vm := l.viewModel(filtered)
	if err := l.ctx.Peripherals.Display.Render(vm); err != nil {
		l.logger.Debug("render failed", "error", err)
	}
}

// viewModel snapshots the device for the display.
func (l *Loop) viewModel(filtered trend.Filtered) driver.ViewModel {
	m := l.ctx.Machine
	vm := driver.ViewModel{
		State:          m.State().String(),
		ElapsedSeconds: int64(m.Elapsed() / time.Second),
		TargetSeconds:  int64(l.ctx.Timer.Target() / time.Second),
		RestSeconds:    int64(m.RestElapsed() / time.Second),
		Smoothed:       filtered.Smoothed,
		Trend:          l.ctx.Trend.History(),
		LibraryUsed:    l.ctx.Library.ActiveCount(),
		LibraryCap:     l.ctx.Library.Capacity(),
		LifetimeSecs:   l.ctx.Library.TotalReadingSeconds(),
		Notice:         l.notice,
	}
	if book := m.Book(); book != nil {
		vm.BookName = book.Name
	}
	return vm
}

// applyTunables pushes a reloaded tunables revision into the components.
// Capacity changes require a restart; everything else takes effect now.
func (l *Loop) applyTunables(t config.Tunables) {
	l.ctx.Machine.SetConfig(session.Config{
		PauseThreshold: t.Session.PauseThreshold,
		RestDuration:   t.Session.RestDuration(),
	})
	l.ctx.Timer.SetConfig(focustimer.Config{
		MinTarget:         t.Timer.MinTarget(),
		MaxTarget:         t.Timer.MaxTarget(),
		InitialTarget:     t.Timer.InitialTarget(),
		SignificanceFloor: t.Timer.SignificanceFloor(),
		SuccessGrowth:     t.Timer.SuccessGrowth,
		ModestGrowth:      t.Timer.ModestGrowth,
		BlendRate:         t.Timer.BlendRate,
	})
	l.ctx.Power.SetConfig(power.Config{
		SleepThreshold: t.Power.SleepThreshold,
		DarkDebounce:   t.Power.DarkDebounce,
		IdleTimeout:    t.Power.IdleTimeout(),
		WakeLightLevel: t.Power.WakeLightLevel,
		SafetyTimer:    t.Power.SafetyTimer(),
	})
	l.logger.Info("tunables applied",
		"pause_threshold", t.Session.PauseThreshold,
		"sleep_threshold", t.Power.SleepThreshold,
		"dark_debounce", t.Power.DarkDebounce)
}
