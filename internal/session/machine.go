// Package session is the central controller: it consumes filtered light
// samples, tag-detection events, and elapsed time, owns the transitions
// between reading, paused, resting, and sleeping, and drives the library
// store and timer model on session boundaries.
//
// Ordering guarantee on every session close: library commit happens before
// the timer adjustment, which happens before the focus-cycle increment,
// which happens before the transition into Resting. A crash between steps
// leaves the library as the most up-to-date source of truth.
package session

import (
	"log/slog"
	"time"

	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/errors"
	"github.com/readtrack/readtrack-device/internal/focustimer"
	"github.com/readtrack/readtrack-device/internal/library"
)

// Config holds the machine's tunables.
type Config struct {
	// PauseThreshold: an instantaneous sample below this while Reading
	// moves to PausedLowLight.
	PauseThreshold int
	// RestDuration is the fixed rest between focus cycles.
	RestDuration time.Duration
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		PauseThreshold: 180,
		RestDuration:   5 * time.Minute,
	}
}

// TickInput is one poll tick's worth of sensor state.
type TickInput struct {
	// Sample is the instantaneous filtered light reading.
	Sample int
	// Tag and TagPresent report the proximity poll result, when one ran
	// this tick. Repeated detection of the same UID is "still present".
	Tag        driver.TagID
	TagPresent bool
}

// TickResult reports what the tick did, for the loop to render and sound.
type TickResult struct {
	From, To State
	// Cues to play, in order.
	Cues []driver.Cue
	// Notice is a user-visible condition (e.g. library full).
	Notice string
}

// Machine is the session state machine. It runs on the single control loop;
// every method is synchronous and runs to completion within one tick.
type Machine struct {
	lib    *library.Store
	timer  *focustimer.Model
	clk    clock.Clock
	logger *slog.Logger
	cfg    Config

	state        State
	book         *library.BookRecord
	sessionStart time.Time
	accumulated  time.Duration
	restStart    time.Time
}

// New creates a machine in the NoBook state.
func New(lib *library.Store, timer *focustimer.Model, clk clock.Clock, logger *slog.Logger, cfg Config) *Machine {
	return &Machine{
		lib:    lib,
		timer:  timer,
		clk:    clk,
		logger: logger,
		cfg:    cfg,
		state:  NoBook,
	}
}

// SetConfig swaps the tunables; takes effect on the next tick.
func (m *Machine) SetConfig(cfg Config) { m.cfg = cfg }

// State returns the current machine state.
func (m *Machine) State() State { return m.state }

// Book returns the current book record, or nil in NoBook.
func (m *Machine) Book() *library.BookRecord { return m.book }

// Elapsed returns the in-progress session duration: committed-pending
// accumulation plus live time when Reading.
func (m *Machine) Elapsed() time.Duration {
	d := m.accumulated
	if m.state == Reading {
		d += m.clk.Now().Sub(m.sessionStart)
	}
	return d
}

// RestElapsed returns time spent in the current rest, or zero outside Resting.
func (m *Machine) RestElapsed() time.Duration {
	if m.state != Resting {
		return 0
	}
	return m.clk.Now().Sub(m.restStart)
}

// Tick evaluates one poll tick. Tag-detection events take priority over
// light-based transitions, so a book switch is never masked by the momentary
// light dip that accompanies handling the book.
func (m *Machine) Tick(in TickInput) TickResult {
	now := m.clk.Now()
	res := TickResult{From: m.state, To: m.state}

	if m.state == SleepPending || m.state == DeepSleep {
		return res
	}

	tagHandled := false
	if in.TagPresent && !in.Tag.IsZero() {
		tagHandled = m.handleTag(now, in.Tag, &res)
	}

	if !tagHandled {
		m.handleLight(now, in.Sample, &res)
	}

	res.To = m.state
	if res.From != res.To {
		m.logger.Debug("state transition",
			"from", res.From.String(),
			"to", res.To.String(),
			"sample", in.Sample)
	}
	return res
}

// handleTag processes a tag detection. Returns true when the tag caused a
// transition, which suppresses light evaluation for this tick.
func (m *Machine) handleTag(now time.Time, tag driver.TagID, res *TickResult) bool {
	// Same book still present: not an event.
	if m.book != nil && m.book.TagUID.Equal(tag) {
		return false
	}

	// A different book while one is in hand: commit the in-progress
	// session to the prior record before attaching the new one.
	if m.book != nil {
		m.closeSession(now, "book_switch")
	}

	rec, err := m.lib.CreateOrAttach(tag)
	if err != nil {
		if errors.Is(err, errors.ErrLibraryFull) {
			// Reported, user-visible, non-fatal: the detection is simply
			// not attached to a new record.
			m.logger.Warn("library full, tag not attached", "tag", tag.String())
			res.Notice = "library full"
			res.Cues = append(res.Cues, driver.CueLibraryFull)
			// The prior book's session was already committed and the new
			// book cannot be tracked, so fall back to NoBook.
			m.book = nil
			m.state = NoBook
			return true
		}
		m.logger.Error("attach failed", "tag", tag.String(), "error", err)
		return true
	}

	m.book = rec
	m.accumulated = 0
	m.sessionStart = now
	m.state = Reading
	m.lib.SetLastActiveTag(rec.TagUID)
	res.Cues = append(res.Cues, driver.CueBookAttached)

	m.logger.Info("book attached",
		"book", rec.Name,
		"tag", tag.String(),
		"target", m.timer.Target())
	return true
}

// handleLight processes light-based transitions for the tick.
func (m *Machine) handleLight(now time.Time, sample int, res *TickResult) {
	switch m.state {
	case Reading:
		if sample < m.cfg.PauseThreshold {
			// Bank the elapsed reading time; the timer restarts on resume.
			m.accumulated += now.Sub(m.sessionStart)
			m.state = PausedLowLight
			return
		}
		if m.accumulated+now.Sub(m.sessionStart) >= m.timer.Target() {
			m.completeFocusCycle(now, res)
		}

	case PausedLowLight:
		if sample >= m.cfg.PauseThreshold {
			// Restart the session timer from now, preserving what was
			// already accumulated.
			m.sessionStart = now
			m.state = Reading
		}

	case Resting:
		if now.Sub(m.restStart) >= m.cfg.RestDuration {
			m.accumulated = 0
			m.sessionStart = now
			m.state = Reading
			res.Cues = append(res.Cues, driver.CueRestOver)
		}
	}
}

// completeFocusCycle closes a target-reached session with the mandated side
// effect order: commit, adjust, focus-cycle, then Resting.
func (m *Machine) completeFocusCycle(now time.Time, res *TickResult) {
	total := m.accumulated + now.Sub(m.sessionStart)
	m.accumulated = 0

	m.lib.CommitSession(m.book, total)
	m.timer.Adjust(total)
	m.lib.RecordFocusCycleCompleted(m.book)

	m.restStart = now
	m.state = Resting
	res.Cues = append(res.Cues, driver.CueFocusComplete)

	m.logger.Info("focus cycle reached",
		"book", m.book.Name,
		"session", total,
		"next_target", m.timer.Target())
}

// closeSession commits any in-progress session as an abandonment: the
// library is updated and the timer model adjusted (the model itself ignores
// sessions under its significance floor), but no focus cycle is credited.
func (m *Machine) closeSession(now time.Time, reason string) {
	if m.book == nil {
		return
	}
	total := m.accumulated
	if m.state == Reading {
		total += now.Sub(m.sessionStart)
	}
	m.accumulated = 0
	if total <= 0 {
		return
	}

	m.lib.CommitSession(m.book, total)
	m.timer.Adjust(total)

	m.logger.Info("session closed",
		"book", m.book.Name,
		"session", total,
		"reason", reason)
}

// PrepareSuspend commits any in-progress session, persists the timer model,
// and moves to SleepPending. Called exactly once per suspend by the power
// orchestrator's flush path.
func (m *Machine) PrepareSuspend() {
	now := m.clk.Now()
	m.closeSession(now, "suspend")
	m.timer.Persist()
	m.state = SleepPending

	m.logger.Info("session state flushed for suspend")
}

// EnterDeepSleep marks the machine's terminal pre-suspend state.
func (m *Machine) EnterDeepSleep() {
	m.state = DeepSleep
}

// AbortSuspend returns the machine to service after the platform refused to
// power down. The in-progress session was already flushed by PrepareSuspend,
// so the device comes back as if freshly awake with no book; a tag still in
// range re-attaches on the next poll.
func (m *Machine) AbortSuspend() {
	if m.state != SleepPending {
		return
	}
	m.book = nil
	m.accumulated = 0
	m.state = NoBook

	m.logger.Warn("suspend aborted, returning to service")
}

// Resume reconstructs post-wake state. With a record (the persisted
// last-active book whose tag is still present) the machine re-attaches
// directly into Reading; otherwise it starts from NoBook.
func (m *Machine) Resume(rec *library.BookRecord) {
	now := m.clk.Now()
	m.accumulated = 0
	if rec != nil {
		m.book = rec
		m.sessionStart = now
		m.state = Reading
		m.logger.Info("resumed into reading", "book", rec.Name)
		return
	}
	m.book = nil
	m.state = NoBook
	m.logger.Info("resumed with no book")
}
