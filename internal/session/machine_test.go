package session

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/focustimer"
	"github.com/readtrack/readtrack-device/internal/kv"
	"github.com/readtrack/readtrack-device/internal/library"
)

const (
	brightSample = 800
	darkSample   = 40
)

var (
	tagA = driver.TagID{0x04, 0xaa}
	tagB = driver.TagID{0x04, 0xbb}
)

type fixture struct {
	machine *Machine
	lib     *library.Store
	timer   *focustimer.Model
	clk     *clock.Fake
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := kv.OpenInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	lib, err := library.NewStore(store, log, clk, capacity)
	require.NoError(t, err)

	timer, err := focustimer.Load(store, log, focustimer.DefaultConfig())
	require.NoError(t, err)

	return &fixture{
		machine: New(lib, timer, clk, log, DefaultConfig()),
		lib:     lib,
		timer:   timer,
		clk:     clk,
	}
}

func (f *fixture) tickBright() TickResult {
	return f.machine.Tick(TickInput{Sample: brightSample})
}

func (f *fixture) tickDark() TickResult {
	return f.machine.Tick(TickInput{Sample: darkSample})
}

func (f *fixture) tickTag(tag driver.TagID) TickResult {
	return f.machine.Tick(TickInput{Sample: brightSample, Tag: tag, TagPresent: true})
}

func TestTagAttachStartsReading(t *testing.T) {
	f := newFixture(t, 3)

	res := f.tickTag(tagA)

	assert.Equal(t, NoBook, res.From)
	assert.Equal(t, Reading, res.To)
	assert.Contains(t, res.Cues, driver.CueBookAttached)
	require.NotNil(t, f.machine.Book())
	assert.True(t, f.machine.Book().TagUID.Equal(tagA))

	uid, ok := f.lib.LastActiveTag()
	require.True(t, ok)
	assert.True(t, uid.Equal(tagA))
}

func TestSameTagIsNotAnEvent(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	f.clk.Advance(2 * time.Minute)
	res := f.tickTag(tagA)

	assert.Equal(t, Reading, res.From)
	assert.Equal(t, Reading, res.To)
	assert.Empty(t, res.Cues)
	assert.Equal(t, 2*time.Minute, f.machine.Elapsed())
}

func TestLowLightPausesAndResumePreservesAccumulated(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	f.clk.Advance(10 * time.Minute)
	res := f.tickDark()
	assert.Equal(t, PausedLowLight, res.To)
	assert.Equal(t, 10*time.Minute, f.machine.Elapsed())

	// Time in the pause does not count as reading.
	f.clk.Advance(7 * time.Minute)
	assert.Equal(t, 10*time.Minute, f.machine.Elapsed())

	res = f.tickBright()
	assert.Equal(t, Reading, res.To)

	f.clk.Advance(5 * time.Minute)
	assert.Equal(t, 15*time.Minute, f.machine.Elapsed())
}

func TestTargetReachedCompletesFocusCycle(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	// 10m reading, a pause, then 15m more: 25m total reaches the target.
	f.clk.Advance(10 * time.Minute)
	f.tickDark()
	f.clk.Advance(3 * time.Minute)
	f.tickBright()
	f.clk.Advance(15 * time.Minute)

	res := f.tickBright()

	assert.Equal(t, Reading, res.From)
	assert.Equal(t, Resting, res.To)
	assert.Contains(t, res.Cues, driver.CueFocusComplete)

	book := f.machine.Book()
	require.NotNil(t, book)
	assert.Equal(t, int64(1500), book.TotalSeconds)
	assert.Equal(t, int64(1), book.SessionCount)
	assert.Equal(t, int64(1), book.FocusCycles)

	// Exactly on target: modest growth.
	want := time.Duration(float64(25*time.Minute) * 1.02)
	assert.Equal(t, want, f.timer.Target())
}

func TestOverrunSessionGrowsTargetStrongly(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	// No tick lands until 30m in: the whole overrun counts, and the ratio
	// of 1.2 triggers the strong growth tier.
	f.clk.Advance(30 * time.Minute)
	res := f.tickBright()

	assert.Equal(t, Resting, res.To)
	assert.Equal(t, int64(1), f.machine.Book().FocusCycles)

	want := time.Duration(float64(25*time.Minute) * 1.05)
	assert.Equal(t, want, f.timer.Target())
}

func TestRestEndsBackIntoReading(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)
	f.clk.Advance(25 * time.Minute)
	f.tickBright()
	require.Equal(t, Resting, f.machine.State())

	// Mid-rest: nothing happens.
	f.clk.Advance(2 * time.Minute)
	res := f.tickBright()
	assert.Equal(t, Resting, res.To)

	f.clk.Advance(3 * time.Minute)
	res = f.tickBright()
	assert.Equal(t, Reading, res.To)
	assert.Contains(t, res.Cues, driver.CueRestOver)
	assert.Equal(t, time.Duration(0), f.machine.Elapsed())
}

func TestBookSwitchCommitsPriorSession(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	f.clk.Advance(6 * time.Minute)
	res := f.tickTag(tagB)

	assert.Equal(t, Reading, res.To)
	assert.Contains(t, res.Cues, driver.CueBookAttached)
	assert.True(t, f.machine.Book().TagUID.Equal(tagB))
	assert.Equal(t, time.Duration(0), f.machine.Elapsed())

	// The prior book got exactly one committed session, no focus cycle.
	prior, ok := f.lib.FindByTag(tagA)
	require.True(t, ok)
	assert.Equal(t, int64(360), prior.TotalSeconds)
	assert.Equal(t, int64(1), prior.SessionCount)
	assert.Equal(t, int64(0), prior.FocusCycles)

	// A 6m session against a 25m target pulls the target down.
	assert.Less(t, f.timer.Target(), 25*time.Minute)
}

func TestBookSwitchBelowFloorLeavesTimerAlone(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	f.clk.Advance(2 * time.Minute)
	f.tickTag(tagB)

	// The session still commits to the library; the timer model treats it
	// as noise.
	prior, ok := f.lib.FindByTag(tagA)
	require.True(t, ok)
	assert.Equal(t, int64(120), prior.TotalSeconds)
	assert.Equal(t, 25*time.Minute, f.timer.Target())
}

func TestLibraryFullFallsBackToNoBook(t *testing.T) {
	f := newFixture(t, 2)
	f.tickTag(tagA)
	f.clk.Advance(6 * time.Minute)
	f.tickTag(tagB)

	f.clk.Advance(6 * time.Minute)
	res := f.tickTag(driver.TagID{0x04, 0xcc})

	assert.Equal(t, NoBook, res.To)
	assert.Equal(t, "library full", res.Notice)
	assert.Contains(t, res.Cues, driver.CueLibraryFull)
	assert.Nil(t, f.machine.Book())

	// The in-hand book's session was committed before the attach failed.
	prior, ok := f.lib.FindByTag(tagB)
	require.True(t, ok)
	assert.Equal(t, int64(360), prior.TotalSeconds)
}

func TestKnownTagAttachesOnFullLibrary(t *testing.T) {
	f := newFixture(t, 2)
	f.tickTag(tagA)
	f.tickTag(tagB)

	res := f.tickTag(tagA)

	assert.Equal(t, Reading, res.To)
	assert.Contains(t, res.Cues, driver.CueBookAttached)
	assert.True(t, f.machine.Book().TagUID.Equal(tagA))
}

func TestPrepareSuspendFlushesSession(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)
	f.clk.Advance(8 * time.Minute)

	f.machine.PrepareSuspend()

	assert.Equal(t, SleepPending, f.machine.State())

	rec, ok := f.lib.FindByTag(tagA)
	require.True(t, ok)
	assert.Equal(t, int64(480), rec.TotalSeconds)
	assert.Equal(t, int64(0), rec.FocusCycles)

	// Ticks after the flush are inert.
	res := f.tickBright()
	assert.Equal(t, SleepPending, res.From)
	assert.Equal(t, SleepPending, res.To)
	assert.Empty(t, res.Cues)
}

func TestPrepareSuspendWithNoSessionIsClean(t *testing.T) {
	f := newFixture(t, 3)

	f.machine.PrepareSuspend()

	assert.Equal(t, SleepPending, f.machine.State())
	assert.Equal(t, int64(0), f.lib.TotalReadingSeconds())
}

func TestAbortSuspendReturnsToService(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)
	f.clk.Advance(8 * time.Minute)

	f.machine.PrepareSuspend()
	require.Equal(t, SleepPending, f.machine.State())

	f.machine.AbortSuspend()
	assert.Equal(t, NoBook, f.machine.State())
	assert.Nil(t, f.machine.Book())

	// Fully operable again: the tag still in range re-attaches, with the
	// pre-suspend session already committed exactly once.
	res := f.tickTag(tagA)
	assert.Equal(t, Reading, res.To)

	rec, ok := f.lib.FindByTag(tagA)
	require.True(t, ok)
	assert.Equal(t, int64(480), rec.TotalSeconds)
	assert.Equal(t, int64(1), rec.SessionCount)
}

func TestAbortSuspendOutsideSleepPendingIsNoOp(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	f.machine.AbortSuspend()

	assert.Equal(t, Reading, f.machine.State())
	require.NotNil(t, f.machine.Book())
}

func TestResumeWithRecordEntersReading(t *testing.T) {
	f := newFixture(t, 3)
	rec, err := f.lib.CreateOrAttach(tagA)
	require.NoError(t, err)

	f.machine.Resume(rec)

	assert.Equal(t, Reading, f.machine.State())
	assert.Same(t, rec, f.machine.Book())
	assert.Equal(t, time.Duration(0), f.machine.Elapsed())
}

func TestResumeWithoutRecordEntersNoBook(t *testing.T) {
	f := newFixture(t, 3)

	f.machine.Resume(nil)

	assert.Equal(t, NoBook, f.machine.State())
	assert.Nil(t, f.machine.Book())
}

func TestPausedSessionAbandonedOnSwitchKeepsAccumulated(t *testing.T) {
	f := newFixture(t, 3)
	f.tickTag(tagA)

	f.clk.Advance(10 * time.Minute)
	f.tickDark()
	f.clk.Advance(5 * time.Minute)

	// Switching while paused commits only the banked reading time.
	f.tickTag(tagB)

	prior, ok := f.lib.FindByTag(tagA)
	require.True(t, ok)
	assert.Equal(t, int64(600), prior.TotalSeconds)
}
