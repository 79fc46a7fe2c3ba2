package library

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/errors"
	"github.com/readtrack/readtrack-device/internal/kv"
)

func newTestLibrary(t *testing.T, capacity int) (*Store, *kv.Store, *clock.Fake) {
	t.Helper()

	store, err := kv.OpenInMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	lib, err := NewStore(store, slog.New(slog.NewTextHandler(io.Discard, nil)), clk, capacity)
	require.NoError(t, err)
	return lib, store, clk
}

func TestCreateOrAttachAllocatesFirstFreeSlot(t *testing.T) {
	lib, _, _ := newTestLibrary(t, 3)

	rec, err := lib.CreateOrAttach(driver.TagID{0x04, 0xa1})
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Slot)
	assert.Equal(t, "Book 1", rec.Name)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(0), rec.TotalSeconds)
	assert.Equal(t, 1, lib.ActiveCount())
}

func TestCreateOrAttachReturnsExistingRecord(t *testing.T) {
	lib, _, _ := newTestLibrary(t, 3)
	uid := driver.TagID{0x04, 0xa1}

	first, err := lib.CreateOrAttach(uid)
	require.NoError(t, err)

	second, err := lib.CreateOrAttach(uid)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, lib.ActiveCount())
}

func TestCreateOrAttachFullTableUnchanged(t *testing.T) {
	lib, _, _ := newTestLibrary(t, 2)

	_, err := lib.CreateOrAttach(driver.TagID{0x01})
	require.NoError(t, err)
	_, err = lib.CreateOrAttach(driver.TagID{0x02})
	require.NoError(t, err)

	before := lib.Records()
	_, err = lib.CreateOrAttach(driver.TagID{0x03})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLibraryFull))

	// Reported, never evicted: the table is exactly as it was.
	assert.Equal(t, before, lib.Records())
	assert.Equal(t, 2, lib.ActiveCount())

	// A known tag still attaches on a full table.
	rec, err := lib.CreateOrAttach(driver.TagID{0x01})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Slot)
}

func TestCommitSessionUpdatesStatistics(t *testing.T) {
	lib, _, clk := newTestLibrary(t, 3)

	rec, err := lib.CreateOrAttach(driver.TagID{0x04})
	require.NoError(t, err)

	lib.CommitSession(rec, 20*time.Minute)
	lib.CommitSession(rec, 10*time.Minute)

	assert.Equal(t, int64(1800), rec.TotalSeconds)
	assert.Equal(t, int64(2), rec.SessionCount)
	assert.Equal(t, int64(900), rec.AvgSessionSeconds)
	assert.Equal(t, clk.Now(), rec.LastReadAt)
	assert.Equal(t, int64(1800), lib.TotalReadingSeconds())
}

func TestCommitSessionIgnoresSubSecondDurations(t *testing.T) {
	lib, _, _ := newTestLibrary(t, 3)

	rec, err := lib.CreateOrAttach(driver.TagID{0x04})
	require.NoError(t, err)

	lib.CommitSession(rec, 500*time.Millisecond)

	assert.Equal(t, int64(0), rec.TotalSeconds)
	assert.Equal(t, int64(0), rec.SessionCount)
	assert.True(t, rec.LastReadAt.IsZero())
}

func TestRecordFocusCycleCompleted(t *testing.T) {
	lib, _, _ := newTestLibrary(t, 3)

	rec, err := lib.CreateOrAttach(driver.TagID{0x04})
	require.NoError(t, err)

	lib.RecordFocusCycleCompleted(rec)
	lib.RecordFocusCycleCompleted(rec)

	assert.Equal(t, int64(2), rec.FocusCycles)
}

func TestLibrarySurvivesReload(t *testing.T) {
	lib, store, clk := newTestLibrary(t, 3)

	rec, err := lib.CreateOrAttach(driver.TagID{0x04, 0xa1})
	require.NoError(t, err)
	lib.CommitSession(rec, 25*time.Minute)
	lib.RecordFocusCycleCompleted(rec)
	lib.Rename(rec, "War and Peace")

	reloaded, err := NewStore(store, slog.New(slog.NewTextHandler(io.Discard, nil)), clk, 3)
	require.NoError(t, err)

	got, ok := reloaded.FindByTag(driver.TagID{0x04, 0xa1})
	require.True(t, ok)
	assert.Equal(t, "War and Peace", got.Name)
	assert.Equal(t, int64(1500), got.TotalSeconds)
	assert.Equal(t, int64(1), got.FocusCycles)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, int64(1500), reloaded.TotalReadingSeconds())
}

func TestShrunkCapacitySkipsStrandedSlots(t *testing.T) {
	lib, store, clk := newTestLibrary(t, 3)

	_, err := lib.CreateOrAttach(driver.TagID{0x01})
	require.NoError(t, err)
	_, err = lib.CreateOrAttach(driver.TagID{0x02})
	require.NoError(t, err)
	_, err = lib.CreateOrAttach(driver.TagID{0x03})
	require.NoError(t, err)

	shrunk, err := NewStore(store, slog.New(slog.NewTextHandler(io.Discard, nil)), clk, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, shrunk.ActiveCount())
	_, ok := shrunk.FindByTag(driver.TagID{0x03})
	assert.False(t, ok)
}

func TestLastActiveTag(t *testing.T) {
	lib, _, _ := newTestLibrary(t, 3)

	_, ok := lib.LastActiveTag()
	assert.False(t, ok)

	lib.SetLastActiveTag(driver.TagID{0x04, 0xa1})

	uid, ok := lib.LastActiveTag()
	require.True(t, ok)
	assert.True(t, uid.Equal(driver.TagID{0x04, 0xa1}))
}
