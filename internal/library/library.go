// Package library owns the bounded table of book records and their
// statistics. Records are keyed by proximity-tag UID, held in a fixed number
// of slots, and written through to the key-value store on every mutation.
package library

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/driver"
	"github.com/readtrack/readtrack-device/internal/errors"
	"github.com/readtrack/readtrack-device/internal/id"
	"github.com/readtrack/readtrack-device/internal/kv"
)

// DefaultCapacity is the number of book slots when the tunables don't say
// otherwise.
const DefaultCapacity = 10

// BookRecord is one book's identity and lifetime statistics.
type BookRecord struct {
	ID                string       `json:"id"`
	TagUID            driver.TagID `json:"tag_uid"`
	Name              string       `json:"name"`
	Slot              int          `json:"slot"`
	TotalSeconds      int64        `json:"total_seconds"`
	SessionCount      int64        `json:"session_count"`
	FocusCycles       int64        `json:"focus_cycles"`
	AvgSessionSeconds int64        `json:"avg_session_seconds"`
	LastReadAt        time.Time    `json:"last_read_at"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Store is the library table plus its persistence. It exclusively owns the
// slot array; nothing else writes the slot namespace.
type Store struct {
	kv       *kv.Store
	logger   *slog.Logger
	clk      clock.Clock
	capacity int

	slots  []*BookRecord // nil entries are free slots
	active int
}

// NewStore opens the library, loading any persisted records into their slots.
func NewStore(store *kv.Store, logger *slog.Logger, clk clock.Clock, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		kv:       store,
		logger:   logger,
		clk:      clk,
		capacity: capacity,
		slots:    make([]*BookRecord, capacity),
	}

	err := kv.ScanPrefix(store, kv.SlotKeyPrefix(), func(_ []byte, rec *BookRecord) error {
		if rec.Slot < 0 || rec.Slot >= capacity {
			// A table shrunk by a tunables change can leave stranded slots.
			// Keep the data on disk but don't load it.
			s.logger.Warn("book record outside slot range, skipping",
				"record_id", rec.ID,
				"slot", rec.Slot,
				"capacity", capacity)
			return nil
		}
		s.slots[rec.Slot] = rec
		s.active++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load library slots: %w", err)
	}

	logger.Info("library loaded", "active", s.active, "capacity", capacity)
	return s, nil
}

// FindByTag scans the active slots for a record with the given UID.
// Absence is a normal result, not an error.
func (s *Store) FindByTag(uid driver.TagID) (*BookRecord, bool) {
	for _, rec := range s.slots {
		if rec != nil && rec.TagUID.Equal(uid) {
			return rec, true
		}
	}
	return nil, false
}

// CreateOrAttach returns the existing record for uid, or allocates the first
// free slot with zeroed counters and a generated default name. Returns
// errors.ErrLibraryFull, with the table unchanged, when every slot is
// occupied. Capacity exhaustion is a reported condition, never an eviction.
func (s *Store) CreateOrAttach(uid driver.TagID) (*BookRecord, error) {
	if rec, ok := s.FindByTag(uid); ok {
		return rec, nil
	}

	slot := -1
	for i, r := range s.slots {
		if r == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, errors.LibraryFull(fmt.Sprintf("all %d book slots occupied", s.capacity))
	}

	now := s.clk.Now()
	rec := &BookRecord{
		ID:        id.MustGenerate("book"),
		TagUID:    append(driver.TagID(nil), uid...),
		Name:      fmt.Sprintf("Book %d", slot+1),
		Slot:      slot,
		CreatedAt: now,
	}
	s.slots[slot] = rec
	s.active++
	s.persist(rec)

	s.logger.Info("book record created",
		"record_id", rec.ID,
		"tag", uid.String(),
		"slot", slot)
	return rec, nil
}

// CommitSession folds a closed session into the record and persists it.
// The session state machine guarantees single invocation per session close.
func (s *Store) CommitSession(rec *BookRecord, duration time.Duration) {
	secs := int64(duration / time.Second)
	if secs <= 0 {
		return
	}

	rec.TotalSeconds += secs
	rec.SessionCount++
	rec.AvgSessionSeconds = rec.TotalSeconds / rec.SessionCount
	rec.LastReadAt = s.clk.Now()
	s.persist(rec)
	s.bumpTotalReadingSeconds(secs)

	s.logger.Info("session committed",
		"record_id", rec.ID,
		"book", rec.Name,
		"session_seconds", secs,
		"total_seconds", rec.TotalSeconds,
		"session_count", rec.SessionCount)
}

// RecordFocusCycleCompleted increments the completed-pomodoro counter.
func (s *Store) RecordFocusCycleCompleted(rec *BookRecord) {
	rec.FocusCycles++
	s.persist(rec)

	s.logger.Info("focus cycle completed",
		"record_id", rec.ID,
		"book", rec.Name,
		"focus_cycles", rec.FocusCycles)
}

// Rename sets the record's display name and persists it.
func (s *Store) Rename(rec *BookRecord, name string) {
	rec.Name = name
	s.persist(rec)
}

// ActiveCount returns the number of occupied slots.
func (s *Store) ActiveCount() int { return s.active }

// Capacity returns the slot count.
func (s *Store) Capacity() int { return s.capacity }

// Records returns the occupied records in slot order.
func (s *Store) Records() []*BookRecord {
	out := make([]*BookRecord, 0, s.active)
	for _, rec := range s.slots {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// SetLastActiveTag persists the UID of the book in hand, so a resume can
// re-attach directly when the tag is still present.
func (s *Store) SetLastActiveTag(uid driver.TagID) {
	if err := s.kv.Put(kv.GlobalKey(kv.FieldLastActiveTag), uid); err != nil {
		s.logger.Error("failed to persist last active tag", "error", err)
	}
}

// LastActiveTag returns the persisted last-active UID, if any.
func (s *Store) LastActiveTag() (driver.TagID, bool) {
	var uid driver.TagID
	err := s.kv.Get(kv.GlobalKey(kv.FieldLastActiveTag), &uid)
	if err != nil || uid.IsZero() {
		return nil, false
	}
	return uid, true
}

// TotalReadingSeconds returns the device-lifetime reading total.
func (s *Store) TotalReadingSeconds() int64 {
	var total int64
	if err := s.kv.Get(kv.GlobalKey(kv.FieldTotalReadingSecs), &total); err != nil {
		return 0
	}
	return total
}

// persist writes one record through to durable storage. A failed write is
// fatal for that write only: the in-memory record stays authoritative and
// the next commit point writes the full record again.
func (s *Store) persist(rec *BookRecord) {
	if err := s.kv.Put(kv.SlotKey(rec.Slot), rec); err != nil {
		s.logger.Error("failed to persist book record",
			"record_id", rec.ID,
			"slot", rec.Slot,
			"error", err)
	}
}

func (s *Store) bumpTotalReadingSeconds(secs int64) {
	total := s.TotalReadingSeconds() + secs
	if err := s.kv.Put(kv.GlobalKey(kv.FieldTotalReadingSecs), total); err != nil {
		s.logger.Error("failed to persist total reading seconds", "error", err)
	}
}
