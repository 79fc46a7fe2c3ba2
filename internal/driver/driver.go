// Package driver defines the interfaces to the device's external
// collaborators: display, tag reader, light sensor, audio, and the platform
// power primitive. The core depends on these shapes only; hardware and
// simulated implementations live behind them.
package driver

import (
	"encoding/hex"
	"time"
)

// TagID is an opaque proximity-tag identifier (e.g. an NFC UID).
// Compared for equality only, never ordered.
type TagID []byte

// Equal reports whether two tag IDs are byte-identical.
func (t TagID) Equal(other TagID) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the UID as lowercase hex for logs and keys.
func (t TagID) String() string {
	return hex.EncodeToString(t)
}

// IsZero reports whether the tag ID is empty.
func (t TagID) IsZero() bool { return len(t) == 0 }

// Cue identifies an audio feedback sound. Playback is fire-and-forget.
type Cue string

// Audio cues emitted on session boundaries.
const (
	CueFocusComplete Cue = "focus_complete"
	CueRestOver      Cue = "rest_over"
	CueBookAttached  Cue = "book_attached"
	CueLibraryFull   Cue = "library_full"
	CueSleep         Cue = "sleep"
)

// ViewModel is the read-only snapshot handed to the display each tick.
type ViewModel struct {
	State          string
	BookName       string
	ElapsedSeconds int64
	TargetSeconds  int64
	RestSeconds    int64
	Smoothed       float64
	Trend          []int
	LibraryUsed    int
	LibraryCap     int
	LifetimeSecs   int64
	Notice         string
}

// Display renders the device UI. Render is best-effort: failures are
// swallowed by callers because the same frame is redrawn next tick.
type Display interface {
	Render(vm ViewModel) error
}

// TagReader polls for a proximity tag. Repeated detection of the same UID
// means "still present", not a new event.
type TagReader interface {
	PollTag(timeout time.Duration) (TagID, bool, error)
}

// LightSensor reads one raw ambient-light sample in the range 0..4095.
type LightSensor interface {
	ReadRaw() (int, error)
}

// Audio plays feedback cues. No acknowledgment.
type Audio interface {
	Play(cue Cue)
}

// WakeSource is the hardware latch recording which condition fired the most
// recent resume. None means the latch was clear (cold boot).
type WakeSource int

// Wake latch values.
const (
	WakeSourceNone WakeSource = iota
	WakeSourceLight
	WakeSourceTimer
	WakeSourceButton
)

// WakeConfig arms the dual wake conditions before suspend.
type WakeConfig struct {
	// LightLevel is the threshold for the level-triggered wake on the
	// light-sensor digital pin.
	LightLevel int
	// SafetyTimer is the coarse fallback so the device cannot remain
	// unreachable if the light path fails.
	SafetyTimer time.Duration
}

// PowerController is the platform suspend primitive.
type PowerController interface {
	// ConfigureWake arms the wake conditions for the next suspend.
	ConfigureWake(cfg WakeConfig) error
	// ParkPins places non-essential pins into their low-power hold state.
	ParkPins() error
	// Suspend cuts power. It never returns on success.
	Suspend() error
	// WakeSource reads the hardware wake latch for the current boot.
	WakeSource() WakeSource
}
