package session

// State is the machine's current mode. DeepSleep is special: it is the
// absence of execution, present here only so resume paths and displays can
// name it.
type State int

// Machine states.
const (
	NoBook State = iota
	Reading
	PausedLowLight
	Resting
	SleepPending
	DeepSleep
)

// String returns the state name for logs and the display.
func (s State) String() string {
	switch s {
	case NoBook:
		return "no_book"
	case Reading:
		return "reading"
	case PausedLowLight:
		return "paused_low_light"
	case Resting:
		return "resting"
	case SleepPending:
		return "sleep_pending"
	case DeepSleep:
		return "deep_sleep"
	default:
		return "unknown"
	}
}
