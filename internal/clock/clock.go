// Package clock abstracts monotonic time so every "elapsed since X" check in
// the core can run against a fake clock in tests.
package clock

import "time"

// Clock provides the current instant. Implementations must be monotonic for
// the lifetime of the process; wall-clock jumps must not move it backwards.
type Clock interface {
	Now() time.Time
}

// System is the real clock.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time { return time.Now() }

// New returns the system clock.
func New() Clock { return System{} }

// Fake is a manually-advanced clock for tests. Not safe for concurrent use;
// the core runs on a single control loop and so do its tests.
type Fake struct {
	now time.Time
}

// NewFake creates a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time { return f.now }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// Set moves the fake clock to an absolute instant.
func (f *Fake) Set(t time.Time) {
	f.now = t
}
