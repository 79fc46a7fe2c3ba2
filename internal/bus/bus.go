// Package bus arbitrates the single communication bus shared by the display
// and the tag reader. Arbitration is best-effort and lossy: there is no
// waiting — a competing operation that loses simply skips its tick and
// retries on the next one.
package bus

import "sync/atomic"

// Lease is a non-reentrant busy flag over the shared bus. Exactly one holder
// at a time; acquisition never blocks.
type Lease struct {
	busy   atomic.Bool
	holder atomic.Value // string, last successful holder, for diagnostics
}

// New creates a free lease.
func New() *Lease {
	l := &Lease{}
	l.holder.Store("")
	return l
}

// TryAcquire attempts to take the bus for the named holder. On success it
// returns a release function and true; the caller must invoke release (defer
// it) when the transaction completes. On contention it returns false and the
// caller skips the bus transaction for this tick.
func (l *Lease) TryAcquire(holder string) (release func(), ok bool) {
	if !l.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	l.holder.Store(holder)

	var released atomic.Bool
	return func() {
		// Releasing twice must not free a lease someone else re-acquired.
		if released.CompareAndSwap(false, true) {
			l.busy.Store(false)
		}
	}, true
}

// ForceRelease clears the lease unconditionally. Used on the suspend path,
// where a stuck peripheral transaction must never keep the device awake.
func (l *Lease) ForceRelease() {
	l.busy.Store(false)
}

// Held reports whether the bus is currently held.
func (l *Lease) Held() bool {
	return l.busy.Load()
}

// Holder returns the name of the last successful acquirer.
func (l *Lease) Holder() string {
	s, _ := l.holder.Load().(string)
	return s
}
