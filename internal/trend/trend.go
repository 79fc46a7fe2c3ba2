// Package trend smooths raw light-sensor samples into a stable reading
// indicator: a short ring of recent samples for the display sparkline plus
// one exponentially-weighted value. Nothing here is persisted.
package trend

const (
	// RawMin and RawMax bound a raw sensor sample.
	RawMin = 0
	RawMax = 4095

	// DefaultAlpha is the EMA smoothing factor.
	DefaultAlpha = 0.05

	// DefaultWindow is the ring size.
	DefaultWindow = 32
)

// Filtered is the per-tick output of the filter. Sample is the instantaneous
// (range-clamped) reading the state machine compares against thresholds;
// Smoothed is the display-only EMA.
type Filtered struct {
	Sample   int
	Smoothed float64
}

// Filter holds the rolling sample history and the smoothed value.
type Filter struct {
	alpha   float64
	ring    []int
	next    int
	filled  int
	ema     float64
	emaInit bool
}

// New creates a filter with the given EMA factor and ring size.
// Out-of-range arguments fall back to the defaults.
func New(alpha float64, window int) *Filter {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{
		alpha: alpha,
		ring:  make([]int, window),
	}
}

// Observe ingests one raw sample. The ring always advances; the EMA only
// updates while the machine is in the Reading state, so pauses and darkness
// do not drag the reading indicator down. Always succeeds.
func (f *Filter) Observe(raw int, reading bool) Filtered {
	sample := clamp(raw, RawMin, RawMax)

	f.ring[f.next] = sample
	f.next = (f.next + 1) % len(f.ring)
	if f.filled < len(f.ring) {
		f.filled++
	}

	if !f.emaInit {
		f.ema = float64(sample)
		f.emaInit = true
	} else if reading {
		f.ema = f.alpha*float64(sample) + (1-f.alpha)*f.ema
		// Clamp the smoothed value to a band around the recent envelope so a
		// single spike cannot yank the indicator.
		lo, hi := f.envelope()
		f.ema = clampF(f.ema, float64(lo)*0.75, float64(hi)*1.25)
		f.ema = clampF(f.ema, RawMin, RawMax)
	}

	return Filtered{Sample: sample, Smoothed: f.ema}
}

// History returns the buffered samples, oldest first.
func (f *Filter) History() []int {
	out := make([]int, 0, f.filled)
	if f.filled < len(f.ring) {
		out = append(out, f.ring[:f.filled]...)
		return out
	}
	out = append(out, f.ring[f.next:]...)
	out = append(out, f.ring[:f.next]...)
	return out
}

// Smoothed returns the current EMA value.
func (f *Filter) Smoothed() float64 { return f.ema }

// envelope returns the min and max of the buffered samples.
func (f *Filter) envelope() (lo, hi int) {
	lo, hi = RawMax, RawMin
	for i := 0; i < f.filled; i++ {
		s := f.ring[i]
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if f.filled == 0 {
		return RawMin, RawMax
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
