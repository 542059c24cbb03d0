// Package clock provides the monotonic millisecond tick source used to gate
// device flow polling and token expiry
package clock

import (
	"sync"
	"time"
)

// Ticks is a point on a monotonic millisecond timeline with an unspecified epoch.
// Only differences and comparisons between Ticks are meaningful.
type Ticks uint64

// TicksPerSecond is the number of ticks in one second of provider time
const TicksPerSecond = 1000

// FromSeconds converts a provider-supplied duration in seconds into ticks
func FromSeconds(s uint64) Ticks {
	return Ticks(s * TicksPerSecond)
}

// FromDuration converts a duration into ticks, truncating below a millisecond
func FromDuration(d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}
	return Ticks(d / time.Millisecond)
}

// Duration converts ticks back into a time.Duration
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * time.Millisecond
}

// Clock reports the current tick
type Clock interface {
	Now() Ticks
}

// System is a Clock backed by the runtime monotonic clock
type System struct {
	start time.Time
}

// NewSystem creates a system clock whose epoch is the moment of creation
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Now returns milliseconds elapsed since the clock was created
func (s *System) Now() Ticks {
	return FromDuration(time.Since(s.start))
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now Ticks
}

// NewManual creates a manual clock starting at the given tick
func NewManual(start Ticks) *Manual {
	return &Manual{now: start}
}

// Now returns the current tick
func (m *Manual) Now() Ticks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d ticks
func (m *Manual) Advance(d Ticks) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Set moves the clock to t
func (m *Manual) Set(t Ticks) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
