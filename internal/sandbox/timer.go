package sandbox

import (
	"sync"
	"time"
)

// Clock schedules deferred work. The controller uses it for auto-stop so tests
// can drive time by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

// SystemClock uses the wall clock. Auto-stop is not corrected for drift or suspend.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// pendingStop is one armed auto-stop, tied to the launch generation that armed it.
type pendingStop struct {
	generation uint64
	deadline   time.Time
	timer      Timer
}

// stopRegistry tracks armed auto-stops keyed by container name.
type stopRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingStop
}

func newStopRegistry() *stopRegistry {
	return &stopRegistry{pending: make(map[string]*pendingStop)}
}

// arm replaces any existing entry for name. It returns true if an older timer was cancelled.
func (r *stopRegistry) arm(name string, p *pendingStop) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := false
	if old, ok := r.pending[name]; ok {
		old.timer.Stop()
		cancelled = true
	}
	r.pending[name] = p
	return cancelled
}

// cancel stops and forgets the entry for name.
func (r *stopRegistry) cancel(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[name]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(r.pending, name)
	return true
}

// release forgets the entry for name if it still belongs to generation.
// A fired timer calls this so it does not clear a newer launch's entry.
func (r *stopRegistry) release(name string, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[name]
	if !ok || p.generation != generation {
		return false
	}
	delete(r.pending, name)
	return true
}

func (r *stopRegistry) deadline(name string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[name]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

func (r *stopRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
