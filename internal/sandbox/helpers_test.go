package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/zpdzap/mlsandbox/internal/config"
)

// fakeRuntime records calls and simulates a single named container.
type fakeRuntime struct {
	mu sync.Mutex

	exists    bool
	running   string // container id when present
	nextID    int
	listOut   string
	listErr   error
	buildErr  error
	runErr    error
	removeErr error

	calls   []string
	lastRun RunOptions
}

func (f *fakeRuntime) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeRuntime) List(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	if f.listErr != nil {
		return "", f.listErr
	}
	if f.listOut != "" {
		return f.listOut, nil
	}
	if !f.exists {
		return "", nil
	}
	return "Up 1 second|" + name + "|" + f.running + "\n", nil
}

func (f *fakeRuntime) Remove(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove")
	if f.removeErr != nil {
		return "permission denied", f.removeErr
	}
	if !f.exists {
		return "Error: No such container: " + name, ErrNoSuchContainer
	}
	f.exists = false
	f.running = ""
	return name, nil
}

func (f *fakeRuntime) Build(_ context.Context, _ BuildOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("build")
	if f.buildErr != nil {
		return "step 3/5 failed", f.buildErr
	}
	return "Successfully built", nil
}

func (f *fakeRuntime) Run(_ context.Context, opts RunOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("run")
	f.lastRun = opts
	if f.runErr != nil {
		return "port is already allocated", f.runErr
	}
	f.nextID++
	f.exists = true
	f.running = fmt.Sprintf("c0ffee%06d", f.nextID)
	return f.running + "\n", nil
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRuntime) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists
}

// fakeClock fires AfterFunc callbacks synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	armed  int
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	c.armed++
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// eventLog collects controller notifications.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) automatic() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Automatic {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	dir      string
	runtime  *fakeRuntime
	clock    *fakeClock
	events   *eventLog
	portBusy bool
	ctrl     *Controller
}

func newHarness(t *testing.T, withDockerfile bool) *harness {
	t.Helper()

	dir := t.TempDir()
	if withDockerfile {
		if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
			t.Fatalf("write Dockerfile: %v", err)
		}
	}

	h := &harness{
		dir:     dir,
		runtime: &fakeRuntime{},
		clock:   newFakeClock(),
		events:  &eventLog{},
	}
	h.ctrl = NewController(dir, config.Default().Container, h.runtime, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  h.clock,
		Probe:  func(int) bool { return h.portBusy },
		Notify: h.events.add,
	})
	return h
}

var errTool = errors.New("exit status 1")
