package web

import (
	"sync"

	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

const maxFlashes = 20

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Category string // "success" or "error"
	Message  string
}

// FlashStore is a process-wide FIFO of pending flashes. The panel serves a
// single operator, so there is no per-session scoping.
type FlashStore struct {
	mu    sync.Mutex
	items []Flash
}

func NewFlashStore() *FlashStore {
	return &FlashStore{}
}

// Push appends a flash, dropping the oldest once the store is full.
func (f *FlashStore) Push(category, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, Flash{Category: category, Message: message})
	if len(f.items) > maxFlashes {
		f.items = f.items[len(f.items)-maxFlashes:]
	}
}

// Drain returns and clears all pending flashes.
func (f *FlashStore) Drain() []Flash {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	return out
}

// Notifier turns controller events into flashes. Pass it as the
// controller's Notify hook so background auto-stops reach the page too.
func (f *FlashStore) Notifier() sandbox.NotifyFunc {
	return func(ev sandbox.Event) {
		msg := ev.Result.Message
		if ev.Automatic {
			msg = "Auto-stop: " + msg
		}
		f.Push(category(ev.Result), msg)
	}
}

func category(res sandbox.Result) string {
	if res.Success {
		return "success"
	}
	return "error"
}
