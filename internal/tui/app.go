package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/mlsandbox/internal/config"
	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

// EventSink returns a controller Notify hook that forwards automatic stops
// to the dashboard, and the channel it forwards them on. Events are dropped
// when the buffer is full.
func EventSink(buffer int) (sandbox.NotifyFunc, <-chan sandbox.Event) {
	ch := make(chan sandbox.Event, buffer)
	return func(ev sandbox.Event) {
		if !ev.Automatic {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	}, ch
}

// Run starts the dashboard and blocks until the user quits.
func Run(ctrl Controller, cfg *config.Config, events <-chan sandbox.Event) error {
	p := tea.NewProgram(newModel(ctrl, cfg, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if at, ok := ctrl.PendingStop(); ok {
		fmt.Printf("Goodbye! The auto-stop due at %s will not fire once this process exits; run `mlsandbox stop` to tear the sandbox down.\n", at.Format("15:04"))
		return nil
	}
	fmt.Println("Goodbye! (the sandbox is left as is; use `mlsandbox stop` to tear it down)")
	return nil
}
