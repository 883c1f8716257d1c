package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

// statusTickMsg triggers a status refresh poll.
type statusTickMsg time.Time

// statusMsg carries a fresh container status and the controller's view of it.
type statusMsg struct {
	status sandbox.Status
	owned  *sandbox.Handle
	stopAt time.Time
}

// lifecycleMsg is sent when a launch or stop started from the dashboard returns.
type lifecycleMsg struct {
	op     string
	result sandbox.Result
}

// autoStopMsg relays a timer-initiated stop reported by the controller.
type autoStopMsg struct {
	event sandbox.Event
}

type confirmStopExpiredMsg struct{}

// tickCmd returns a command that sends a tick every 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// waitForEvent blocks on the controller event channel.
func waitForEvent(events <-chan sandbox.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return autoStopMsg{event: ev}
	}
}
