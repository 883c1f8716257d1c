package tui

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/zpdzap/mlsandbox/internal/config"
	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

// Controller is the lifecycle surface the dashboard drives.
type Controller interface {
	Launch(ctx context.Context, spec sandbox.Spec) sandbox.Result
	Stop(ctx context.Context) sandbox.Result
	Status(ctx context.Context) sandbox.Status
	Owned() (sandbox.Handle, bool)
	PendingStop() (time.Time, bool)
}

// model is the Bubble Tea model for the sandbox dashboard.
type model struct {
	ctrl       Controller
	cfg        *config.Config
	events     <-chan sandbox.Event
	input      textinput.Model
	message    string
	isError    bool
	commanding bool // true when in command mode (/ pressed)
	quitting   bool
	width      int
	height     int
	busy       string // "launching" or "stopping" while an operation runs

	status sandbox.Status
	owned  *sandbox.Handle
	stopAt time.Time
	now    func() time.Time

	showHelp    bool
	confirmStop bool
}

func newModel(ctrl Controller, cfg *config.Config, events <-chan sandbox.Event) model {
	ti := textinput.New()
	ti.Placeholder = "launch cpu=1.0 ram=3.5 timeout=0 | stop | status | quit"
	ti.CharLimit = 256
	ti.Width = 80
	ti.Blur()

	// Initial size so the first render isn't at width=0.
	w, h, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}

	return model{
		ctrl:   ctrl,
		cfg:    cfg,
		events: events,
		input:  ti,
		width:  w,
		height: h,
		status: sandbox.Status{State: sandbox.StateUnknown, Raw: "checking..."},
		now:    time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd(), waitForEvent(m.events))
}

// refreshCmd queries the controller off the UI goroutine.
func (m model) refreshCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		msg := statusMsg{status: ctrl.Status(context.Background())}
		if h, ok := ctrl.Owned(); ok {
			msg.owned = &h
		}
		if at, ok := ctrl.PendingStop(); ok {
			msg.stopAt = at
		}
		return msg
	}
}

func (m model) launchCmd(spec sandbox.Spec) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return lifecycleMsg{op: "launch", result: ctrl.Launch(context.Background(), spec)}
	}
}

func (m model) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return lifecycleMsg{op: "stop", result: ctrl.Stop(context.Background())}
	}
}
