package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6 // account for "  > " prefix
		return m, nil

	case statusTickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case statusMsg:
		m.status = msg.status
		m.owned = msg.owned
		m.stopAt = msg.stopAt
		return m, nil

	case lifecycleMsg:
		m.busy = ""
		m.message = msg.result.Message
		m.isError = !msg.result.Success
		return m, m.refreshCmd()

	case autoStopMsg:
		m.message = "Auto-stop: " + msg.event.Result.Message
		m.isError = !msg.event.Result.Success
		return m, tea.Batch(m.refreshCmd(), waitForEvent(m.events))

	case confirmStopExpiredMsg:
		m.confirmStop = false
		return m, nil

	case tea.KeyMsg:
		if m.commanding {
			return m.handleCommandMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	if m.commanding {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleNormalMode handles keys outside the command bar.
func (m model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		switch msg.String() {
		case "?", "esc":
			m.showHelp = false
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	// Second x confirms, anything else cancels.
	if m.confirmStop {
		m.confirmStop = false
		if msg.String() == "x" {
			return m.startStop()
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "/":
		return m.openCommandBar("")

	case "l":
		return m.openCommandBar("launch ")

	case "x":
		if m.busy != "" {
			return m, nil
		}
		m.confirmStop = true
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return confirmStopExpiredMsg{}
		})

	case "r":
		return m, m.refreshCmd()

	case "?":
		m.showHelp = true
		return m, nil
	}

	return m, nil
}

func (m model) openCommandBar(prefill string) (tea.Model, tea.Cmd) {
	m.commanding = true
	m.input.Focus()
	m.input.SetValue(prefill)
	m.input.SetCursor(len(prefill))
	return m, textinput.Blink
}

// handleCommandMode handles keys when the command input is active.
func (m model) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.commanding = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil

	case "enter":
		m.commanding = false
		m.input.Blur()
		return m.processInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) processInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	// Allow commands with or without the / prefix
	if input[0] != '/' {
		input = "/" + input
	}
	cmd := ParseCommand(input)

	switch strings.TrimPrefix(cmd.Name, "/") {
	case "launch", "start":
		if m.busy != "" {
			m.message = fmt.Sprintf("Already %s, please wait", m.busy)
			m.isError = true
			return m, nil
		}
		spec, err := ParseLaunchArgs(cmd.Args, m.cfg.Defaults)
		if err != nil {
			m.message = fmt.Sprintf("Error: %v. Usage: /launch [cpu=N] [ram=N] [timeout=N]", err)
			m.isError = true
			return m, nil
		}
		m.busy = "launching"
		m.message = fmt.Sprintf("Building %s and launching with %g CPU, %gG RAM...", m.cfg.Container.Image, spec.CPUs, spec.MemoryGiB)
		m.isError = false
		return m, m.launchCmd(spec)

	case "stop":
		if m.busy != "" {
			m.message = fmt.Sprintf("Already %s, please wait", m.busy)
			m.isError = true
			return m, nil
		}
		return m.startStop()

	case "status":
		m.message = fmt.Sprintf("%s: %s", m.cfg.Container.Name, m.status.Label())
		m.isError = false
		return m, m.refreshCmd()

	case "help":
		m.showHelp = true
		return m, nil

	case "quit", "exit":
		m.quitting = true
		return m, tea.Quit

	default:
		m.message = fmt.Sprintf("Unknown command: %s", cmd.Name)
		m.isError = true
		return m, nil
	}
}

func (m model) startStop() (tea.Model, tea.Cmd) {
	m.busy = "stopping"
	m.message = fmt.Sprintf("Stopping %s...", m.cfg.Container.Name)
	m.isError = false
	return m, m.stopCmd()
}
