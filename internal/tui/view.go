package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := "mlsandbox"
	project := m.cfg.Project
	if project == "" {
		project = m.cfg.Container.Name
	}
	gap := max(1, m.width-lipgloss.Width(title)-lipgloss.Width(project)-4)
	b.WriteString(headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + project))
	b.WriteString("\n\n")

	icon, iStyle := statusIcon(m.status.State)
	m.row(&b, "Status", iStyle.Render(icon)+" "+valueStyle.Render(m.status.Label()))
	if m.status.Raw != "" {
		m.row(&b, "", rawStyle.Render(truncate(m.status.Raw, m.width-16)))
	}
	m.row(&b, "Container", valueStyle.Render(m.cfg.Container.Name)+"  "+portStyle.Render(fmt.Sprintf(":%d", m.cfg.Container.Port)))
	if m.status.State == sandbox.StateRunning {
		m.row(&b, "JupyterLab", portStyle.Render(fmt.Sprintf("http://127.0.0.1:%d", m.cfg.Container.Port)))
	}

	if m.owned != nil {
		m.row(&b, "Limits", valueStyle.Render(fmt.Sprintf("%g CPU, %gG RAM", m.owned.Spec.CPUs, m.owned.Spec.MemoryGiB)))
		m.row(&b, "Launched", valueStyle.Render(m.owned.StartedAt.Format("15:04:05")))
	}
	if !m.stopAt.IsZero() {
		m.row(&b, "Auto-stop", valueStyle.Render(fmt.Sprintf("%s (in %s)", m.stopAt.Format("15:04:05"), countdown(m.stopAt.Sub(m.now())))))
	}

	// Pad so the footer sits at the bottom.
	used := strings.Count(b.String(), "\n")
	footer := 3
	if m.commanding {
		footer++
	}
	for i := used; i < m.height-footer-1; i++ {
		b.WriteString("\n")
	}

	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	switch {
	case m.commanding:
		b.WriteString(hotkeysStyle.Render("[enter] execute  [esc] cancel"))
	case m.confirmStop:
		b.WriteString(confirmStyle.Render(fmt.Sprintf("Stop %s? Press x again to confirm, any other key to cancel", m.cfg.Container.Name)))
	default:
		b.WriteString(hotkeysStyle.Render("[l]aunch  [x] stop  [r]efresh  [/] command  [?] help  [q] quit"))
	}
	b.WriteString("\n")

	m.renderStatusAndInput(&b)

	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}
	return b.String()
}

func (m model) row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func statusIcon(state sandbox.State) (string, lipgloss.Style) {
	switch state {
	case sandbox.StateRunning:
		return "●", statusRunning
	case sandbox.StateStopped:
		return "○", statusStopped
	case sandbox.StateAbsent:
		return "·", statusOther
	default:
		return "◌", statusOther
	}
}

// countdown renders a remaining duration as m:ss, or h:mm:ss past an hour.
func countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-3 {
		r = r[:width-3]
	}
	return string(r) + "..."
}

func (m model) renderStatusAndInput(b *strings.Builder) {
	if m.busy != "" {
		b.WriteString(busyStyle.Render(m.message))
		b.WriteString("\n")
	} else if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(messageStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	if m.commanding {
		b.WriteString("  ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
}

func (m model) renderHelpOverlay(base string) string {
	help := strings.Join([]string{
		helpHeaderStyle.Render("Actions"),
		helpKeyStyle.Render("  l") + helpDescStyle.Render("           Launch (opens command bar)"),
		helpKeyStyle.Render("  x x") + helpDescStyle.Render("         Stop the sandbox"),
		helpKeyStyle.Render("  r") + helpDescStyle.Render("           Refresh status"),
		"",
		helpHeaderStyle.Render("Commands"),
		helpKeyStyle.Render("  /") + helpDescStyle.Render("           Open command bar"),
		helpDescStyle.Render("  /launch [cpu=N] [ram=N] [timeout=N]"),
		helpDescStyle.Render("  /stop"),
		helpDescStyle.Render("  /status"),
		helpDescStyle.Render("  /quit"),
		"",
		helpDescStyle.Render("  timeout is in minutes; 0 disables auto-stop"),
		"",
		helpKeyStyle.Render("  q") + helpDescStyle.Render("  quit") + "     " + helpKeyStyle.Render("?") + helpDescStyle.Render("  close this help"),
	}, "\n")

	modal := helpStyle.Render(help)

	modalWidth := lipgloss.Width(modal)
	modalHeight := lipgloss.Height(modal)
	baseLines := strings.Split(base, "\n")

	xOffset := max(0, (m.width-modalWidth)/2)
	yOffset := max(0, (m.height-modalHeight)/2)

	for i, mLine := range strings.Split(modal, "\n") {
		row := yOffset + i
		if row < len(baseLines) {
			padding := strings.Repeat(" ", xOffset)
			baseLines[row] = padding + mLine + strings.Repeat(" ", max(0, m.width-xOffset-lipgloss.Width(mLine)))
		}
	}

	return strings.Join(baseLines, "\n")
}
