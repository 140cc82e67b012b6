// Package tui renders the live detection state in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/vigilhq/vigil/internal/detect"
)

var (
	accent  = lipgloss.Color("#818cf8")
	danger  = lipgloss.Color("#ef4444")
	success = lipgloss.Color("#22c55e")
	warn    = lipgloss.Color("#f59e0b")
	muted   = lipgloss.Color("#555570")

	logoStyle    = lipgloss.NewStyle().Bold(true)
	logoAccent   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	onStyle      = lipgloss.NewStyle().Bold(true).Foreground(danger)
	offStyle     = lipgloss.NewStyle().Foreground(success)
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)
	alertStyle   = cardStyle.BorderForeground(danger)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	alertTitle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	connectedTag = lipgloss.NewStyle().Foreground(success).Render("● connected")
	narrationTag = lipgloss.NewStyle().Foreground(accent)
)

var levelStyles = map[detect.Level]lipgloss.Style{
	detect.LevelCritical: lipgloss.NewStyle().Bold(true).Foreground(danger),
	detect.LevelHigh:     lipgloss.NewStyle().Bold(true).Foreground(warn),
	detect.LevelMedium:   lipgloss.NewStyle().Foreground(accent),
	detect.LevelLow:      mutedStyle,
	detect.LevelNone:     mutedStyle,
}

// Actions are the side effects bound to key presses.
type Actions struct {
	SetNarration func(enabled bool)
	Recheck      func()
}

// StateMsg delivers a new detection state to the program.
type StateMsg detect.State

type closedMsg struct{}

type tickMsg time.Time

// Model is the bubbletea model for `vigil watch`.
type Model struct {
	states  <-chan detect.State
	actions Actions
	now     func() time.Time

	state   detect.State
	spinner spinner.Model
	table   table.Model
	width   int
	closed  bool
}

// New returns a model fed by states, typically a listener subscription.
func New(states <-chan detect.State, actions Actions) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 10},
			{Title: "Type", Width: 18},
			{Title: "Severity", Width: 10},
			{Title: "Message", Width: 40},
		}),
		table.WithHeight(detect.MaxHistory+1),
		table.WithFocused(false),
	)
	return Model{
		states:  states,
		actions: actions,
		now:     time.Now,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		table:   t,
	}
}

// Init starts the spinner, the clock and the state feed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForState(m.states), tick())
}

func waitForState(ch <-chan detect.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return StateMsg(s)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key presses and state changes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "n":
			if m.actions.SetNarration != nil {
				m.actions.SetNarration(!m.state.Narration)
			}
		case "r":
			if m.actions.Recheck != nil {
				m.actions.Recheck()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StateMsg:
		m.state = detect.State(msg)
		m.table.SetRows(historyRows(m.state.History))
		return m, waitForState(m.states)

	case closedMsg:
		m.closed = true
		return m, tea.Quit

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func historyRows(entries []detect.HistoryEntry) []table.Row {
	return lo.Map(entries, func(e detect.HistoryEntry, _ int) table.Row {
		return table.Row{
			e.Timestamp.Local().Format("15:04:05"),
			string(e.Type),
			string(e.Type.Level()),
			e.Message,
		}
	})
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(logoStyle.Render("vi") + logoAccent.Render("gil"))
	b.WriteString("  ")
	switch {
	case m.closed:
		b.WriteString(mutedStyle.Render("listener stopped"))
	case m.state.Connected:
		b.WriteString(connectedTag)
	default:
		b.WriteString(m.spinner.View() + " " + mutedStyle.Render("waiting for backend"))
	}
	b.WriteString("  ")
	if m.state.Narration {
		b.WriteString(narrationTag.Render("NLP: ON"))
	} else {
		b.WriteString(mutedStyle.Render("NLP: OFF"))
	}
	b.WriteString("\n\n")

	b.WriteString(indicators(m.state.Snapshot))
	b.WriteString("\n\n")
	b.WriteString(m.alertCard())
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Recent alerts"))
	b.WriteString("\n")
	if len(m.state.History) == 0 {
		b.WriteString(mutedStyle.Render("No alerts yet"))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n\n")

	b.WriteString(mutedStyle.Render(countdown(detect.UntilAutoDetection(m.now()))))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("n: toggle narration  r: re-probe  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func indicators(s detect.Snapshot) string {
	flag := func(label string, on bool) string {
		if on {
			return onStyle.Render("■ " + label)
		}
		return offStyle.Render("□ " + label)
	}
	return strings.Join([]string{
		flag("Person", s.Person),
		flag("Multiple Persons", s.MultiplePersons),
		flag("Knife", s.Knife),
		flag("Gun", s.Gun),
	}, "   ")
}

func (m Model) alertCard() string {
	alert := detect.Assess(m.state.Snapshot)
	level := levelStyles[alert.Level].Render(strings.ToUpper(string(alert.Level)))

	var lines []string
	style := cardStyle
	if alert.Active() {
		style = alertStyle
		lines = append(lines, alertTitle.Render("Critical security notification")+"  "+level)
	} else {
		lines = append(lines, titleStyle.Render("System monitoring active")+"  "+level)
	}

	switch g, ok := detect.GuidanceFor(m.state.Snapshot); {
	case m.state.Narration && m.state.Message != "":
		lines = append(lines, m.state.Message)
	case ok:
		lines = append(lines, titleStyle.Render(g.Title))
		for i, step := range g.Steps {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, step))
		}
	default:
		lines = append(lines,
			"System is monitoring for potential threats.",
			"No threats detected at this time.",
			"Status: Normal",
		)
	}

	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func countdown(d time.Duration) string {
	h := int(d / time.Hour)
	mnt := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("Auto Detection will start at 7 PM. Remaining time: %dh %dm %ds", h, mnt, s)
}
