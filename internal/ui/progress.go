package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"movecheck/internal/verifier"
)

type progressModel struct {
	title      string
	events     <-chan verifier.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []unitItem
	index      map[string]int
	stageLabel string
	width      int
	failed     int
	done       bool
}

type unitItem struct {
	name   string
	status string
	stage  verifier.Stage
	detail string
}

type eventMsg verifier.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders verification progress of
// units until events is closed.
func NewProgressModel(title string, units []string, events <-chan verifier.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]unitItem, 0, len(units))
	index := make(map[string]int, len(units))
	for i, unit := range units {
		items = append(items, unitItem{name: unit, status: "queued"})
		index[unit] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(verifier.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = fmt.Sprintf("done: %s, %d of %d failed", header, m.failed, len(m.items))
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := m.width - statusWidth - 4
	if nameWidth < 20 {
		nameWidth = 20
	}

	for _, item := range m.items {
		line := item.name
		if item.detail != "" {
			line += "  " + item.detail
		}
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		fmt.Fprintf(&b, "  %s %s\n", statusStyled, truncate(line, nameWidth))
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev verifier.Event) tea.Cmd {
	label := statusLabel(ev.Stage, ev.Status)
	if ev.Unit == "" {
		if label != "" {
			m.stageLabel = label
		}
		return nil
	}
	idx, ok := m.index[ev.Unit]
	if !ok || label == "" {
		return nil
	}
	item := &m.items[idx]
	// Failures are final; a unit that passed a stage may still be checked by the next.
	if isFailure(item.status) {
		return nil
	}
	if isFailure(label) {
		m.failed++
	}
	item.status = label
	item.stage = ev.Stage
	if ev.Err != nil {
		item.detail = ev.Err.Error()
	}
	return m.prog.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		if isFailure(item.status) {
			total += 1.0
			continue
		}
		total += progressFromStage(item.stage, item.status)
	}
	return total / float64(len(m.items))
}

func isFailure(status string) bool {
	return status == "error" || status == "skipped"
}

func progressFromStage(stage verifier.Stage, status string) float64 {
	switch stage {
	case verifier.StageBounds:
		if status == "done" {
			return 0.3
		}
		return 0.1
	case verifier.StageGraph:
		return 0.4
	case verifier.StageDependencies:
		if status == "done" {
			return 0.8
		}
		return 0.5
	case verifier.StageDepth:
		if status == "done" {
			return 1.0
		}
		return 0.9
	default:
		return 0.0
	}
}

func statusLabel(stage verifier.Stage, status verifier.Status) string {
	switch status {
	case verifier.StatusQueued:
		return "queued"
	case verifier.StatusDone:
		return "done"
	case verifier.StatusError:
		return "error"
	case verifier.StatusSkipped:
		return "skipped"
	case verifier.StatusWorking:
		return stageLabel(stage)
	default:
		return ""
	}
}

func stageLabel(stage verifier.Stage) string {
	switch stage {
	case verifier.StageBounds:
		return "bounds"
	case verifier.StageGraph:
		return "ordering"
	case verifier.StageDependencies:
		return "linking"
	case verifier.StageDepth:
		return "depth"
	default:
		return ""
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "skipped":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case "bounds", "ordering", "linking", "depth":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
