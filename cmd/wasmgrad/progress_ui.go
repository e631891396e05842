package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// batchEvent reports one input module finishing (successfully or not)
// during batch mode.
type batchEvent struct {
	path string
	err  error
}

type batchItem struct {
	path   string
	status string
}

type batchModel struct {
	title   string
	events  <-chan batchEvent
	spinner spinner.Model
	prog    progress.Model
	items   []batchItem
	index   map[string]int
	done    int
	width   int
	closed  bool
}

type batchEventMsg batchEvent
type batchDoneMsg struct{}

// newBatchModel returns a Bubble Tea model rendering per-module progress
// for a "wasmgrad diff" batch run, grounded on the teacher's
// internal/ui.NewProgressModel (same spinner + bubbles/progress +
// lipgloss combination, adapted to one event per input module instead of
// one per build pipeline stage).
func newBatchModel(title string, paths []string, events <-chan batchEvent) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]batchItem, 0, len(paths))
	index := make(map[string]int, len(paths))
	for i, p := range paths {
		items = append(items, batchItem{path: p, status: "queued"})
		index[p] = i
	}
	return &batchModel{title: title, events: events, spinner: sp, prog: prog, items: items, index: index, width: 80}
}

func (m *batchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case batchEventMsg:
		cmd := m.apply(batchEvent(msg))
		return m, tea.Batch(cmd, m.listen())
	case batchDoneMsg:
		m.closed = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.closed {
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
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *batchModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.closed {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 8
	nameWidth := m.width - statusWidth - 4
	if nameWidth < 20 {
		nameWidth = 20
	}
	for _, item := range m.items {
		name := truncate(item.path, nameWidth)
		status := styleStatus(item.status).Render(fmt.Sprintf("%8s", item.status))
		fmt.Fprintf(&b, "  %s %s\n", status, name)
	}

	b.WriteString("\n")
	if m.closed {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *batchModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return batchDoneMsg{}
		}
		return batchEventMsg(ev)
	}
}

func (m *batchModel) apply(ev batchEvent) tea.Cmd {
	idx, ok := m.index[ev.path]
	if !ok {
		return nil
	}
	if ev.err != nil {
		m.items[idx].status = "error"
	} else {
		m.items[idx].status = "done"
	}
	m.done++
	return m.prog.SetPercent(float64(m.done) / float64(len(m.items)))
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
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
