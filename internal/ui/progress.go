// Package ui renders batch rebuild progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"bcrebuild/internal/driver"
)

const statusWidth = 10

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	detailStyle  = lipgloss.NewStyle().Faint(true)
)

// ProgressModel is a Bubble Tea model that follows a RebuildFiles run
// through the events it reads from a channel. The run ends when the
// channel is closed.
type ProgressModel struct {
	title   string
	events  <-chan driver.Event
	spinner spinner.Model
	prog    progress.Model
	items   []fileItem
	index   map[string]int
	width   int
	done    bool
	aborted bool
}

type fileItem struct {
	path   string
	stage  driver.Stage
	status driver.Status
	detail string
}

type eventMsg driver.Event
type doneMsg struct{}

// NewProgressModel lists files as queued until events arrive for them.
func NewProgressModel(title string, files []string, events <-chan driver.Event) *ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = workingStyle

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]fileItem, len(files))
	index := make(map[string]int, len(files))
	for i, file := range files {
		items[i] = fileItem{path: file, stage: driver.StageLoad, status: driver.StatusQueued}
		index[file] = i
	}
	return &ProgressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

// Aborted reports whether the user interrupted the view.
func (m *ProgressModel) Aborted() bool {
	return m.aborted
}

func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(driver.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.aborted = true
			return m, tea.Quit
		}
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
			m.prog.Width = max(msg.Width-4, 10)
		}
	case progress.FrameMsg:
		next, cmd := m.prog.Update(msg)
		m.prog = next.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *ProgressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	header := fmt.Sprintf("%s (%d/%d)", m.title, m.finished(), len(m.items))
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")
	nameWidth := max(m.width-statusWidth-4, 20)
	for _, item := range m.items {
		label := statusLabel(item.stage, item.status)
		b.WriteString("  ")
		b.WriteString(styleStatus(item.status).Render(fmt.Sprintf("%*s", statusWidth, label)))
		b.WriteByte(' ')
		b.WriteString(truncate(item.path, nameWidth))
		if item.detail != "" {
			b.WriteString("  ")
			b.WriteString(detailStyle.Render(item.detail))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if m.done {
		b.WriteString(m.prog.ViewAs(1))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteByte('\n')
	return b.String()
}

func (m *ProgressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *ProgressModel) applyEvent(ev driver.Event) tea.Cmd {
	idx, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	item.stage, item.status = ev.Stage, ev.Status
	switch ev.Status {
	case driver.StatusDone:
		item.detail = fmt.Sprintf("%.1f ms", float64(ev.Elapsed.Microseconds())/1000)
	case driver.StatusError:
		if ev.Err != nil {
			item.detail = ev.Err.Error()
		}
	}
	return m.prog.SetPercent(m.percent())
}

func (m *ProgressModel) finished() int {
	n := 0
	for _, item := range m.items {
		if item.status == driver.StatusDone || item.status == driver.StatusError {
			n++
		}
	}
	return n
}

func (m *ProgressModel) percent() float64 {
	total := 0.0
	for _, item := range m.items {
		total += progressOf(item)
	}
	return total / float64(len(m.items))
}

func progressOf(item fileItem) float64 {
	switch item.status {
	case driver.StatusDone, driver.StatusError:
		return 1
	case driver.StatusWorking:
		switch item.stage {
		case driver.StageLoad:
			return 0.1
		case driver.StageRebuild:
			return 0.4
		case driver.StageWrite:
			return 0.8
		}
	}
	return 0
}

func statusLabel(stage driver.Stage, status driver.Status) string {
	if status != driver.StatusWorking {
		return string(status)
	}
	switch stage {
	case driver.StageLoad:
		return "loading"
	case driver.StageRebuild:
		return "rebuilding"
	case driver.StageWrite:
		return "writing"
	}
	return string(stage)
}

func styleStatus(status driver.Status) lipgloss.Style {
	switch status {
	case driver.StatusDone:
		return doneStyle
	case driver.StatusError:
		return errorStyle
	case driver.StatusWorking:
		return workingStyle
	default:
		return queuedStyle
	}
}

func truncate(value string, width int) string {
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
