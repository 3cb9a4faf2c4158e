package sink

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// resultMsg updates the per-application table.
type resultMsg struct{ scheduler.Result }

// conditionMsg updates the link header.
type conditionMsg struct{ netmon.Condition }

const maxLogLines = 500

// TUIWriter renders results and samples using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	appColors  map[string]string
	colorIdx   int
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. appTypes
// pre-populates the table so rows keep a stable order.
func NewTUIWriter(appTypes []string) *TUIWriter {
	w := &TUIWriter{appColors: make(map[string]string), done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(appTypes), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

func (w *TUIWriter) appColor(app string) string {
	if c, ok := w.appColors[app]; ok {
		return c
	}
	c := appPalette[w.colorIdx%len(appPalette)]
	w.appColors[app] = c
	w.colorIdx++
	return c
}

// WriteResult implements scheduler.ResultWriter.
func (w *TUIWriter) WriteResult(r scheduler.Result) error {
	w.program.Send(logMsg{line: formatResult(r, w.appColor(r.Event.AppType))})
	w.program.Send(resultMsg{r})
	return nil
}

// WriteResults sends each result of a dispatch.
func (w *TUIWriter) WriteResults(rs []scheduler.Result) error {
	for _, r := range rs {
		_ = w.WriteResult(r)
	}
	return nil
}

// WriteCondition implements netmon.ConditionWriter.
func (w *TUIWriter) WriteCondition(c netmon.Condition) error {
	w.program.Send(conditionMsg{c})
	return nil
}

// Close stops the program without interrupting the process.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type appStats struct {
	synced int
	failed int
	total  time.Duration
}

type tuiModel struct {
	table      table.Model
	vp         viewport.Model
	logs       []string
	apps       map[string]*appStats
	order      []string
	cond       netmon.Condition
	haveCond   bool
	wrap       bool
	autoscroll bool
	header     string
	height     int
}

func newTUIModel(appTypes []string) tuiModel {
	cols := []table.Column{
		{Title: "App", Width: 16},
		{Title: "Synced", Width: 8},
		{Title: "Failed", Width: 8},
		{Title: "Success", Width: 8},
		{Title: "Avg ms", Width: 8},
	}
	m := tuiModel{
		vp:         viewport.New(0, 0),
		apps:       make(map[string]*appStats),
		autoscroll: true,
	}
	for _, a := range appTypes {
		m.addApp(a)
	}
	m.table = table.New(table.WithColumns(cols), table.WithRows(m.rows()), table.WithHeight(len(m.order)+1))
	m.header = m.renderHeader()
	return m
}

func (m *tuiModel) addApp(name string) *appStats {
	if s, ok := m.apps[name]; ok {
		return s
	}
	s := &appStats{}
	m.apps[name] = s
	m.order = append(m.order, name)
	return s
}

func (m tuiModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.order))
	for _, name := range m.order {
		s := m.apps[name]
		n := s.synced + s.failed
		rate, avg := "-", "-"
		if n > 0 {
			rate = fmt.Sprintf("%.0f%%", 100*float64(s.synced)/float64(n))
			avg = fmt.Sprintf("%.0f", float64(s.total.Milliseconds())/float64(n))
		}
		rows = append(rows, table.Row{name, fmt.Sprint(s.synced), fmt.Sprint(s.failed), rate, avg})
	}
	return rows
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		default:
			if !m.autoscroll {
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case resultMsg:
		s := m.addApp(msg.Event.AppType)
		if msg.Success {
			s.synced++
		} else {
			s.failed++
		}
		s.total += msg.Duration
		m.table.SetRows(m.rows())
		m.table.SetHeight(len(m.order) + 1)
		m.updateViewportHeight()
	case conditionMsg:
		m.cond = msg.Condition
		m.haveCond = true
		m.header = m.renderHeader()
		m.updateViewportHeight()
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.header) + lipgloss.Height(m.table.View()) + lipgloss.Height(m.renderBottom()) + 3
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("EdgeSync")
	if !m.haveCond {
		return title + "  waiting for network sample"
	}
	score := netmon.Score(m.cond)
	color := lipgloss.Color("10")
	switch {
	case score < 30:
		color = lipgloss.Color("9")
	case score < 60:
		color = lipgloss.Color("11")
	}
	scoreStr := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("quality %.1f", score))
	return fmt.Sprintf("%s  %s  latency %.1fms  bandwidth %.2fMbps  loss %.1f%%  jitter %.1fms",
		title, scoreStr, m.cond.LatencyMs, m.cond.BandwidthMbps, m.cond.PacketLoss, m.cond.JitterMs)
}

func (m tuiModel) renderBottom() string {
	on := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
	off := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	wrap, scroll := off, off
	if m.wrap {
		wrap = on
	}
	if m.autoscroll {
		scroll = on
	}
	return fmt.Sprintf("Wrap %s | Scroll %s | q quit", wrap, scroll)
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.header,
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

