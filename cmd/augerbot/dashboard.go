package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/augerbot/pkg/link"
	"github.com/gwillem/augerbot/pkg/observability"
	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/gwillem/augerbot/pkg/teleop"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	tableWidth   = 34
)

// One color per command field, in declaration order.
var fieldColors = []string{"196", "208", "226", "46", "51", "201", "99", "33"}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failsafeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("9")).Padding(0, 1)
	linkUpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	linkDownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func fieldColor(i int) string {
	return fieldColors[i%len(fieldColors)]
}

type dashboardModel struct {
	ctrl         *teleop.Controller
	variant      robot.Variant
	geometry     robot.Geometry
	chart        *streamlinechart.Model
	lines        <-chan string
	done         <-chan error
	width        int // terminal width
	height       int // terminal height
	logs         []string
	status       teleop.Status
	lastCommands map[robot.FieldName]float64
	quitting     bool
	finished     bool
	exitErr      error
}

func (m *dashboardModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasChange reports whether any command differs from the last charted one.
func (m *dashboardModel) hasChange(cmds map[robot.FieldName]float64) bool {
	if m.lastCommands == nil {
		return true
	}
	for name, v := range cmds {
		if last, ok := m.lastCommands[name]; !ok || v != last {
			return true
		}
	}
	return false
}

// Messages from the controller and the engine logger
type statusMsg teleop.Status
type logMsg string
type engineLogMsg string
type doneMsg struct{ err error }

func waitForStatus(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func waitForEngineLog(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return engineLogMsg(<-ch)
	}
}

func waitForDone(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-ch}
	}
}

func (m *dashboardModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2 - tableWidth
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *dashboardModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func newDashboardModel(ctrl *teleop.Controller, variant robot.Variant, lines *observability.LineWriter, done <-chan error) dashboardModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-255, 255),
	)
	for i, f := range variant.Fields {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(fieldColor(i)))
		chart.SetDataSetStyles(string(f.Name), runes.ThinLineStyle, style)
	}

	m := dashboardModel{
		ctrl:     ctrl,
		variant:  variant,
		geometry: robot.DefaultGeometry(),
		chart:    &chart,
		done:     done,
	}
	if lines != nil {
		m.lines = lines.Lines()
	}
	return m
}

func (m dashboardModel) Init() tea.Cmd {
	// Controller log lines also reach the engine logger, so show only one.
	logs := waitForLog(m.ctrl)
	if m.lines != nil {
		logs = waitForEngineLog(m.lines)
	}
	return tea.Batch(
		waitForStatus(m.ctrl),
		logs,
		waitForDone(m.done),
	)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case statusMsg:
		m.status = teleop.Status(msg)
		cmds := m.status.Snapshot.Commands
		// Freeze the chart while nothing changes
		if cmds != nil && m.hasChange(cmds) {
			for _, f := range m.variant.Fields {
				m.chart.PushDataSet(string(f.Name), cmds[f.Name])
			}
			m.chart.DrawAll()
			m.lastCommands = cmds
		}
		return m, waitForStatus(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case engineLogMsg:
		m.addLog(string(msg))
		return m, waitForEngineLog(m.lines)

	case doneMsg:
		m.finished = true
		m.exitErr = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Augerbot stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Augerbot " + m.variant.Name))
	sb.WriteString(" " + renderLink(m.status.Link))
	if m.status.Snapshot.Failsafe {
		sb.WriteString(" " + failsafeStyle.Render("FAILSAFE"))
	}
	if m.status.LastFrame != "" {
		sb.WriteString(statusStyle.Render("  last " + m.status.LastFrame))
	}
	sb.WriteString("\n\n")

	// Chart and values side by side
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		chartStyle.Render(m.chart.View()),
		m.renderTable(),
	))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLink(s link.State) string {
	if s == link.Established {
		return linkUpStyle.Render(s.String())
	}
	return linkDownStyle.Render(s.String())
}

func (m dashboardModel) renderTable() string {
	snap := m.status.Snapshot
	rows := make([][]string, 0, len(m.variant.Fields)+3)
	for _, f := range m.variant.Fields {
		rows = append(rows, []string{string(f.Name), formatField(f, snap.Value(f.Name))})
	}
	rows = append(rows,
		[]string{"encoders", joinInts(snap.Telemetry.Encoders)},
		[]string{"inches", m.joinInches(snap.Telemetry.Encoders)},
		[]string{"buttons", joinInts(snap.Telemetry.Buttons)},
	)

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	nFields := len(m.variant.Fields)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Width(tableWidth).
		Headers("Field", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				if row >= 0 && row < nFields {
					return nameStyle.Foreground(lipgloss.Color(fieldColor(row)))
				}
				return nameStyle
			}
			return cellStyle
		})
	return t.Render()
}

func formatField(f robot.FieldSpec, v float64) string {
	switch f.Kind {
	case robot.KindActuator:
		return robot.Actuator(f.Render(v)).String()
	default:
		return strconv.FormatFloat(f.Render(v), 'f', -1, 64)
	}
}

func joinInts(vals []int64) string {
	if len(vals) == 0 {
		return "-"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, " ")
}

func (m dashboardModel) joinInches(ticks []int64) string {
	if len(ticks) == 0 {
		return "-"
	}
	parts := make([]string, len(ticks))
	for i, t := range ticks {
		parts[i] = fmt.Sprintf("%.1f", m.geometry.Inches(t))
	}
	return strings.Join(parts, " ")
}

func (m dashboardModel) renderLegend() string {
	var items []string
	for i, f := range m.variant.Fields {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(fieldColor(i))).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(f.Name))
	}
	return strings.Join(items, "  ")
}
