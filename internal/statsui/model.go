// Package statsui provides the Bubble Tea run browser.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/stats"
	"github.com/verte-zerg/imebench/internal/store"
)

const (
	tabOverview = iota
	tabRecords
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea run browser.
type Model struct {
	store *store.Store
	cfg   model.StatsConfig

	report model.RunAggregate
	runs   []model.RunAggregate
	recs   []model.Record
	errMsg string

	tabs         []string
	activeTab    int
	overview     viewport.Model
	records      table.Model
	problemsOnly bool

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a run browser.
func NewModel(st *store.Store, cfg model.StatsConfig) *Model {
	m := &Model{
		store:    st,
		cfg:      cfg,
		tabs:     []string{"Overview", "Records"},
		overview: viewport.New(0, 0),
		records:  newRecordsTable(),
	}
	m.filterInputs = []textinput.Model{
		newFilterInput("Run ID: "),
		newFilterInput("Last: "),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderOverview()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h", "right", "l", "tab":
			m.activeTab = (m.activeTab + 1) % len(m.tabs)
			if m.activeTab == tabRecords {
				m.records.Focus()
			} else {
				m.records.Blur()
			}
			return m, tea.ClearScreen
		case "[":
			m.selectRelative(-1)
			return m, nil
		case "]":
			m.selectRelative(1)
			return m, nil
		case "p":
			m.problemsOnly = !m.problemsOnly
			m.records.SetRows(recordRows(m.recs, m.problemsOnly))
			m.records.GotoTop()
			return m, nil
		case "/":
			return m.startFilter()
		}
		if m.activeTab == tabRecords {
			var cmd tea.Cmd
			m.records, cmd = m.records.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.overview, cmd = m.overview.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 12
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func newRecordsTable() table.Model {
	t := table.New(table.WithColumns(recordColumns()), table.WithHeight(1))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.Padding(0, 1).PaddingLeft(0)
	styles.Selected = styles.Cell.Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	t.SetStyles(styles)
	return t
}

func recordColumns() []table.Column {
	return []table.Column{
		{Title: "#", Width: 5},
		{Title: "Input", Width: 24},
		{Title: "Output", Width: 24},
		{Title: "Expected", Width: 24},
		{Title: "Tries", Width: 5},
		{Title: "Warnings", Width: 20},
	}
}

func recordRows(recs []model.Record, problemsOnly bool) []table.Row {
	rows := make([]table.Row, 0, len(recs))
	for _, rec := range recs {
		mismatch := rec.Expected != "" && rec.Output != rec.Expected
		if problemsOnly && len(rec.Warnings) == 0 && !mismatch {
			continue
		}
		warnings := stats.WarningList(rec.Warnings)
		if mismatch {
			warnings = strings.TrimPrefix(warnings+",mismatch", ",")
		}
		rows = append(rows, table.Row{
			strconv.Itoa(rec.Index + 1),
			rec.Hiragana,
			rec.Output,
			rec.Expected,
			strconv.Itoa(rec.Attempts),
			warnings,
		})
	}
	return rows
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = max(1, lipgloss.Height(activeNavStyle.Render("X"))) + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = m.width
	m.overview.Height = bodyHeight
	m.records.SetWidth(m.width)
	// One line for the header border.
	m.records.SetHeight(max(1, bodyHeight-1))
}

func (m *Model) refresh() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load runs.")
		return
	}
	m.errMsg = ""
	m.runs = report.Runs
	m.report = report.Selected
	m.recs = report.Records
	m.records.SetRows(recordRows(m.recs, m.problemsOnly))
	m.records.GotoTop()
	m.renderOverview()
}

// selectRelative moves the selection to a neighboring run in the list.
func (m *Model) selectRelative(delta int) {
	if len(m.runs) == 0 {
		return
	}
	idx := len(m.runs) - 1
	for i, r := range m.runs {
		if r.RunID == m.report.RunID {
			idx = i
			break
		}
	}
	idx = max(0, min(idx+delta, len(m.runs)-1))
	m.cfg.RunID = m.runs[idx].RunID
	m.refresh()
}

func (m *Model) renderOverview() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.overview.SetContent(renderOverview(m.runs, m.report, width))
}

func renderOverview(runs []model.RunAggregate, selected model.RunAggregate, width int) string {
	if len(runs) == 0 && selected.RunID == 0 {
		return "No runs found."
	}
	parts := []string{renderCards(selected, width)}
	var buf bytes.Buffer
	if err := stats.RenderRuns(&buf, runs); err != nil {
		parts = append(parts, fmt.Sprintf("Failed to render runs: %v", err))
	} else {
		parts = append(parts, strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func renderCards(r model.RunAggregate, width int) string {
	exact, sim := "-", "-"
	if r.Compared > 0 {
		exact = fmt.Sprintf("%.1f%%", stats.ExactRate(r.RunStats)*100)
		sim = fmt.Sprintf("%.1f%%", stats.Similarity(r.RunStats)*100)
	}
	cards := []string{
		metricCard(fmt.Sprintf("Run #%d", r.RunID), r.Status),
		metricCard("Phrases", fmt.Sprintf("%d/%d", r.Processed, r.Phrases)),
		metricCard("Unchanged", strconv.Itoa(r.Unchanged)),
		metricCard("Failed", fmt.Sprintf("%d (%d t/o)", r.Failed, r.TimedOut)),
		metricCard("Exact", exact),
		metricCard("Similarity", sim),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[:3]...)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3:]...)
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	run := "-"
	if m.report.RunID != 0 {
		run = fmt.Sprintf("#%d %s (%s, %s)", m.report.RunID, m.report.InputPath, m.report.Driver, m.report.Mode)
	}
	summary := truncateLine(fmt.Sprintf("Run: %s  last=%s  problems-only=%t", run, last, m.problemsOnly), m.width)
	return padLines(m.renderTabs(), m.width) + "\n" + headerStyle.Render(summary)
}

func (m *Model) renderBody() string {
	if m.filterMode {
		lines := []string{"Settings (enter to apply, esc to cancel)"}
		for _, input := range m.filterInputs {
			lines = append(lines, input.View())
		}
		if m.filterError != "" {
			lines = append(lines, errorStyle.Render(m.filterError))
		}
		return strings.Join(lines, "\n")
	}
	if m.activeTab == tabRecords {
		if len(m.recs) == 0 {
			return "No records for this run."
		}
		return tableMutedStyle.Render(m.records.View())
	}
	return m.overview.View()
}

func (m *Model) renderFooter() string {
	help := "Tabs: left/right  Run: [ ]  Problems: p  Scroll: up/down  Settings: /  Quit: q"
	if m.filterMode {
		help = "tab/shift+tab: next field  enter: apply  esc: cancel"
	}
	if m.errMsg != "" {
		return headerStyle.Render(help) + "\n" + errorStyle.Render(m.errMsg)
	}
	return headerStyle.Render(help)
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.filterInputs[0].SetValue("")
	if m.cfg.RunID > 0 {
		m.filterInputs[0].SetValue(strconv.FormatInt(m.cfg.RunID, 10))
	}
	m.filterInputs[1].SetValue("")
	if m.cfg.Last > 0 {
		m.filterInputs[1].SetValue(strconv.Itoa(m.cfg.Last))
	}
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		return m, nil
	case tea.KeyEnter:
		cfg, err := parseFilter(m.filterInputs[0].Value(), m.filterInputs[1].Value())
		if err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.cfg = cfg
		m.filterMode = false
		m.filterError = ""
		m.refresh()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx%count + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func parseFilter(runInput, lastInput string) (model.StatsConfig, error) {
	var cfg model.StatsConfig
	if s := strings.TrimSpace(runInput); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 1 {
			return cfg, fmt.Errorf("invalid run id (use a positive integer)")
		}
		cfg.RunID = id
	}
	if s := strings.TrimSpace(lastInput); s != "" {
		last, err := strconv.Atoi(s)
		if err != nil || last < 0 {
			return cfg, fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		cfg.Last = last
	}
	return cfg, nil
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

// truncateLine cuts s to width terminal cells.
func truncateLine(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
