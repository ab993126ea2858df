package tui

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"grimm.is/ngxweb/internal/traffic"
)

// TrafficLimit caps the entries loaded and kept while following.
const TrafficLimit = 500

// TrafficModel shows access log entries with filtering, CSV export and
// live following.
type TrafficModel struct {
	Backend Backend
	Table   table.Model
	Filter  textinput.Model
	Query   traffic.Query
	Entries []traffic.Entry

	// ExportDir receives CSV exports; empty means the working directory.
	ExportDir string

	follow *followState

	Busy   bool
	Notice string
	Err    string
	Width  int
	Height int
}

// followState is one live-follow session. Messages carry it so that a
// session that was stopped cannot update the view.
type followState struct {
	cancel  context.CancelFunc
	entries chan traffic.Entry
	done    chan error
}

type (
	trafficMsg struct {
		entries []traffic.Entry
		err     error
	}
	exportedMsg struct {
		path string
		err  error
	}
	liveEntryMsg struct {
		entry  traffic.Entry
		follow *followState
	}
	followEndedMsg struct {
		err    error
		follow *followState
	}
)

func NewTrafficModel(backend Backend) TrafficModel {
	columns := []table.Column{
		{Title: "Time", Width: 19},
		{Title: "IP", Width: 15},
		{Title: "Method", Width: 7},
		{Title: "Path", Width: 30},
		{Title: "Status", Width: 6},
		{Title: "Time (ms)", Width: 9},
		{Title: "Sent", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(ColorText).
		Background(ColorAccent).
		Bold(false)
	t.SetStyles(s)

	fi := textinput.New()
	fi.Placeholder = "status=404 method=GET path=/api ip=10.0.0.1 from=2025-03-10T00:00:00Z"
	fi.Prompt = "Filter: "
	fi.PromptStyle = StyleInputPrompt
	fi.CharLimit = 256
	fi.Width = 70

	return TrafficModel{
		Backend: backend,
		Table:   t,
		Filter:  fi,
		Query:   traffic.Query{Limit: TrafficLimit},
		Busy:    true,
	}
}

func (m TrafficModel) Init() tea.Cmd {
	return m.load()
}

// Capturing reports whether the filter input has focus.
func (m TrafficModel) Capturing() bool {
	return m.Filter.Focused()
}

// Following reports whether live entries are streaming in.
func (m TrafficModel) Following() bool {
	return m.follow != nil
}

// stopFollow ends the live session, if any.
func (m *TrafficModel) stopFollow() {
	if m.follow != nil {
		m.follow.cancel()
		m.follow = nil
	}
}

func (m TrafficModel) Update(msg tea.Msg) (TrafficModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetHeight(max(msg.Height-12, 5))
		return m, nil

	case trafficMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to load traffic logs", msg.err)
			return m, nil
		}
		m.Err = ""
		m.Entries = msg.entries
		m.refreshRows()
		return m, nil

	case exportedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Notice, m.Err = "", errText("Failed to export logs", msg.err)
		} else {
			m.Notice, m.Err = "Exported to "+msg.path, ""
		}
		return m, nil

	case liveEntryMsg:
		if msg.follow != m.follow {
			return m, nil
		}
		if m.Query.Match(msg.entry) {
			m.Entries = append([]traffic.Entry{msg.entry}, m.Entries...)
			if len(m.Entries) > TrafficLimit {
				m.Entries = m.Entries[:TrafficLimit]
			}
			m.refreshRows()
		}
		return m, waitForLive(m.follow)

	case followEndedMsg:
		if msg.follow != m.follow {
			return m, nil
		}
		m.follow = nil
		if msg.err != nil {
			m.Err = errText("Live traffic stopped", msg.err)
		} else {
			m.Notice = "Live traffic stopped"
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	if m.Filter.Focused() {
		var cmd tea.Cmd
		m.Filter, cmd = m.Filter.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m TrafficModel) updateKeys(msg tea.KeyMsg) (TrafficModel, tea.Cmd) {
	if m.Filter.Focused() {
		switch msg.String() {
		case "esc":
			m.Filter.Blur()
			return m, nil
		case "enter":
			q, err := ParseFilter(m.Filter.Value())
			if err != nil {
				m.Err = errText("Invalid filter", err)
				return m, nil
			}
			m.Filter.Blur()
			m.Query = q
			m.Notice, m.Err = "", ""
			m.Busy = true
			return m, m.load()
		}
		var cmd tea.Cmd
		m.Filter, cmd = m.Filter.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "/":
		return m, m.Filter.Focus()
	case "r":
		if !m.Busy {
			m.Busy = true
			return m, m.load()
		}
		return m, nil
	case "e":
		if !m.Busy {
			m.Busy = true
			m.Notice, m.Err = "", ""
			return m, m.export(time.Now())
		}
		return m, nil
	case "f":
		if m.follow != nil {
			m.stopFollow()
			m.Notice = "Live traffic stopped"
			return m, nil
		}
		m.follow = m.startFollow()
		m.Notice, m.Err = "Following live traffic (f: stop)", ""
		return m, waitForLive(m.follow)
	case "c":
		m.Filter.SetValue("")
		m.Query = traffic.Query{Limit: TrafficLimit}
		m.Busy = true
		return m, m.load()
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// ParseFilter reads space-separated key=value terms using the keys of the
// traffic query parameters. Without a limit term TrafficLimit applies.
func ParseFilter(s string) (traffic.Query, error) {
	v := url.Values{}
	for _, term := range strings.Fields(s) {
		key, value, ok := strings.Cut(term, "=")
		if !ok || value == "" {
			return traffic.Query{}, fmt.Errorf("expected key=value, got %q", term)
		}
		switch key {
		case "from", "to", "ip", "status", "method", "path", "limit":
			v.Set(key, value)
		default:
			return traffic.Query{}, fmt.Errorf("unknown filter %q", key)
		}
	}
	q, err := traffic.ParseQuery(v)
	if err != nil {
		return q, err
	}
	if q.Limit == 0 {
		q.Limit = TrafficLimit
	}
	return q, nil
}

func (m *TrafficModel) refreshRows() {
	rows := make([]table.Row, len(m.Entries))
	for i, e := range m.Entries {
		rt, sent := "-", "-"
		if e.ResponseTime != nil {
			rt = strconv.FormatInt(*e.ResponseTime, 10)
		}
		if e.BytesSent != nil {
			sent = humanize.Bytes(uint64(*e.BytesSent))
		}
		rows[i] = table.Row{
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.IP,
			e.Method,
			e.Path,
			strconv.Itoa(e.Status),
			rt,
			sent,
		}
	}
	m.Table.SetRows(rows)
}

func (m TrafficModel) load() tea.Cmd {
	backend, q := m.Backend, m.Query
	return func() tea.Msg {
		entries, err := call("traffic logs", func(ctx context.Context) ([]traffic.Entry, error) {
			return backend.TrafficLogs(ctx, q)
		})
		return trafficMsg{entries: entries, err: err}
	}
}

// export writes the loaded entries as CSV.
func (m TrafficModel) export(now time.Time) tea.Cmd {
	entries := m.Entries
	path := filepath.Join(m.ExportDir, traffic.ExportFilename(now))
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return exportedMsg{err: err}
		}
		if err := traffic.WriteCSV(f, entries); err != nil {
			f.Close()
			return exportedMsg{err: err}
		}
		if err := f.Close(); err != nil {
			return exportedMsg{err: err}
		}
		DebugLog("exported %d entries to %s", len(entries), path)
		return exportedMsg{path: path}
	}
}

func (m TrafficModel) startFollow() *followState {
	ctx, cancel := context.WithCancel(context.Background())
	fs := &followState{
		cancel:  cancel,
		entries: make(chan traffic.Entry, 64),
		done:    make(chan error, 1),
	}

	backend, q := m.Backend, m.Query
	go func() {
		err := backend.FollowTraffic(ctx, q, func(e traffic.Entry) {
			select {
			case fs.entries <- e:
			case <-ctx.Done():
			}
		})
		DebugLog("follow ended: %v", err)
		fs.done <- err
	}()
	return fs
}

// waitForLive delivers the next live entry or the end of the session.
func waitForLive(fs *followState) tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-fs.entries:
			return liveEntryMsg{entry: e, follow: fs}
		case err := <-fs.done:
			return followEndedMsg{err: err, follow: fs}
		}
	}
}

func (m TrafficModel) View() string {
	title := "TRAFFIC"
	if m.follow != nil {
		title += StyleStatusGood.Render("  ● LIVE")
	}

	parts := []string{StyleHeader.Render(title)}
	if m.Filter.Focused() || m.Filter.Value() != "" {
		parts = append(parts, m.Filter.View())
	}
	if len(m.Entries) == 0 && !m.Busy {
		parts = append(parts, StyleCard.Render(StyleSubtitle.Render("No traffic logs available")))
	} else {
		parts = append(parts, StyleCard.Render(m.Table.View()))
	}
	parts = append(parts,
		StyleHelp.Render(fmt.Sprintf("%d entries  /: filter  c: clear  r: refresh  e: export CSV  f: follow", len(m.Entries))),
	)
	if fb := feedback(m.Notice, m.Err); fb != "" {
		parts = append(parts, fb)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
