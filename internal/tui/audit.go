package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/client"
)

// AuditLimit is the number of events the audit view loads.
const AuditLimit = 100

// AuditModel lists recent changes made through the API.
type AuditModel struct {
	Backend Backend
	List    list.Model
	Events  []audit.Event
	Busy    bool
	Err     string
	Width   int
	Height  int
}

type auditItem struct {
	evt audit.Event
}

func (i auditItem) Title() string {
	return i.evt.Action + "  " + i.evt.Resource
}

func (i auditItem) Description() string {
	desc := fmt.Sprintf("%s by %s, status %d", humanize.Time(i.evt.Timestamp), i.evt.Actor, i.evt.Status)
	if i.evt.IP != "" {
		desc += " from " + i.evt.IP
	}
	return desc
}

func (i auditItem) FilterValue() string { return i.evt.Action + " " + i.evt.Resource + " " + i.evt.Actor }

type auditMsg struct {
	events []audit.Event
	err    error
}

func NewAuditModel(backend Backend) AuditModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Audit Trail"
	l.Styles.Title = StyleTitle
	l.SetStatusBarItemName("event", "events")

	return AuditModel{
		Backend: backend,
		List:    l,
		Busy:    true,
	}
}

func (m AuditModel) Init() tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		events, err := call("audit", func(ctx context.Context) ([]audit.Event, error) {
			return backend.AuditEvents(ctx, client.AuditQuery{Limit: AuditLimit})
		})
		return auditMsg{events: events, err: err}
	}
}

func (m AuditModel) Update(msg tea.Msg) (AuditModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case auditMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to load audit events", msg.err)
			return m, nil
		}
		m.Err = ""
		m.Events = msg.events
		items := make([]list.Item, len(msg.events))
		for i, e := range msg.events {
			items[i] = auditItem{evt: e}
		}
		return m, m.List.SetItems(items)

	case tea.KeyMsg:
		if msg.String() == "r" && !m.Busy && !m.Capturing() {
			m.Busy = true
			return m, m.Init()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.List.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	}

	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

// Capturing reports whether the filter input has focus.
func (m AuditModel) Capturing() bool {
	return m.List.FilterState() == list.Filtering
}

func (m AuditModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render("AUDIT (r: refresh, /: filter)"),
		StyleCard.Render(m.List.View()),
		feedback("", m.Err),
	)
}
