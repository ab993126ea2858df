package tui

import (
	"context"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/ngxweb/internal/lb"
)

// ServersModel manages the members of the load balancer pool.
type ServersModel struct {
	Backend Backend
	Table   table.Model
	Servers []lb.Server

	Form    *huh.Form
	draft   *ServerForm
	confirm *confirmation

	Busy   bool
	Notice string
	Err    string
	Width  int
	Height int
}

type removeServerIntent struct{ id string }

type (
	serversMsg struct {
		servers []lb.Server
		err     error
	}
	serverAddedMsg struct {
		server *lb.Server
		err    error
	}
	serverRemovedMsg struct {
		id  string
		err error
	}
	serverHealthMsg struct {
		id     string
		status lb.Status
		err    error
	}
)

func NewServersModel(backend Backend) ServersModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 18},
			{Title: "Address", Width: 22},
			{Title: "Weight", Width: 6},
			{Title: "Max Conns", Width: 9},
			{Title: "Health Path", Width: 12},
			{Title: "Status", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
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

	return ServersModel{Backend: backend, Table: t, Busy: true}
}

func (m ServersModel) Init() tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		servers, err := call("list servers", func(ctx context.Context) ([]lb.Server, error) {
			return backend.ListServers(ctx)
		})
		return serversMsg{servers: servers, err: err}
	}
}

// Capturing reports whether a form or prompt has focus.
func (m ServersModel) Capturing() bool {
	return m.Form != nil || m.confirm != nil
}

func (m ServersModel) selected() (lb.Server, bool) {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Servers) {
		return lb.Server{}, false
	}
	return m.Servers[i], true
}

func (m ServersModel) Update(msg tea.Msg) (ServersModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetHeight(max(msg.Height-12, 5))
		return m, nil

	case serversMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to load servers", msg.err)
			return m, nil
		}
		m.Servers = msg.servers
		m.refreshRows()
		return m, nil

	case serverAddedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to add server", msg.err)
			return m, nil
		}
		m.Notice, m.Err = "Server "+msg.server.ID+" added", ""
		m.Busy = true
		return m, m.Init()

	case serverRemovedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to remove server", msg.err)
			return m, nil
		}
		m.Notice, m.Err = "Server "+msg.id+" removed", ""
		m.Busy = true
		return m, m.Init()

	case serverHealthMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Health check failed", msg.err)
			return m, nil
		}
		for i := range m.Servers {
			if m.Servers[i].ID == msg.id {
				m.Servers[i].Status = msg.status
			}
		}
		m.refreshRows()
		m.Notice, m.Err = msg.id+" is "+string(msg.status), ""
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	switch {
	case m.confirm != nil:
		_, _, cmd = m.confirm.Update(msg)
	case m.Form != nil:
		var form tea.Model
		form, cmd = m.Form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.Form = f
		}
	}
	return m, cmd
}

func (m ServersModel) updateKeys(msg tea.KeyMsg) (ServersModel, tea.Cmd) {
	if m.confirm != nil {
		done, accepted, cmd := m.confirm.Update(msg)
		if !done {
			return m, cmd
		}
		intent, _ := m.confirm.intent.(removeServerIntent)
		m.confirm = nil
		if !accepted {
			return m, nil
		}
		m.Busy = true
		m.Notice, m.Err = "", ""
		return m, m.remove(intent.id)
	}

	if m.Form != nil {
		return m.updateForm(msg)
	}

	switch msg.String() {
	case "a", "n":
		m.draft = &ServerForm{Port: "80"}
		m.Form = AutoForm(m.draft)
		return m, m.Form.Init()
	case "x", "delete":
		if s, ok := m.selected(); ok {
			m.confirm = newConfirmation("Remove "+s.ID+"?", "The member is removed from the upstream pool.",
				removeServerIntent{id: s.ID})
			return m, m.confirm.Init()
		}
		return m, nil
	case "h":
		if s, ok := m.selected(); ok && !m.Busy {
			m.Busy = true
			m.Notice, m.Err = "", ""
			return m, m.check(s.ID)
		}
		return m, nil
	case "r":
		if !m.Busy {
			m.Busy = true
			return m, m.Init()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m ServersModel) updateForm(msg tea.KeyMsg) (ServersModel, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.Form = nil
		return m, nil
	}

	form, cmd := m.Form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.Form = f
	}
	switch m.Form.State {
	case huh.StateCompleted:
		m.Form = nil
		req, err := m.draft.Request()
		if err != nil {
			m.Err = errText("Invalid server", err)
			return m, nil
		}
		m.Busy = true
		m.Notice, m.Err = "", ""
		return m, m.add(req)
	case huh.StateAborted:
		m.Form = nil
		return m, nil
	}
	return m, cmd
}

func (m *ServersModel) refreshRows() {
	rows := make([]table.Row, len(m.Servers))
	for i, s := range m.Servers {
		weight, conns, path := "-", "-", "-"
		if s.Weight != nil {
			weight = strconv.FormatUint(uint64(*s.Weight), 10)
		}
		if s.MaxConnections != nil {
			conns = strconv.FormatUint(uint64(*s.MaxConnections), 10)
		}
		if s.HealthCheck != nil && s.HealthCheck.Path != "" {
			path = s.HealthCheck.Path
		}
		rows[i] = table.Row{s.Name, s.ID, weight, conns, path, string(s.Status)}
	}
	m.Table.SetRows(rows)
}

func (m ServersModel) add(req lb.CreateRequest) tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		s, err := call("add server", func(ctx context.Context) (*lb.Server, error) {
			return backend.AddServer(ctx, req)
		})
		return serverAddedMsg{server: s, err: err}
	}
}

func (m ServersModel) remove(id string) tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		_, err := call("remove server", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, backend.RemoveServer(ctx, id)
		})
		return serverRemovedMsg{id: id, err: err}
	}
}

func (m ServersModel) check(id string) tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		status, err := call("server health", func(ctx context.Context) (lb.Status, error) {
			return backend.ServerHealth(ctx, id)
		})
		return serverHealthMsg{id: id, status: status, err: err}
	}
}

func (m ServersModel) View() string {
	var body string
	switch {
	case m.Form != nil:
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render("ADD SERVER"),
			StyleCard.Render(m.Form.View()),
			StyleSubtitle.Render("Esc to cancel"),
		)
	case len(m.Servers) == 0 && !m.Busy:
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render("LOAD BALANCER"),
			StyleCard.Render(StyleSubtitle.Render("No servers in the pool")),
			StyleHelp.Render("a: add server  r: refresh"),
		)
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render("LOAD BALANCER"),
			StyleCard.Render(m.Table.View()),
			StyleHelp.Render("a: add  x: remove  h: health check  r: refresh"),
		)
	}

	parts := []string{body}
	if m.confirm != nil {
		parts = append(parts, m.confirm.View())
	}
	if fb := feedback(m.Notice, m.Err); fb != "" {
		parts = append(parts, fb)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
