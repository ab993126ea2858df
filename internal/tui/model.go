// Package tui is the terminal console: a bubbletea program over the HTTP
// API with a dashboard, the visual configuration editor, traffic logs, the
// load balancer pool and the audit trail.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/ngxweb/internal/brand"
)

// View represents the currently active screen
type View int

const (
	ViewDashboard View = iota
	ViewConfigs
	ViewTraffic
	ViewServers
	ViewAudit
	viewCount
)

// Model is the main application state
type Model struct {
	Backend Backend

	// State
	ActiveView View
	Width      int
	Height     int
	Spinner    spinner.Model

	// Views
	Dashboard DashboardModel
	Configs   ConfigsModel
	Traffic   TrafficModel
	Servers   ServersModel
	Audit     AuditModel
}

// NewModel creates a new initial model
func NewModel(backend Backend) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StyleTitle

	return Model{
		Backend:    backend,
		ActiveView: ViewDashboard,
		Spinner:    sp,
		Dashboard:  NewDashboardModel(backend),
		Configs:    NewConfigsModel(backend),
		Traffic:    NewTrafficModel(backend),
		Servers:    NewServersModel(backend),
		Audit:      NewAuditModel(backend),
	}
}

// Init loads every view
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.Spinner.Tick,
		m.Dashboard.Init(),
		m.Configs.Init(),
		m.Traffic.Init(),
		m.Servers.Init(),
		m.Audit.Init(),
	)
}

// capturing reports whether the active view consumes every key, e.g. while
// a text area or prompt has focus.
func (m Model) capturing() bool {
	switch m.ActiveView {
	case ViewConfigs:
		return m.Configs.Capturing()
	case ViewTraffic:
		return m.Traffic.Capturing()
	case ViewServers:
		return m.Servers.Capturing()
	case ViewAudit:
		return m.Audit.Capturing()
	}
	return false
}

func (m Model) busy() bool {
	switch m.ActiveView {
	case ViewDashboard:
		return m.Dashboard.Busy
	case ViewConfigs:
		return m.Configs.Busy
	case ViewTraffic:
		return m.Traffic.Busy
	case ViewServers:
		return m.Servers.Busy
	case ViewAudit:
		return m.Audit.Busy
	}
	return false
}

// Update handles messages. Keys go to the active view; results of
// asynchronous actions go to every view, each of which ignores the ones it
// did not start.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Traffic.stopFollow()
			return m, tea.Quit
		}
		if !m.capturing() {
			switch msg.String() {
			case "q":
				m.Traffic.stopFollow()
				return m, tea.Quit
			case "tab":
				m.ActiveView = (m.ActiveView + 1) % viewCount
				return m, nil
			case "shift+tab":
				m.ActiveView = (m.ActiveView + viewCount - 1) % viewCount
				return m, nil
			case "1", "2", "3", "4", "5":
				m.ActiveView = View(msg.String()[0] - '1')
				return m, nil
			}
		}

		var cmd tea.Cmd
		switch m.ActiveView {
		case ViewDashboard:
			m.Dashboard, cmd = m.Dashboard.Update(msg)
		case ViewConfigs:
			m.Configs, cmd = m.Configs.Update(msg)
		case ViewTraffic:
			m.Traffic, cmd = m.Traffic.Update(msg)
		case ViewServers:
			m.Servers, cmd = m.Servers.Update(msg)
		case ViewAudit:
			m.Audit, cmd = m.Audit.Update(msg)
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}

	var cmd tea.Cmd
	m.Dashboard, cmd = m.Dashboard.Update(msg)
	cmds = append(cmds, cmd)
	m.Configs, cmd = m.Configs.Update(msg)
	cmds = append(cmds, cmd)
	m.Traffic, cmd = m.Traffic.Update(msg)
	cmds = append(cmds, cmd)
	m.Servers, cmd = m.Servers.Update(msg)
	cmds = append(cmds, cmd)
	m.Audit, cmd = m.Audit.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the application
func (m Model) View() string {
	doc := m.ViewTopBar() + "\n"

	switch m.ActiveView {
	case ViewDashboard:
		doc += m.Dashboard.View()
	case ViewConfigs:
		doc += m.Configs.View()
	case ViewTraffic:
		doc += m.Traffic.View()
	case ViewServers:
		doc += m.Servers.View()
	case ViewAudit:
		doc += m.Audit.View()
	}

	if m.busy() {
		doc += "\n" + m.Spinner.View() + StyleSubtitle.Render(" Working...")
	}
	return StyleApp.Render(doc)
}

// ViewTopBar renders the top navigation menu
func (m Model) ViewTopBar() string {
	var items []string

	menus := []struct {
		View  View
		Label string
		Key   string
	}{
		{ViewDashboard, "Dashboard", "1"},
		{ViewConfigs, "Configs", "2"},
		{ViewTraffic, "Traffic", "3"},
		{ViewServers, "Servers", "4"},
		{ViewAudit, "Audit", "5"},
	}

	for _, menu := range menus {
		key := StyleMenuKey.Render("[" + menu.Key + "]")
		if m.ActiveView == menu.View {
			items = append(items, StyleMenuItemActive.Render(key+" "+menu.Label))
		} else {
			items = append(items, StyleMenuItem.Render(key+" "+menu.Label))
		}
	}

	title := StyleTitle.Render(brand.Name + " ")
	bar := lipgloss.JoinHorizontal(lipgloss.Top, append([]string{title}, items...)...)
	return StyleTopBar.Render(bar)
}

// feedback renders the one-line outcome of the last action.
func feedback(notice, errMsg string) string {
	switch {
	case errMsg != "":
		return StyleError.Render(errMsg)
	case notice != "":
		return StyleNotice.Render(notice)
	}
	return ""
}
