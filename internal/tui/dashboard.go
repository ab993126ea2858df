package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"grimm.is/ngxweb/internal/client"
	"grimm.is/ngxweb/internal/traffic"
)

// DashboardModel shows Nginx health and overall traffic.
type DashboardModel struct {
	Backend Backend
	Health  *client.Health
	Stats   *traffic.Stats
	Busy    bool
	Err     string
	Width   int
	Height  int
}

type dashboardMsg struct {
	health *client.Health
	stats  *traffic.Stats
	err    error
}

func NewDashboardModel(backend Backend) DashboardModel {
	return DashboardModel{Backend: backend, Busy: true}
}

func (m DashboardModel) Init() tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		health, err := call("health", func(ctx context.Context) (*client.Health, error) {
			return backend.Health(ctx)
		})
		if err != nil {
			return dashboardMsg{err: err}
		}
		stats, err := call("traffic stats", func(ctx context.Context) (*traffic.Stats, error) {
			return backend.TrafficStats(ctx, traffic.Query{})
		})
		return dashboardMsg{health: health, stats: stats, err: err}
	}
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to load dashboard", msg.err)
		} else {
			m.Err = ""
		}
		if msg.health != nil {
			m.Health = msg.health
		}
		if msg.stats != nil {
			m.Stats = msg.stats
		}
	case tea.KeyMsg:
		if msg.String() == "r" && !m.Busy {
			m.Busy = true
			return m, m.Init()
		}
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m DashboardModel) View() string {
	if m.Health == nil {
		if m.Err != "" {
			return lipgloss.JoinVertical(lipgloss.Left,
				StyleHeader.Render("DASHBOARD"),
				StyleError.Render(m.Err),
				StyleSubtitle.Render("Check that the server is running, then press r to retry."),
			)
		}
		return "Loading Dashboard..."
	}

	h := m.Health
	statusText := StyleStatusGood.Render("OK")
	if h.Status != "ok" {
		statusText = StyleStatusWarn.Render(strings.ToUpper(h.Status))
	}
	installed := StyleStatusBad.Render("not installed")
	if h.NginxInstalled {
		installed = StyleStatusGood.Render("installed")
		if h.NginxVersion != "" {
			installed += " " + h.NginxVersion
		}
	}
	configs := StyleStatusWarn.Render("none")
	if h.HasConfigs {
		configs = StyleStatusGood.Render("present")
	}

	statusBlock := StyleCard.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			StyleTitle.Render("Nginx"),
			fmt.Sprintf("Status:  %s", statusText),
			fmt.Sprintf("Binary:  %s", installed),
			fmt.Sprintf("Configs: %s", configs),
			StyleSubtitle.Render(fmt.Sprintf("Server %s, up %s", h.Version, h.Uptime)),
		),
	)

	blocks := []string{statusBlock}
	if s := m.Stats; s != nil {
		var success float64
		if s.TotalRequests > 0 {
			success = float64(s.SuccessRequests) / float64(s.TotalRequests)
		}
		blocks = append(blocks, StyleCard.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				StyleTitle.Render("Traffic"),
				fmt.Sprintf("Requests: %s (%s errors)", humanize.Comma(s.TotalRequests), humanize.Comma(s.ErrorRequests)),
				fmt.Sprintf("Success:  %s", progressBar(success)),
				fmt.Sprintf("Avg time: %.1f ms", s.AvgResponseTime),
				fmt.Sprintf("Rate:     %.1f req/min", s.RequestsPerMinute),
				fmt.Sprintf("Sent:     %s", humanize.Bytes(uint64(s.TotalBytesSent))),
			),
		))
	}
	topRow := lipgloss.JoinHorizontal(lipgloss.Top, blocks...)

	rows := []string{topRow}
	if h.Message != "" && h.Status != "ok" {
		lines := []string{StyleStatusWarn.Render(h.Message)}
		if h.NextSteps != "" {
			lines = append(lines, h.NextSteps)
		}
		if len(h.InstallationInstructions) > 0 {
			lines = append(lines, "", StyleTitle.Render("Install Nginx"))
			platforms := make([]string, 0, len(h.InstallationInstructions))
			for p := range h.InstallationInstructions {
				platforms = append(platforms, p)
			}
			sort.Strings(platforms)
			for _, p := range platforms {
				lines = append(lines, fmt.Sprintf("%-8s %s", p+":", h.InstallationInstructions[p]))
			}
		}
		rows = append(rows, StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	if m.Err != "" {
		rows = append(rows, StyleError.Render(m.Err))
	}
	rows = append(rows, StyleHelp.Render("r: refresh"))

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// Simple text-based progress bar helper
func progressBar(percent float64) string {
	w := 20
	filled := int(float64(w) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", w-filled)
	return fmt.Sprintf("[%s] %.0f%%", bar, percent*100)
}
