package tui

import "github.com/charmbracelet/lipgloss"

// Console palette, loosely following the Nginx greens.
var (
	ColorAccent = lipgloss.Color("#62C462") // Accents and active items
	ColorDeep   = lipgloss.Color("#4A6B5A") // Secondary text and borders
	ColorDark   = lipgloss.Color("#1E2D24") // Dark background elements
	ColorText   = lipgloss.Color("#E0E0E0") // Primary text
	ColorAlert  = lipgloss.Color("#FF6B6B") // Errors, 5xx, unhealthy
	ColorGood   = lipgloss.Color("#4ECDC4") // Success, 2xx, healthy
	ColorWarn   = lipgloss.Color("#FFE66D") // Warnings, 4xx
	ColorMuted  = lipgloss.Color("#6c757d") // Muted text
)

// Styles
var (
	// Headers and Titles
	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep).
			Padding(0, 1)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Italic(true)

	// Status Indicators
	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorAlert).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)

	// Panel/Card Styles
	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			Margin(0, 1)

	// Table Styles
	StyleTableRow = lipgloss.NewStyle().
			Padding(0, 1)

	StyleTableRowSelected = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Background(ColorDeep).
				Bold(true).
				Padding(0, 1)

	// Form/Input Styles
	StyleInputPrompt = lipgloss.NewStyle().Foreground(ColorAccent)

	// One-line feedback under a view
	StyleNotice = lipgloss.NewStyle().Foreground(ColorGood)
	StyleError  = lipgloss.NewStyle().Foreground(ColorAlert)
	StyleHelp   = lipgloss.NewStyle().Foreground(ColorMuted)

	// Raw configuration text
	StyleCode = lipgloss.NewStyle().
			Foreground(ColorText).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorDeep).
			PaddingLeft(1)

	// App container
	StyleApp = lipgloss.NewStyle().Margin(1, 2)

	// Top Bar / Menu Styles
	StyleTopBar = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			MarginBottom(1)

	StyleMenuItem = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Padding(0, 1)

	StyleMenuItemActive = lipgloss.NewStyle().
				Foreground(ColorDark).
				Background(ColorAccent).
				Bold(true).
				Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Faint(true)
)
