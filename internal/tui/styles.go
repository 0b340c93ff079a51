package tui

import "github.com/charmbracelet/lipgloss"

var (
	inputStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("205"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selfStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	peerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Faint(true)
	onlineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	offlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	helpStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)
