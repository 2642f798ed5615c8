package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).MarginLeft(2)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Margin(1, 0)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("140")).MarginTop(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).MarginTop(1)

	downCardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("24")).
			Foreground(lipgloss.Color("45")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.RoundedBorder())

	upCardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.RoundedBorder())

	myCardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("22")).
			Foreground(lipgloss.Color("46")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("46"))

	goneCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.HiddenBorder())
)
