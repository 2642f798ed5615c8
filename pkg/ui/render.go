package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the whole screen: title, grid, status line, key help.
func (ui *ScrambleUI) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf("Memory Scramble — %s", ui.player)))
	s.WriteString("\n\n")

	for r := 0; r < ui.rows; r++ {
		cells := make([]string, 0, ui.cols)
		for c := 0; c < ui.cols; c++ {
			cells = append(cells, ui.renderSpot(r, c))
		}
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, cells...))
		s.WriteString("\n")
	}

	switch {
	case ui.err != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", ui.err)))
	case ui.busy:
		s.WriteString(statusStyle.Render(ui.message + " …"))
	case ui.message != "":
		s.WriteString(statusStyle.Render(ui.message))
	}

	s.WriteString(helpStyle.Render("\narrows/hjkl move · enter flip · s stats · q quit"))
	return s.String()
}

func (ui *ScrambleUI) renderSpot(r, c int) string {
	sp := ui.spots[r*ui.cols+c]

	var style lipgloss.Style
	var text string
	switch sp.kind {
	case spotNone:
		style, text = goneCardStyle, " "
	case spotDown:
		style, text = downCardStyle, "▒"
	case spotUp:
		style, text = upCardStyle, sp.value
	case spotMine:
		style, text = myCardStyle, sp.value
	}

	if r == ui.cursorRow && c == ui.cursorCol {
		style = style.BorderForeground(lipgloss.Color("205"))
	}
	return style.Render(text)
}
