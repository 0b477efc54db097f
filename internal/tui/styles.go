package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// CellGap is the blank columns between grid cells.
const CellGap = 1

// accent is the highlight color for the selected cell and status bar.
var accent = lipgloss.AdaptiveColor{Light: "4", Dark: "12"}

// dim is the muted color for placeholders and chrome.
var dim = lipgloss.AdaptiveColor{Light: "240", Dark: "245"}

// failedColor marks tiles whose load exhausted its retries.
var failedColor = lipgloss.AdaptiveColor{Light: "1", Dark: "9"}

// SelectedCell returns the border style for the cursor's cell.
func SelectedCell() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent)
}

// PlainCell returns the border style for an unselected cell.
func PlainCell() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim)
}

// PlaceholderStyle renders pending-tile filler.
func PlaceholderStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(dim)
}

// FailedStyle renders the failed-tile glyph.
func FailedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(failedColor)
}

// StatusBar renders the bottom status line.
func StatusBar() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(accent).
		Bold(true)
}

// GridColumns calculates how many cells of cellWidth fit in
// totalWidth with CellGap spacing, with a floor of one.
func GridColumns(totalWidth, cellWidth int) int {
	if cellWidth <= 0 {
		return 1
	}
	cols := (totalWidth + CellGap) / (cellWidth + CellGap)
	if cols < 1 {
		cols = 1
	}
	return cols
}
