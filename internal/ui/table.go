package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	tableBorderStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// NewStatusTable builds a bordered table for `coord status` output, styled
// the same way the teacher styles its search-result tables
// (internal/ui/table.go).
func NewStatusTable(headers []string) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return lipgloss.NewStyle()
		})
	return t
}
