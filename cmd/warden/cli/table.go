// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// columnSeparator sits between table columns.
const columnSeparator = "  "

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "241"})
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"})
)

// Cell styles a Table cell when the table is rendered styled.
type Cell int

const (
	CellPlain Cell = iota
	CellMuted
	CellGood
	CellBad
)

// Table renders left-aligned columns. Cells wider than their column's
// MaxWidth are truncated with an ellipsis.
type Table struct {
	Headers []string

	// MaxWidths caps each column. Zero or missing means no cap.
	MaxWidths []int

	// Styled enables bold headers and cell colors.
	Styled bool

	rows   [][]string
	styles [][]Cell
}

// AddRow appends a row of plain cells.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
	t.styles = append(t.styles, nil)
}

// AddStyledRow appends a row with per-cell styles.
func (t *Table) AddStyledRow(cells []string, styles []Cell) {
	t.rows = append(t.rows, cells)
	t.styles = append(t.styles, styles)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	widths := t.columnWidths()

	var builder strings.Builder
	header := t.formatRow(t.Headers, widths)
	if t.Styled {
		header = headerStyle.Render(header)
	}
	builder.WriteString(strings.TrimRight(header, " "))
	builder.WriteByte('\n')

	for index, row := range t.rows {
		cells := make([]string, len(widths))
		for column := range widths {
			if column < len(row) {
				cells[column] = t.fit(row[column], widths[column])
			}
			if t.Styled && column < len(t.styles[index]) {
				cells[column] = styleFor(t.styles[index][column]).Render(cells[column])
			}
		}
		builder.WriteString(strings.TrimRight(t.join(cells, widths), " "))
		builder.WriteByte('\n')
	}

	_, err := io.WriteString(w, builder.String())
	return err
}

func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.Headers))
	for column, header := range t.Headers {
		widths[column] = lipgloss.Width(header)
	}
	for _, row := range t.rows {
		for column := 0; column < len(row) && column < len(widths); column++ {
			widths[column] = max(widths[column], lipgloss.Width(row[column]))
		}
	}
	for column := range widths {
		if column < len(t.MaxWidths) && t.MaxWidths[column] > 0 {
			widths[column] = min(widths[column], t.MaxWidths[column])
		}
	}
	return widths
}

func (t *Table) fit(cell string, width int) string {
	if lipgloss.Width(cell) > width {
		return ansi.Truncate(cell, width, "…")
	}
	return cell
}

func (t *Table) formatRow(cells []string, widths []int) string {
	fitted := make([]string, len(widths))
	for column := range widths {
		if column < len(cells) {
			fitted[column] = t.fit(cells[column], widths[column])
		}
	}
	return t.join(fitted, widths)
}

// join pads each cell to its column width by visible width, so styled
// cells line up with plain ones.
func (t *Table) join(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for column, width := range widths {
		padding := max(width-lipgloss.Width(cells[column]), 0)
		parts[column] = cells[column] + strings.Repeat(" ", padding)
	}
	return strings.Join(parts, columnSeparator)
}

func styleFor(cell Cell) lipgloss.Style {
	switch cell {
	case CellMuted:
		return mutedStyle
	case CellGood:
		return goodStyle
	case CellBad:
		return badStyle
	default:
		return lipgloss.NewStyle()
	}
}
