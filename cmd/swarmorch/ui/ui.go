package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorAccent = lipgloss.Color("33")
	colorGood   = lipgloss.Color("42")
	colorWarn   = lipgloss.Color("214")
	colorBad    = lipgloss.Color("203")
	colorMuted  = lipgloss.Color("244")
	colorBorder = lipgloss.Color("238")
)

var (
	AccentStyle = lipgloss.NewStyle().Foreground(colorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)

	toneStyles = [...]lipgloss.Style{
		toneNeutral: MutedStyle,
		toneGood:    lipgloss.NewStyle().Foreground(colorGood),
		toneWarn:    lipgloss.NewStyle().Foreground(colorWarn),
		toneBad:     lipgloss.NewStyle().Foreground(colorBad),
	}
)

// tone classifies a cluster state for colouring.
type tone uint8

const (
	toneNeutral tone = iota
	toneGood
	toneWarn
	toneBad
)

func (t tone) render(s string) string { return toneStyles[t].Render(s) }

func Bold(s string) string  { return BoldStyle.Render(s) }
func Muted(s string) string { return MutedStyle.Render(s) }

func SuccessMsg(format string, a ...any) string {
	return toneGood.render("✓") + " " + fmt.Sprintf(format, a...)
}

func WarnMsg(format string, a ...any) string {
	return toneWarn.render("!") + " " + fmt.Sprintf(format, a...)
}

func InfoMsg(format string, a ...any) string {
	return AccentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

// Pair is one line of KeyValues output.
type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders pairs as aligned "key: value" lines, each ending in a
// newline.
func KeyValues(indent string, pairs ...Pair) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p.key)+1)
	}

	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(indent)
		sb.WriteString(MutedStyle.Render(fmt.Sprintf("%-*s", width, p.key+":")))
		sb.WriteString(" ")
		sb.WriteString(p.value)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Table renders rows under bold headers inside a rounded border. Cells keep
// the styling callers already applied.
func Table(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
