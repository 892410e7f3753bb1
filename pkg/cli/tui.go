package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the color pair the terminal frames are drawn with.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is green-on-dark, readable on both light and dark terminals.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the lipgloss styles derived from a Theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
}

// NewStyles derives the frame styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Section is one labeled region of a Frame. Content is re-evaluated on
// every render so the caller can feed it live data.
type Section struct {
	Label   string
	Content func() []string
}

// Frame draws a full-screen bordered view: a title row, labeled
// sections that split the remaining height evenly, and a help line.
// It is repainted in place by the caller, not a retained UI.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the frame at the given terminal size.
func (f Frame) Render(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Loading..."
	}

	var b strings.Builder
	border := f.Styles.Border
	inner := width - 2

	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(border.Render("╭" + strings.Repeat("─", inner) + "╮"))
	line(f.titleRow(width))
	line(border.Render("│") + strings.Repeat(" ", inner) + border.Render("│"))

	// Height left for content after the three header rows, the bottom
	// border, the help line, and one label row per section.
	sections := len(f.Sections)
	if sections == 0 {
		sections = 1
	}
	rows := max((height-5-sections)/sections, 2)

	for _, sec := range f.Sections {
		f.writeSection(&b, sec, rows, width)
	}

	line(border.Render("╰" + strings.Repeat("─", inner) + "╯"))
	b.WriteString(f.Styles.Help.Render(f.Help))
	return b.String()
}

// titleRow lays out "│ title [status]        │" padded to width.
func (f Frame) titleRow(width int) string {
	border := f.Styles.Border
	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	gap := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	return border.Render("│") + " " + title + " " + status +
		strings.Repeat(" ", gap) + " " + border.Render("│")
}

// writeSection emits the label separator and exactly rows content
// lines, showing the tail of the section when it overflows.
func (f Frame) writeSection(b *strings.Builder, sec Section, rows, width int) {
	border := f.Styles.Border
	label := f.Styles.Label.Render(sec.Label)
	gap := max(0, width-3-lipgloss.Width(label))
	b.WriteString(border.Render("├─") + label + border.Render(strings.Repeat("─", gap)+"┤"))
	b.WriteByte('\n')

	content := sec.Content()
	if len(content) > rows {
		content = content[len(content)-rows:]
	}
	innerW := width - 4
	for i := 0; i < rows; i++ {
		var text string
		if i < len(content) {
			text = content[i]
		}
		if innerW > 1 && lipgloss.Width(text) > innerW {
			text = clipToWidth(text, innerW-1) + "…"
		}
		b.WriteString(border.Render("│") + " " + text +
			strings.Repeat(" ", max(0, innerW-lipgloss.Width(text))) + " " + border.Render("│"))
		b.WriteByte('\n')
	}
}

// clipToWidth cuts s to at most width display cells without splitting
// a wide rune.
func clipToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	used := 0
	for i, r := range s {
		w := lipgloss.Width(string(r))
		if used+w > width {
			return s[:i]
		}
		used += w
	}
	return s
}
