package tui

import (
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

// Palette is one of the user-selectable accent schemes. The four colors
// match the product palette exactly; everything on screen derives from them.
type Palette struct {
	Name app.ThemeColor

	Accent lipgloss.Color
	Deep   lipgloss.Color
	Light  lipgloss.Color
	Bg     lipgloss.Color

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Muted    lipgloss.Style
	Badge    lipgloss.Style
	Selected lipgloss.Style
	Option   lipgloss.Style
	Pane     lipgloss.Style
	PaneHi   lipgloss.Style
	InputBox lipgloss.Style
	Footer   lipgloss.Style
	Spinner  lipgloss.Style
	ErrText  lipgloss.Style

	RoleYou lipgloss.Style
	RoleAI  lipgloss.Style
}

type paletteColors struct {
	accent, deep, light, bg string
}

var palettes = map[app.ThemeColor]paletteColors{
	app.ThemeRose:     {accent: "#d4a5a5", deep: "#a67c7c", light: "#f5ebeb", bg: "#faf7f7"},
	app.ThemeBeige:    {accent: "#d2b48c", deep: "#8b7355", light: "#f5f1e8", bg: "#fdfaf5"},
	app.ThemeLavender: {accent: "#b5a8b9", deep: "#7e7482", light: "#efebf0", bg: "#f9f8fa"},
	app.ThemeBlue:     {accent: "#b0c4de", deep: "#708090", light: "#e6eef3", bg: "#f5f8fa"},
	app.ThemeGrey:     {accent: "#707070", deep: "#333333", light: "#e0e0e0", bg: "#f5f5f5"},
	app.ThemeSage:     {accent: "#b2ac88", deep: "#747d63", light: "#ecede8", bg: "#f8f9f7"},
	app.ThemeTeal:     {accent: "#78a2a2", deep: "#4a6d6d", light: "#e6eeee", bg: "#f4f8f8"},
	// The onboarding screens run on the warm paper palette no matter what
	// color the profile carries.
	app.ThemeNeutral: {accent: "#d2b48c", deep: "#8b7355", light: "#f5f1e8", bg: "#fdfaf5"},
}

// PaletteFor builds the styled palette for a theme color. Unknown names get
// the rose palette, same as the profile fallback.
func PaletteFor(name app.ThemeColor) Palette {
	colors, ok := palettes[name]
	if !ok {
		name = app.DefaultTheme
		colors = palettes[name]
	}

	p := Palette{
		Name:   name,
		Accent: lipgloss.Color(colors.accent),
		Deep:   lipgloss.Color(colors.deep),
		Light:  lipgloss.Color(colors.light),
		Bg:     lipgloss.Color(colors.bg),
	}

	errColor := lipgloss.Color("#b42318")

	p.Title = lipgloss.NewStyle().Bold(true).Foreground(p.Deep)
	p.Subtitle = lipgloss.NewStyle().Foreground(p.Deep)
	p.Muted = lipgloss.NewStyle().Foreground(p.Accent)
	p.Badge = lipgloss.NewStyle().Bold(true).Foreground(p.Bg).Background(p.Deep).Padding(0, 1)
	p.Selected = lipgloss.NewStyle().Bold(true).Foreground(p.Deep).Background(p.Light)
	p.Option = lipgloss.NewStyle().Foreground(p.Deep)
	p.Pane = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Accent).Padding(0, 1)
	p.PaneHi = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Deep).Padding(0, 1)
	p.InputBox = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(p.Accent).Padding(0, 1)
	p.Footer = lipgloss.NewStyle().Foreground(p.Accent)
	p.Spinner = lipgloss.NewStyle().Bold(true).Foreground(p.Deep)
	p.ErrText = lipgloss.NewStyle().Bold(true).Foreground(errColor)

	p.RoleYou = lipgloss.NewStyle().Bold(true).Foreground(p.Deep)
	p.RoleAI = lipgloss.NewStyle().Bold(true).Foreground(p.Accent)
	return p
}
