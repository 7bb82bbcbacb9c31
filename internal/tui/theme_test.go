package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"livo/internal/app"
)

func TestPaletteForKnownColors(t *testing.T) {
	t.Parallel()
	rose := PaletteFor(app.ThemeRose)
	require.Equal(t, app.ThemeRose, rose.Name)
	require.Equal(t, "#d4a5a5", string(rose.Accent))
	require.Equal(t, "#a67c7c", string(rose.Deep))

	teal := PaletteFor(app.ThemeTeal)
	require.Equal(t, "#78a2a2", string(teal.Accent))
	require.Equal(t, "#f4f8f8", string(teal.Bg))
}

func TestPaletteForUnknownFallsBackToRose(t *testing.T) {
	t.Parallel()
	p := PaletteFor("magenta")
	require.Equal(t, app.DefaultTheme, p.Name)
	require.Equal(t, "#d4a5a5", string(p.Accent))
}

func TestNeutralPaletteIsWarmPaper(t *testing.T) {
	t.Parallel()
	neutral := PaletteFor(app.ThemeNeutral)
	beige := PaletteFor(app.ThemeBeige)
	require.Equal(t, string(beige.Accent), string(neutral.Accent))
	require.Equal(t, string(beige.Bg), string(neutral.Bg))
	require.Equal(t, app.ThemeNeutral, neutral.Name)
}

func TestEveryProfileColorHasAPalette(t *testing.T) {
	t.Parallel()
	for _, color := range []app.ThemeColor{
		app.ThemeRose, app.ThemeBeige, app.ThemeLavender, app.ThemeBlue,
		app.ThemeGrey, app.ThemeSage, app.ThemeTeal,
	} {
		p := PaletteFor(color)
		require.Equal(t, color, p.Name)
		require.NotEmpty(t, string(p.Accent))
	}
}
