package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

var vaultFilters = []app.MemoryKind{
	"", app.MemoryNote, app.MemoryEvent, app.MemoryRelationship,
	app.MemoryGoal, app.MemoryHealth, app.MemoryFinance, app.MemoryPattern,
}

var suggestedPrompts = []string{
	"Tell me about someone important to you",
	"What's a goal you're working toward?",
	"How has your health been lately?",
	"Share a moment from today worth keeping",
}

// vaultScreen browses everything the assistant has remembered, newest
// first, filterable by kind.
type vaultScreen struct {
	filter int
	offset int
}

func newVaultScreen() *vaultScreen {
	return &vaultScreen{}
}

func (s *vaultScreen) Update(msg tea.Msg, st app.SessionState) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "left", "h":
		s.filter = (s.filter + len(vaultFilters) - 1) % len(vaultFilters)
		s.offset = 0
	case "right", "l":
		s.filter = (s.filter + 1) % len(vaultFilters)
		s.offset = 0
	case "up", "k":
		if s.offset > 0 {
			s.offset--
		}
	case "down", "j":
		if s.offset < maxInt(len(s.filtered(st))-1, 0) {
			s.offset++
		}
	}
	return nil
}

func (s *vaultScreen) filtered(st app.SessionState) []app.Memory {
	want := vaultFilters[s.filter]
	// Newest first.
	out := make([]app.Memory, 0, len(st.Memories))
	for i := len(st.Memories) - 1; i >= 0; i-- {
		m := st.Memories[i]
		if want == "" || m.Kind == want {
			out = append(out, m)
		}
	}
	return out
}

func (s *vaultScreen) View(p Palette, st app.SessionState, width int) string {
	var b strings.Builder
	b.WriteString(p.Title.Render("MindVault") + "\n")

	tabs := make([]string, 0, len(vaultFilters))
	for i, f := range vaultFilters {
		label := "all"
		if f != "" {
			label = string(f)
		}
		if i == s.filter {
			tabs = append(tabs, p.Selected.Render(" "+label+" "))
		} else {
			tabs = append(tabs, p.Muted.Render(" "+label+" "))
		}
	}
	b.WriteString(strings.Join(tabs, "") + "\n\n")

	items := s.filtered(st)
	if len(items) == 0 {
		if len(st.Memories) == 0 {
			b.WriteString(p.Subtitle.Render("Your vault is waiting for its first memory.") + "\n\n")
			b.WriteString(p.Muted.Render("Try asking in chat:") + "\n")
			for _, prompt := range suggestedPrompts {
				b.WriteString(p.Option.Render("  · "+prompt) + "\n")
			}
		} else {
			b.WriteString(p.Muted.Render("Nothing of this kind yet.") + "\n")
		}
	}

	const pageSize = 12
	end := min(s.offset+pageSize, len(items))
	for i := s.offset; i < end; i++ {
		m := items[i]
		head := fmt.Sprintf("%-12s %s", strings.ToUpper(string(m.Kind)), shortTimestamp(m.Timestamp))
		b.WriteString(p.Subtitle.Render(head) + "\n")
		line := m.Content
		if m.Kind == app.MemoryGoal {
			line = fmt.Sprintf("%s  (%d%%)", line, m.Meta.Progress)
		}
		b.WriteString(p.Option.Render("  "+line) + "\n")
	}
	if len(items) > pageSize {
		b.WriteString("\n" + p.Muted.Render(fmt.Sprintf("%d-%d of %d", s.offset+1, end, len(items))))
	}

	b.WriteString("\n" + p.Footer.Render("←/→: filter · ↑/↓: scroll"))
	return lipgloss.NewStyle().Padding(1, 2).Render(
		p.Pane.Width(min(width-4, 76)).Render(b.String()))
}

func shortTimestamp(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

