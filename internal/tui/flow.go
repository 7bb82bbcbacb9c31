package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

// flowScreen is the reflection view: a read-only picture of how the
// relationship with the assistant is developing.
type flowScreen struct{}

func newFlowScreen() *flowScreen {
	return &flowScreen{}
}

func (s *flowScreen) Update(msg tea.Msg) tea.Cmd {
	return nil
}

// developingThreshold: below this many messages and memories the
// relationship is still "developing" and the view stays encouraging.
const developingThreshold = 3

func (s *flowScreen) View(p Palette, st app.SessionState) string {
	var b strings.Builder
	b.WriteString(p.Title.Render("Flow") + "\n\n")

	developing := len(st.History) < developingThreshold && len(st.Memories) < developingThreshold
	if developing {
		b.WriteString(p.Subtitle.Render("We're still getting to know each other.") + "\n")
		b.WriteString(p.Muted.Render("Keep chatting and patterns will start showing up here.") + "\n")
	} else {
		b.WriteString(p.Option.Render(fmt.Sprintf("%d conversations held", countByRole(st.History, app.RoleUser))) + "\n")
		b.WriteString(p.Option.Render(fmt.Sprintf("%d memories kept", len(st.Memories))) + "\n")
		if top, n := topMemoryKind(st.Memories); top != "" {
			b.WriteString(p.Option.Render(fmt.Sprintf("most of them about %s (%d)", top, n)) + "\n")
		}
		if last := lastMemoryDate(st.Memories); last != "" {
			b.WriteString(p.Option.Render("last memory kept on "+last) + "\n")
		}
		if goals := countKind(st.Memories, app.MemoryGoal); goals > 0 {
			done := 0
			for _, m := range st.Memories {
				if m.Kind == app.MemoryGoal && m.Meta.IsCompleted {
					done++
				}
			}
			b.WriteString(p.Option.Render(fmt.Sprintf("%d of %d goals completed", done, goals)) + "\n")
		}
	}

	return lipgloss.NewStyle().Padding(1, 2).Render(
		p.Pane.Width(56).Render(b.String()))
}

func countByRole(history []app.ChatMessage, role app.MessageRole) int {
	n := 0
	for _, msg := range history {
		if msg.Role == role {
			n++
		}
	}
	return n
}

func countKind(memories []app.Memory, kind app.MemoryKind) int {
	n := 0
	for _, m := range memories {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func lastMemoryDate(memories []app.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	ts := memories[len(memories)-1].Timestamp
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func topMemoryKind(memories []app.Memory) (app.MemoryKind, int) {
	counts := make(map[app.MemoryKind]int)
	for _, m := range memories {
		counts[m.Kind]++
	}
	var top app.MemoryKind
	best := 0
	for kind, n := range counts {
		if n > best {
			top, best = kind, n
		}
	}
	return top, best
}
