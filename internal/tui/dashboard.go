package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

// focusTask is a lightweight local checklist entry. Focus tasks live for
// the session only; durable facts belong in the vault.
type focusTask struct {
	label string
	done  bool
}

// dashboardScreen shows goal momentum, today's focus list and a vault
// summary.
type dashboardScreen struct {
	application *app.Application

	cursor int
	tasks  []focusTask
	adding bool
	input  textinput.Model

	errMsg string
}

func newDashboardScreen(application *app.Application) *dashboardScreen {
	input := textinput.New()
	input.Placeholder = "What needs doing today?"
	input.CharLimit = 120
	return &dashboardScreen{application: application, input: input}
}

func (s *dashboardScreen) goals(st app.SessionState) []app.Memory {
	var out []app.Memory
	for _, m := range st.Memories {
		if m.Kind == app.MemoryGoal {
			out = append(out, m)
		}
	}
	return out
}

func (s *dashboardScreen) Update(msg tea.Msg, st app.SessionState) tea.Cmd {
	switch msg := msg.(type) {
	case actionDone:
		if msg.scope == "goal" && msg.err != nil {
			s.errMsg = "Couldn't update that goal."
		}
		return nil

	case tea.KeyMsg:
		if s.adding {
			switch msg.String() {
			case "enter":
				if label := strings.TrimSpace(s.input.Value()); label != "" {
					s.tasks = append(s.tasks, focusTask{label: label})
				}
				s.input.SetValue("")
				s.adding = false
				s.input.Blur()
			case "esc":
				s.adding = false
				s.input.Blur()
			default:
				var cmd tea.Cmd
				s.input, cmd = s.input.Update(msg)
				return cmd
			}
			return nil
		}

		goals := s.goals(st)
		rows := len(goals) + len(s.tasks)
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < rows-1 {
				s.cursor++
			}
		case "a":
			s.adding = true
			s.input.Focus()
			return textinput.Blink
		case " ":
			if idx := s.cursor - len(goals); idx >= 0 && idx < len(s.tasks) {
				s.tasks[idx].done = !s.tasks[idx].done
			}
		case "+", "=":
			return s.bumpGoal(goals, 10)
		case "-":
			return s.bumpGoal(goals, -10)
		}
	}
	return nil
}

func (s *dashboardScreen) bumpGoal(goals []app.Memory, delta int) tea.Cmd {
	if s.cursor >= len(goals) {
		return nil
	}
	goal := goals[s.cursor]
	target := goal.Meta.Progress + delta
	application := s.application
	return func() tea.Msg {
		err := application.Coordinator.SetGoalProgress(context.Background(), goal.ID, target)
		return actionDone{scope: "goal", err: err}
	}
}

func (s *dashboardScreen) View(p Palette, st app.SessionState, width int) string {
	name := "there"
	if st.Profile != nil && st.Profile.Name != "" {
		name = st.Profile.Name
	}

	var b strings.Builder
	b.WriteString(p.Title.Render("Hi "+name+".") + "\n\n")

	goals := s.goals(st)
	b.WriteString(p.Subtitle.Render("Goal momentum") + "\n")
	if len(goals) == 0 {
		b.WriteString(p.Muted.Render("No goals yet. Mention one in chat and it lands here.") + "\n")
	}
	for i, g := range goals {
		bar := progressBar(g.Meta.Progress, 20)
		check := " "
		if g.Meta.IsCompleted {
			check = "✓"
		}
		line := fmt.Sprintf("%s %s %3d%%  %s", check, bar, g.Meta.Progress, g.Content)
		if i == s.cursor {
			b.WriteString(p.Selected.Render(line))
		} else {
			b.WriteString(p.Option.Render(line))
		}
		b.WriteByte('\n')
	}

	doneCount := 0
	for _, task := range s.tasks {
		if task.done {
			doneCount++
		}
	}
	focusTitle := "Today's focus"
	if len(s.tasks) > 0 {
		focusTitle = fmt.Sprintf("Today's focus (%d/%d)", doneCount, len(s.tasks))
	}
	b.WriteString("\n" + p.Subtitle.Render(focusTitle) + "\n")
	if len(s.tasks) == 0 && !s.adding {
		b.WriteString(p.Muted.Render("Nothing queued. Press a to add a task.") + "\n")
	}
	for i, task := range s.tasks {
		marker := "[ ]"
		if task.done {
			marker = "[x]"
		}
		line := marker + " " + task.label
		if len(goals)+i == s.cursor {
			b.WriteString(p.Selected.Render(line))
		} else {
			b.WriteString(p.Option.Render(line))
		}
		b.WriteByte('\n')
	}
	if s.adding {
		b.WriteString(s.input.View() + "\n")
	}

	b.WriteString("\n" + p.Subtitle.Render("Vault") + "\n")
	b.WriteString(p.Muted.Render(vaultSummary(st.Memories)) + "\n")

	if s.errMsg != "" {
		b.WriteString("\n" + p.ErrText.Render(s.errMsg))
	}
	b.WriteString("\n" + p.Footer.Render("a: add task · space: toggle · +/-: goal progress"))

	return lipgloss.NewStyle().Padding(1, 2).Render(
		p.Pane.Width(min(width-4, 76)).Render(b.String()))
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

func vaultSummary(memories []app.Memory) string {
	if len(memories) == 0 {
		return "Empty so far. Everything you share gets remembered."
	}
	counts := make(map[app.MemoryKind]int)
	for _, m := range memories {
		counts[m.Kind]++
	}
	order := []app.MemoryKind{
		app.MemoryNote, app.MemoryEvent, app.MemoryRelationship, app.MemoryGoal,
		app.MemoryHealth, app.MemoryFinance, app.MemoryPattern,
	}
	parts := make([]string, 0, len(order))
	for _, kind := range order {
		if counts[kind] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[kind], kind))
		}
	}
	return strings.Join(parts, " · ")
}
