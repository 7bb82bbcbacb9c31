package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

type priorityOption struct {
	id          string
	label       string
	description string
}

var priorityOptions = []priorityOption{
	{id: "mental-health", label: "Mental Health", description: "Mindfulness & wellness"},
	{id: "career", label: "Career", description: "Professional growth"},
	{id: "family", label: "Family", description: "Quality time with loved ones"},
	{id: "hobbies", label: "Hobbies", description: "Personal interests & creativity"},
	{id: "fitness", label: "Fitness", description: "Physical health & exercise"},
	{id: "learning", label: "Learning", description: "Knowledge & skills"},
	{id: "social", label: "Social Life", description: "Friends & connections"},
	{id: "finance", label: "Finance", description: "Financial planning"},
	{id: "travel", label: "Travel", description: "Exploration & adventure"},
	{id: "spirituality", label: "Spirituality", description: "Inner peace & meaning"},
}

// minPriorities is the smallest selection that lets onboarding continue.
const minPriorities = 3

var themeOptions = []app.ThemeColor{
	app.ThemeRose, app.ThemeBeige, app.ThemeLavender, app.ThemeBlue,
	app.ThemeGrey, app.ThemeSage, app.ThemeTeal,
}

const (
	stepWelcome = iota
	stepPriorities
	stepTheme
)

// onboardingScreen walks a new user through priorities and theme choice.
// Completion is written through the coordinator; the screen never advances
// the route itself.
type onboardingScreen struct {
	application *app.Application

	step     int
	cursor   int
	selected map[string]bool
	theme    int

	busy   bool
	errMsg string
}

func newOnboardingScreen(application *app.Application) *onboardingScreen {
	return &onboardingScreen{
		application: application,
		selected:    make(map[string]bool),
	}
}

func (s *onboardingScreen) Update(msg tea.Msg, p Palette, st app.SessionState) tea.Cmd {
	switch msg := msg.(type) {
	case actionDone:
		if msg.scope != "onboarding" {
			return nil
		}
		s.busy = false
		if msg.err != nil {
			s.errMsg = "Couldn't save your choices. Please try again."
		}
		return nil

	case tea.KeyMsg:
		if s.busy {
			return nil
		}
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.step == stepPriorities && s.cursor < len(priorityOptions)-1 {
				s.cursor++
			}
			if s.step == stepTheme && s.cursor < len(themeOptions)-1 {
				s.cursor++
			}
		case " ":
			if s.step == stepPriorities {
				id := priorityOptions[s.cursor].id
				s.selected[id] = !s.selected[id]
				if !s.selected[id] {
					delete(s.selected, id)
				}
			}
		case "enter":
			return s.advance()
		}
	}
	return nil
}

func (s *onboardingScreen) advance() tea.Cmd {
	switch s.step {
	case stepWelcome:
		s.step = stepPriorities
		s.cursor = 0
	case stepPriorities:
		if len(s.selected) < minPriorities {
			s.errMsg = fmt.Sprintf("Pick at least %d areas to focus on.", minPriorities)
			return nil
		}
		s.errMsg = ""
		s.step = stepTheme
		s.cursor = 0
	case stepTheme:
		s.busy = true
		s.errMsg = ""
		prefs := make([]string, 0, len(s.selected))
		for _, opt := range priorityOptions {
			if s.selected[opt.id] {
				prefs = append(prefs, opt.id)
			}
		}
		theme := themeOptions[s.cursor]
		application := s.application
		return func() tea.Msg {
			err := application.Coordinator.CompleteOnboarding(context.Background(), prefs, theme)
			return actionDone{scope: "onboarding", err: err}
		}
	}
	return nil
}

func (s *onboardingScreen) View(p Palette, width int) string {
	var b strings.Builder

	switch s.step {
	case stepWelcome:
		b.WriteString(p.Title.Render("Welcome to LiVo") + "\n\n")
		b.WriteString(p.Subtitle.Render("Your external brain for tasks, goals, memories and more.") + "\n")
		b.WriteString(p.Subtitle.Render("Two quick questions and you're in.") + "\n\n")
		b.WriteString(p.Selected.Render(" enter: let's go "))

	case stepPriorities:
		b.WriteString(p.Title.Render("What matters to you right now?") + "\n")
		b.WriteString(p.Muted.Render(fmt.Sprintf("Pick at least %d. space: toggle, enter: continue", minPriorities)) + "\n\n")
		for i, opt := range priorityOptions {
			marker := "[ ]"
			if s.selected[opt.id] {
				marker = "[x]"
			}
			line := fmt.Sprintf("%s %-14s %s", marker, opt.label, opt.description)
			if i == s.cursor {
				b.WriteString(p.Selected.Render(line))
			} else {
				b.WriteString(p.Option.Render(line))
			}
			b.WriteByte('\n')
		}
		b.WriteString("\n" + p.Muted.Render(fmt.Sprintf("%d selected", len(s.selected))))

	case stepTheme:
		b.WriteString(p.Title.Render("Pick your color") + "\n")
		b.WriteString(p.Muted.Render("You can change this later in settings.") + "\n\n")
		for i, theme := range themeOptions {
			swatch := lipgloss.NewStyle().
				Background(lipgloss.Color(palettes[theme].accent)).
				Render("   ")
			line := fmt.Sprintf(" %s %s", swatch, theme)
			if i == s.cursor {
				b.WriteString(p.Selected.Render(line))
			} else {
				b.WriteString(p.Option.Render(line))
			}
			b.WriteByte('\n')
		}
		if s.busy {
			b.WriteString("\n" + p.Muted.Render("Saving your choices..."))
		} else {
			b.WriteString("\n" + p.Selected.Render(" enter: finish "))
		}
	}

	if s.errMsg != "" {
		b.WriteString("\n\n" + p.ErrText.Render(s.errMsg))
	}

	return lipgloss.NewStyle().Padding(1, 2).Render(
		p.Pane.Width(min(width-4, 64)).Render(b.String()))
}
