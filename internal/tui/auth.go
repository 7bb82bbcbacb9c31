package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

type authMode int

const (
	modeSignIn authMode = iota
	modeEnroll
)

// authScreen is the combined sign-in / enrollment form.
type authScreen struct {
	application *app.Application

	mode    authMode
	focused int
	name    textinput.Model
	email   textinput.Model
	pass    textinput.Model

	busy   bool
	errMsg string
}

func newAuthScreen(application *app.Application) *authScreen {
	s := &authScreen{application: application}

	s.name = textinput.New()
	s.name.Placeholder = "Your name"
	s.name.CharLimit = 64

	s.email = textinput.New()
	s.email.Placeholder = "you@example.com"
	s.email.CharLimit = 128
	s.email.Focus()

	s.pass = textinput.New()
	s.pass.Placeholder = "password"
	s.pass.EchoMode = textinput.EchoPassword
	s.pass.CharLimit = 128

	if remembered := s.loadRemembered(); remembered != "" {
		s.email.SetValue(remembered)
	}
	return s
}

func (s *authScreen) loadRemembered() string {
	if s.application.Remember == nil {
		return ""
	}
	sess, err := s.application.Remember.Load()
	if err != nil || sess == nil {
		return ""
	}
	return sess.Email
}

func (s *authScreen) Init() tea.Cmd {
	return textinput.Blink
}

func (s *authScreen) fields() []*textinput.Model {
	if s.mode == modeEnroll {
		return []*textinput.Model{&s.name, &s.email, &s.pass}
	}
	return []*textinput.Model{&s.email, &s.pass}
}

func (s *authScreen) setFocus(idx int) {
	fields := s.fields()
	if idx < 0 {
		idx = len(fields) - 1
	}
	if idx >= len(fields) {
		idx = 0
	}
	s.focused = idx
	for i, f := range fields {
		if i == idx {
			f.Focus()
		} else {
			f.Blur()
		}
	}
}

func (s *authScreen) Update(msg tea.Msg, p Palette) tea.Cmd {
	switch msg := msg.(type) {
	case actionDone:
		if msg.scope != "auth" {
			return nil
		}
		s.busy = false
		s.errMsg = authErrorText(msg.err)
		// An already-registered email means the user wanted the other form.
		if errors.Is(msg.err, app.ErrEmailInUse) {
			s.mode = modeSignIn
			s.setFocus(0)
		}
		return nil

	case tea.KeyMsg:
		if s.busy {
			return nil
		}
		switch msg.String() {
		case "tab", "down":
			s.setFocus(s.focused + 1)
			return nil
		case "shift+tab", "up":
			s.setFocus(s.focused - 1)
			return nil
		case "ctrl+t":
			if s.mode == modeSignIn {
				s.mode = modeEnroll
			} else {
				s.mode = modeSignIn
			}
			s.errMsg = ""
			s.setFocus(0)
			return nil
		case "enter":
			return s.submit()
		}
	}

	var cmd tea.Cmd
	fields := s.fields()
	*fields[s.focused], cmd = fields[s.focused].Update(msg)
	return cmd
}

func (s *authScreen) submit() tea.Cmd {
	email := strings.TrimSpace(s.email.Value())
	pass := s.pass.Value()
	name := strings.TrimSpace(s.name.Value())

	if email == "" || pass == "" {
		s.errMsg = "Email and password are required."
		return nil
	}
	if s.mode == modeEnroll && name == "" {
		s.errMsg = "Tell us your name first."
		return nil
	}

	s.busy = true
	s.errMsg = ""
	enroll := s.mode == modeEnroll
	application := s.application
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if enroll {
			err = application.Backend.SignUp(ctx, name, email, pass)
		} else {
			err = application.Backend.SignIn(ctx, email, pass)
		}
		if err == nil {
			application.RememberCurrent()
		}
		return actionDone{scope: "auth", err: err}
	}
}

// authErrorText maps backend failures to the friendly copy shown under the
// form.
func authErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, app.ErrEmailInUse):
		return "That email is already registered. Try signing in instead."
	case errors.Is(err, app.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, app.ErrPermissionDenied):
		return "You don't have access to this account."
	default:
		return "Something went wrong. Please try again."
	}
}

func (s *authScreen) View(p Palette, width int) string {
	title := "Welcome back"
	action := "Sign in"
	toggle := "ctrl+t: create an account instead"
	if s.mode == modeEnroll {
		title = "Create your space"
		action = "Create account"
		toggle = "ctrl+t: sign in instead"
	}

	var b strings.Builder
	b.WriteString(p.Title.Render(title) + "\n\n")
	if s.mode == modeEnroll {
		b.WriteString(p.Subtitle.Render("Name") + "\n" + s.name.View() + "\n\n")
	}
	b.WriteString(p.Subtitle.Render("Email") + "\n" + s.email.View() + "\n\n")
	b.WriteString(p.Subtitle.Render("Password") + "\n" + s.pass.View() + "\n\n")

	if s.busy {
		b.WriteString(p.Muted.Render("Signing you in...") + "\n")
	} else {
		b.WriteString(p.Selected.Render(" enter: "+action+" ") + "\n")
	}
	if s.errMsg != "" {
		b.WriteString("\n" + p.ErrText.Render(s.errMsg) + "\n")
	}
	b.WriteString("\n" + p.Muted.Render(toggle))

	return lipgloss.NewStyle().Padding(1, 2).Render(
		p.Pane.Width(min(width-4, 52)).Render(b.String()))
}
