package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

type calendarSynced struct {
	count int
	err   error
}

// syncProgress is one percentage report from a running calendar sync.
type syncProgress struct {
	percent int
}

type exportDone struct {
	path string
	err  error
}

// settingsScreen edits the profile, switches themes, syncs the calendar
// and exports the vault. Email is shown but never editable.
type settingsScreen struct {
	application *app.Application

	editing bool
	name    textinput.Model

	syncing  bool
	syncNote string
	syncMsgs chan tea.Msg
	status   string
}

func newSettingsScreen(application *app.Application) *settingsScreen {
	name := textinput.New()
	name.Placeholder = "Display name"
	name.CharLimit = 64
	return &settingsScreen{application: application, name: name}
}

func (s *settingsScreen) Init() tea.Cmd {
	return nil
}

func (s *settingsScreen) typing() bool {
	return s.editing
}

func (s *settingsScreen) Update(msg tea.Msg, st app.SessionState) tea.Cmd {
	switch msg := msg.(type) {
	case syncProgress:
		s.syncNote = fmt.Sprintf("Syncing... %d%%", msg.percent)
		return s.nextSyncMsg()

	case calendarSynced:
		s.syncing = false
		s.syncMsgs = nil
		if msg.err != nil {
			if msg.err == app.ErrCalendarPermission {
				s.syncNote = "Calendar access is not set up. Add a token in the config file."
			} else {
				s.syncNote = "Calendar sync failed."
			}
		} else {
			s.syncNote = fmt.Sprintf("Synced %d upcoming events.", msg.count)
		}
		return nil

	case exportDone:
		if msg.err != nil {
			s.status = "Export failed."
		} else {
			s.status = "Your data is at " + msg.path
		}
		return nil

	case actionDone:
		if msg.scope == "profile" && msg.err != nil {
			s.status = "Couldn't save the profile."
		}
		if msg.scope == "signout" && msg.err != nil {
			s.status = "Sign out failed. Please try again."
		}
		return nil

	case tea.KeyMsg:
		if s.editing {
			switch msg.String() {
			case "enter":
				s.editing = false
				s.name.Blur()
				newName := strings.TrimSpace(s.name.Value())
				if newName == "" {
					return nil
				}
				application := s.application
				return func() tea.Msg {
					err := application.Coordinator.UpdateProfile(context.Background(),
						app.ProfileUpdate{Name: &newName})
					return actionDone{scope: "profile", err: err}
				}
			case "esc":
				s.editing = false
				s.name.Blur()
			default:
				var cmd tea.Cmd
				s.name, cmd = s.name.Update(msg)
				return cmd
			}
			return nil
		}

		switch msg.String() {
		case "e":
			s.editing = true
			if st.Profile != nil {
				s.name.SetValue(st.Profile.Name)
			}
			s.name.Focus()
			return textinput.Blink
		case "t":
			return s.cycleTheme(st)
		case "c":
			return s.syncCalendar(st)
		case "x":
			application := s.application
			return func() tea.Msg {
				path, err := application.ExportVault("")
				return exportDone{path: path, err: err}
			}
		case "s":
			application := s.application
			return func() tea.Msg {
				application.ForgetRemembered()
				err := application.Coordinator.SignOut(context.Background())
				return actionDone{scope: "signout", err: err}
			}
		}
	}
	return nil
}

func (s *settingsScreen) cycleTheme(st app.SessionState) tea.Cmd {
	current := app.DefaultTheme
	if st.Profile != nil {
		current = st.Profile.ThemeColor
	}
	next := themeOptions[0]
	for i, theme := range themeOptions {
		if theme == current {
			next = themeOptions[(i+1)%len(themeOptions)]
			break
		}
	}
	application := s.application
	return func() tea.Msg {
		err := application.Coordinator.UpdateProfile(context.Background(),
			app.ProfileUpdate{ThemeColor: &next})
		return actionDone{scope: "profile", err: err}
	}
}

func (s *settingsScreen) syncCalendar(st app.SessionState) tea.Cmd {
	if st.Identity == nil || s.syncing {
		return nil
	}
	s.syncing = true
	s.syncNote = "Syncing..."
	uid := st.Identity.UID
	application := s.application
	// Room for every per-event report plus the final result, so the sync
	// goroutine never blocks on the UI.
	msgs := make(chan tea.Msg, 32)
	s.syncMsgs = msgs
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		count, err := application.Calendar.SyncAll(ctx, uid, func(percent int) {
			msgs <- syncProgress{percent: percent}
		})
		msgs <- calendarSynced{count: count, err: err}
	}()
	return s.nextSyncMsg()
}

// nextSyncMsg pumps the running sync's channel into the message loop,
// re-armed after every report until calendarSynced arrives.
func (s *settingsScreen) nextSyncMsg() tea.Cmd {
	msgs := s.syncMsgs
	if msgs == nil {
		return nil
	}
	return func() tea.Msg { return <-msgs }
}

func (s *settingsScreen) View(p Palette, st app.SessionState, width int) string {
	var b strings.Builder
	b.WriteString(p.Title.Render("Settings") + "\n\n")

	if st.Profile != nil {
		b.WriteString(p.Subtitle.Render("Name  ") + p.Option.Render(st.Profile.Name) + "\n")
		b.WriteString(p.Subtitle.Render("Email ") + p.Muted.Render(st.Profile.Email+"  (fixed)") + "\n")
		b.WriteString(p.Subtitle.Render("Theme ") + p.Option.Render(string(app.EffectiveTheme(st.Route, st.Profile))) + "\n")
		if len(st.Profile.Preferences) > 0 {
			b.WriteString(p.Subtitle.Render("Focus ") + p.Option.Render(strings.Join(st.Profile.Preferences, ", ")) + "\n")
		}
	}
	if s.editing {
		b.WriteString("\n" + s.name.View() + "\n")
	}

	b.WriteString("\n" + p.Subtitle.Render("Calendar") + "\n")
	if s.application.Calendar.HasPermission() {
		b.WriteString(p.Muted.Render("Connected. Press c to sync the next 7 days.") + "\n")
	} else {
		b.WriteString(p.Muted.Render("Not connected. Set a token in the config to enable sync.") + "\n")
	}
	if s.syncNote != "" {
		b.WriteString(p.Option.Render(s.syncNote) + "\n")
	}

	if s.status != "" {
		b.WriteString("\n" + p.Option.Render(s.status) + "\n")
	}

	b.WriteString("\n" + p.Footer.Render("e: edit name · t: next theme · c: sync calendar · x: export data · s: sign out"))
	return lipgloss.NewStyle().Padding(1, 2).Render(
		p.Pane.Width(min(width-4, 76)).Render(b.String()))
}
