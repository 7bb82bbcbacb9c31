package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

// stateTick says the session coordinator has new state to render.
type stateTick struct{}

// actionDone carries the result of an asynchronous user action.
type actionDone struct {
	scope string
	err   error
}

// Model is the root bubbletea model. It owns no session logic: it renders
// whatever the coordinator says and forwards user intent back to it.
type Model struct {
	application *app.Application
	st          app.SessionState
	palette     Palette

	width  int
	height int

	signOutErr string

	auth       *authScreen
	onboarding *onboardingScreen
	dashboard  *dashboardScreen
	chat       *chatScreen
	vault      *vaultScreen
	flow       *flowScreen
	settings   *settingsScreen
}

func NewModel(application *app.Application) *Model {
	m := &Model{
		application: application,
		st:          application.Coordinator.State(),
	}
	m.palette = PaletteFor(app.EffectiveTheme(m.st.Route, m.st.Profile))
	m.auth = newAuthScreen(application)
	m.onboarding = newOnboardingScreen(application)
	m.dashboard = newDashboardScreen(application)
	m.chat = newChatScreen(application)
	m.vault = newVaultScreen()
	m.flow = newFlowScreen()
	m.settings = newSettingsScreen(application)
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitUpdate(),
		m.auth.Init(),
		m.chat.Init(),
		m.settings.Init(),
	)
}

// waitUpdate bridges the coordinator's update channel into the bubbletea
// message loop. Re-armed after every tick.
func (m *Model) waitUpdate() tea.Cmd {
	ch := m.application.Coordinator.Updates()
	return func() tea.Msg {
		<-ch
		return stateTick{}
	}
}

func (m *Model) refresh() {
	m.st = m.application.Coordinator.State()
	m.palette = PaletteFor(app.EffectiveTheme(m.st.Route, m.st.Profile))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateTick:
		m.refresh()
		return m, m.waitUpdate()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chat.resize(msg.Width, msg.Height)
		return m, nil

	// Async action results go to the screen that started them, which may
	// no longer be the one on display.
	case actionDone:
		switch msg.scope {
		case "auth":
			return m, m.auth.Update(msg, m.palette)
		case "onboarding":
			return m, m.onboarding.Update(msg, m.palette, m.st)
		case "chat":
			return m, m.chat.Update(msg, m.st)
		case "goal":
			return m, m.dashboard.Update(msg, m.st)
		case "profile":
			return m, m.settings.Update(msg, m.st)
		case "signout":
			m.signOutErr = ""
			if msg.err != nil {
				m.signOutErr = "Sign out failed. Please try again."
			}
			return m, m.settings.Update(msg, m.st)
		}
		return m, nil
	case calendarSynced, exportDone, syncProgress:
		return m, m.settings.Update(msg, m.st)

	case spinner.TickMsg:
		return m, m.chat.Update(msg, m.st)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.st.Phase == app.PhaseErrored {
			if msg.String() == "s" {
				return m, m.signOutCmd()
			}
			return m, nil
		}
		if m.st.Phase == app.PhaseActive && msg.String() == "tab" && !m.typing() {
			m.application.Coordinator.Navigate(nextRoute(m.st.Route))
			m.refresh()
			return m, nil
		}
	}

	return m, m.routeMsg(msg)
}

// typing reports whether the focused screen owns the keyboard.
func (m *Model) typing() bool {
	switch m.st.Route {
	case app.RouteChat:
		return m.chat.typing()
	case app.RouteSettings:
		return m.settings.typing()
	}
	return false
}

func nextRoute(current app.Route) app.Route {
	for i, r := range app.InAppRoutes {
		if r == current {
			return app.InAppRoutes[(i+1)%len(app.InAppRoutes)]
		}
	}
	return app.RouteDashboard
}

func (m *Model) routeMsg(msg tea.Msg) tea.Cmd {
	switch m.st.Route {
	case app.RouteAuth:
		return m.auth.Update(msg, m.palette)
	case app.RouteOnboarding:
		return m.onboarding.Update(msg, m.palette, m.st)
	case app.RouteDashboard:
		return m.dashboard.Update(msg, m.st)
	case app.RouteChat:
		return m.chat.Update(msg, m.st)
	case app.RouteMindVault:
		return m.vault.Update(msg, m.st)
	case app.RouteFlow:
		return m.flow.Update(msg)
	case app.RouteSettings:
		return m.settings.Update(msg, m.st)
	}
	return nil
}

func (m *Model) signOutCmd() tea.Cmd {
	return func() tea.Msg {
		m.application.ForgetRemembered()
		err := m.application.Coordinator.SignOut(context.Background())
		return actionDone{scope: "signout", err: err}
	}
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	if m.st.Phase == app.PhaseErrored {
		return m.errorView()
	}

	var body string
	switch m.st.Route {
	case app.RouteAuth:
		body = m.auth.View(m.palette, m.width)
	case app.RouteOnboarding:
		body = m.onboarding.View(m.palette, m.width)
	case app.RouteDashboard:
		body = m.dashboard.View(m.palette, m.st, m.width)
	case app.RouteChat:
		body = m.chat.View(m.palette, m.st, m.width, m.height)
	case app.RouteMindVault:
		body = m.vault.View(m.palette, m.st, m.width)
	case app.RouteFlow:
		body = m.flow.View(m.palette, m.st)
	case app.RouteSettings:
		body = m.settings.View(m.palette, m.st, m.width)
	default:
		body = ""
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), body, m.footerView())
}

func (m *Model) headerView() string {
	badge := m.palette.Badge.Render("LiVo")
	if m.st.Phase != app.PhaseActive {
		return badge
	}

	tabs := make([]string, 0, len(app.InAppRoutes))
	for _, r := range app.InAppRoutes {
		label := routeLabel(r)
		if r == m.st.Route {
			tabs = append(tabs, m.palette.Selected.Render(" "+label+" "))
		} else {
			tabs = append(tabs, m.palette.Muted.Render(" "+label+" "))
		}
	}
	return badge + "  " + strings.Join(tabs, m.palette.Muted.Render("·"))
}

func (m *Model) footerView() string {
	switch {
	case m.st.Phase == app.PhaseActive:
		return m.palette.Footer.Render(helpLine(keys.NextScreen, keys.Quit))
	case m.st.Route == app.RouteOnboarding:
		return m.palette.Footer.Render(helpLine(keys.Continue, keys.Quit))
	default:
		return m.palette.Footer.Render(helpLine(keys.Quit))
	}
}

func (m *Model) errorView() string {
	p := m.palette
	scope := m.st.ErrScope
	if scope == "" {
		scope = "session"
	}
	msg := fmt.Sprintf("Something went wrong with your %s data.", scope)
	detail := ""
	if m.st.Err != nil {
		detail = m.st.Err.Error()
	}
	body := p.ErrText.Render(msg) + "\n\n" +
		p.Subtitle.Render(detail) + "\n\n" +
		p.Muted.Render("Press s to sign out and start over.")
	if m.signOutErr != "" {
		body += "\n\n" + p.ErrText.Render(m.signOutErr)
	}
	box := p.PaneHi.Width(min(m.width-4, 60)).Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func routeLabel(r app.Route) string {
	switch r {
	case app.RouteDashboard:
		return "Dashboard"
	case app.RouteMindVault:
		return "MindVault"
	case app.RouteFlow:
		return "Flow"
	case app.RouteChat:
		return "Chat"
	case app.RouteSettings:
		return "Settings"
	}
	return string(r)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
