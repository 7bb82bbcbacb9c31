package tui

import (
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livo/internal/app"
)

// chatScreen is the conversation surface: scrollback on top, composer at
// the bottom, spinner while the assistant thinks. An image can be staged
// from a local file and rides along with the next message.
type chatScreen struct {
	application *app.Application

	view    viewport.Model
	input   textarea.Model
	attach  textinput.Model
	spin    spinner.Model
	busy    bool
	errMsg  string
	lastLen int

	attaching    bool
	pendingImage string // data URI
	pendingName  string
}

func newChatScreen(application *app.Application) *chatScreen {
	input := textarea.New()
	input.Placeholder = "Tell me what's on your mind..."
	input.SetHeight(3)
	input.CharLimit = 4000
	input.Focus()

	attach := textinput.New()
	attach.Placeholder = "path/to/image.png (empty to remove)"
	attach.CharLimit = 512

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &chatScreen{
		application: application,
		view:        viewport.New(80, 20),
		input:       input,
		attach:      attach,
		spin:        spin,
	}
}

func (s *chatScreen) Init() tea.Cmd {
	return textarea.Blink
}

func (s *chatScreen) typing() bool {
	return s.input.Focused() || s.attaching
}

func (s *chatScreen) resize(width, height int) {
	s.view.Width = width - 6
	s.view.Height = maxInt(height-10, 5)
	s.input.SetWidth(width - 6)
}

func (s *chatScreen) Update(msg tea.Msg, st app.SessionState) tea.Cmd {
	switch msg := msg.(type) {
	case actionDone:
		if msg.scope != "chat" {
			return nil
		}
		s.busy = false
		if msg.err != nil {
			s.errMsg = "Couldn't send that. Please try again."
		}
		return nil

	case spinner.TickMsg:
		if !s.busy {
			return nil
		}
		var cmd tea.Cmd
		s.spin, cmd = s.spin.Update(msg)
		return cmd

	case tea.KeyMsg:
		if s.attaching {
			return s.updateAttach(msg)
		}
		switch msg.String() {
		case "esc":
			if s.input.Focused() {
				s.input.Blur()
			} else {
				s.input.Focus()
				return textarea.Blink
			}
			return nil
		case "ctrl+o":
			s.attaching = true
			s.attach.SetValue("")
			s.attach.Focus()
			return textinput.Blink
		case "enter":
			if s.input.Focused() && !s.busy {
				return s.send()
			}
		}
		if s.input.Focused() {
			var cmd tea.Cmd
			s.input, cmd = s.input.Update(msg)
			return cmd
		}
		var cmd tea.Cmd
		s.view, cmd = s.view.Update(msg)
		return cmd
	}
	return nil
}

func (s *chatScreen) updateAttach(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		path := strings.TrimSpace(s.attach.Value())
		s.attaching = false
		s.attach.Blur()
		if path == "" {
			s.pendingImage, s.pendingName = "", ""
			return nil
		}
		uri, err := imageDataURI(path)
		if err != nil {
			s.errMsg = "Couldn't read that image."
			return nil
		}
		s.pendingImage = uri
		s.pendingName = filepath.Base(path)
		s.errMsg = ""
	case "esc":
		s.attaching = false
		s.attach.Blur()
	default:
		var cmd tea.Cmd
		s.attach, cmd = s.attach.Update(msg)
		return cmd
	}
	return nil
}

// imageDataURI reads a local image file into the data URI shape the
// assistant and the history store both expect.
func imageDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mimeType, "image/") {
		return "", errors.New("not an image file")
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (s *chatScreen) send() tea.Cmd {
	text := strings.TrimSpace(s.input.Value())
	image := s.pendingImage
	if text == "" && image == "" {
		return nil
	}
	s.input.SetValue("")
	s.pendingImage, s.pendingName = "", ""
	s.busy = true
	s.errMsg = ""
	application := s.application
	return tea.Batch(
		s.spin.Tick,
		func() tea.Msg {
			err := application.SendChat(context.Background(), text, image)
			return actionDone{scope: "chat", err: err}
		},
	)
}

func (s *chatScreen) View(p Palette, st app.SessionState, width, height int) string {
	s.renderHistory(p, st)

	var b strings.Builder
	b.WriteString(s.view.View() + "\n")
	if s.busy {
		b.WriteString(p.Spinner.Render(s.spin.View()) + p.Muted.Render(" thinking...") + "\n")
	}
	if s.errMsg != "" {
		b.WriteString(p.ErrText.Render(s.errMsg) + "\n")
	}
	if s.attaching {
		b.WriteString(p.Subtitle.Render("Attach image ") + s.attach.View() + "\n")
	} else if s.pendingName != "" {
		b.WriteString(p.Option.Render("attached: "+s.pendingName) +
			p.Muted.Render("  (sends with your next message)") + "\n")
	}
	b.WriteString(p.InputBox.Render(s.input.View()))
	b.WriteString("\n" + p.Footer.Render("enter: send · ctrl+o: attach image · esc: scroll mode"))

	return lipgloss.NewStyle().Padding(0, 2).Render(b.String())
}

func (s *chatScreen) renderHistory(p Palette, st app.SessionState) {
	s.view.SetContent(historyContent(p, st.History))
	if len(st.History) != s.lastLen {
		s.lastLen = len(st.History)
		s.view.GotoBottom()
	}
}

func historyContent(p Palette, history []app.ChatMessage) string {
	var b strings.Builder
	if len(history) == 0 {
		b.WriteString(p.Muted.Render("This is the beginning of your story. Say hi."))
	}
	for _, msg := range history {
		body := msg.Content
		if msg.Kind == app.MessageImage {
			if body == "" {
				body = p.Muted.Render("[image]")
			} else {
				body = p.Muted.Render("[image] ") + body
			}
		}
		switch msg.Role {
		case app.RoleUser:
			b.WriteString(p.RoleYou.Render("You") + "  " + body + "\n\n")
		case app.RoleAssistant:
			b.WriteString(p.RoleAI.Render("LiVo") + " " + body + "\n\n")
		}
	}
	return b.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
