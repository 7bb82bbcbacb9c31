package tui

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"livo/internal/app"
)

func writeTempImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestImageDataURIEncodesFile(t *testing.T) {
	t.Parallel()
	raw := []byte{0x89, 'P', 'N', 'G'}
	path := writeTempImage(t, "pic.png", raw)

	uri, err := imageDataURI(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestImageDataURIRejectsNonImages(t *testing.T) {
	t.Parallel()
	path := writeTempImage(t, "notes.txt", []byte("hello"))
	_, err := imageDataURI(path)
	require.Error(t, err)
}

func TestImageDataURIMissingFile(t *testing.T) {
	t.Parallel()
	_, err := imageDataURI(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
}

func TestAttachFlowStagesImageForNextSend(t *testing.T) {
	t.Parallel()
	path := writeTempImage(t, "sunset.png", []byte{0x89, 'P', 'N', 'G'})
	s := newChatScreen(nil)

	s.Update(tea.KeyMsg{Type: tea.KeyCtrlO}, app.SessionState{})
	require.True(t, s.attaching)
	require.True(t, s.typing(), "the attach prompt owns the keyboard")

	s.attach.SetValue(path)
	s.Update(tea.KeyMsg{Type: tea.KeyEnter}, app.SessionState{})
	require.False(t, s.attaching)
	require.Equal(t, "sunset.png", s.pendingName)
	require.True(t, strings.HasPrefix(s.pendingImage, "data:image/png;base64,"))

	// An empty path removes the staged image.
	s.Update(tea.KeyMsg{Type: tea.KeyCtrlO}, app.SessionState{})
	s.attach.SetValue("")
	s.Update(tea.KeyMsg{Type: tea.KeyEnter}, app.SessionState{})
	require.Empty(t, s.pendingImage)
	require.Empty(t, s.pendingName)
}

func TestAttachFlowReportsUnreadableFile(t *testing.T) {
	t.Parallel()
	s := newChatScreen(nil)

	s.Update(tea.KeyMsg{Type: tea.KeyCtrlO}, app.SessionState{})
	s.attach.SetValue(filepath.Join(t.TempDir(), "missing.png"))
	s.Update(tea.KeyMsg{Type: tea.KeyEnter}, app.SessionState{})

	require.Empty(t, s.pendingImage)
	require.NotEmpty(t, s.errMsg)
}

func TestHistoryMarksImageMessages(t *testing.T) {
	t.Parallel()
	p := PaletteFor(app.ThemeRose)
	out := historyContent(p, []app.ChatMessage{
		{Role: app.RoleUser, Content: "look at this", Kind: app.MessageImage, ImageURL: "data:image/png;base64,aGk="},
		{Role: app.RoleAssistant, Content: "Lovely!", Kind: app.MessageText},
	})

	require.Contains(t, out, "[image]")
	require.Contains(t, out, "look at this")
	require.Contains(t, out, "Lovely!")
	require.Equal(t, 1, strings.Count(out, "[image]"), "text messages carry no marker")
}
