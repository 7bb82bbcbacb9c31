package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"livo/internal/app"
)

// stubBackend satisfies app.Backend for screen tests that never touch data.
type stubBackend struct{}

func (stubBackend) ObserveAuth(fn func(*app.Identity)) func() { fn(nil); return func() {} }

func (stubBackend) SignUp(ctx context.Context, name, email, password string) error { return nil }
func (stubBackend) SignIn(ctx context.Context, email, password string) error       { return nil }
func (stubBackend) SignOut(ctx context.Context) error                              { return nil }

func (stubBackend) SubscribeProfile(uid string, fn func(*app.UserProfile), fail func(error)) func() {
	return func() {}
}

func (stubBackend) SubscribeMemories(uid string, fn func([]app.Memory), fail func(error)) func() {
	return func() {}
}

func (stubBackend) SubscribeHistory(uid string, fn func([]app.ChatMessage), fail func(error)) func() {
	return func() {}
}

func (stubBackend) WriteProfile(ctx context.Context, profile app.UserProfile) error { return nil }

func (stubBackend) AppendMemory(ctx context.Context, uid string, m app.Memory) (string, error) {
	return m.ID, nil
}

func (stubBackend) SetMemoryMeta(ctx context.Context, uid, memoryID string, meta app.MemoryMeta) error {
	return nil
}

func (stubBackend) AppendMessage(ctx context.Context, uid string, msg app.ChatMessage) (string, error) {
	return msg.ID, nil
}

func (stubBackend) ReplaceCalendarEvents(ctx context.Context, uid string, events []app.CalendarEvent) error {
	return nil
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	backend := stubBackend{}
	application := &app.Application{
		Backend:     backend,
		Calendar:    app.NewCalendarClient("", backend),
		Coordinator: app.NewCoordinator(backend, nil),
	}
	return NewModel(application)
}

func TestFailedSignOutShowsFeedback(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	m.width, m.height = 80, 24

	m.Update(actionDone{scope: "signout", err: errors.New("backend down")})

	require.NotEmpty(t, m.signOutErr)
	require.NotEmpty(t, m.settings.status, "the settings screen reports the failure too")

	m.st.Phase = app.PhaseErrored
	require.Contains(t, m.errorView(), "Sign out failed")
}

func TestSuccessfulSignOutClearsFeedback(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	m.width, m.height = 80, 24

	m.Update(actionDone{scope: "signout", err: errors.New("backend down")})
	require.NotEmpty(t, m.signOutErr)

	m.Update(actionDone{scope: "signout", err: nil})
	require.Empty(t, m.signOutErr)
}
