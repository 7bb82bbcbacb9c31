package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend is a scripted Backend. Tests drive auth changes and snapshot
// deliveries by hand and inspect the writes the coordinator issues.
type fakeBackend struct {
	mu sync.Mutex

	authFn     func(*Identity)
	profileFn  func(*UserProfile)
	profileErr func(error)
	memoriesFn func([]Memory)
	historyFn  func([]ChatMessage)
	historyErr func(error)

	subscribedUID string
	cancelLog     []string

	writes    []UserProfile
	writeErr  error
	signedOut bool

	messages []ChatMessage
	memories []Memory
}

func (f *fakeBackend) ObserveAuth(fn func(*Identity)) func() {
	f.mu.Lock()
	f.authFn = fn
	f.mu.Unlock()
	fn(nil)
	return func() {}
}

func (f *fakeBackend) pushAuth(id *Identity) {
	f.mu.Lock()
	fn := f.authFn
	f.mu.Unlock()
	fn(id)
}

func (f *fakeBackend) SignUp(ctx context.Context, name, email, password string) error { return nil }
func (f *fakeBackend) SignIn(ctx context.Context, email, password string) error       { return nil }

func (f *fakeBackend) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signedOut = true
	fn := f.authFn
	f.mu.Unlock()
	fn(nil)
	return nil
}

func (f *fakeBackend) SubscribeProfile(uid string, fn func(*UserProfile), fail func(error)) func() {
	f.mu.Lock()
	f.subscribedUID = uid
	f.profileFn = fn
	f.profileErr = fail
	f.cancelLog = append(f.cancelLog, "subscribe:"+uid)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.cancelLog = append(f.cancelLog, "cancel:"+uid)
		f.mu.Unlock()
	}
}

func (f *fakeBackend) SubscribeMemories(uid string, fn func([]Memory), fail func(error)) func() {
	f.mu.Lock()
	f.memoriesFn = fn
	f.mu.Unlock()
	return func() {}
}

func (f *fakeBackend) SubscribeHistory(uid string, fn func([]ChatMessage), fail func(error)) func() {
	f.mu.Lock()
	f.historyFn = fn
	f.historyErr = fail
	f.mu.Unlock()
	return func() {}
}

func (f *fakeBackend) pushProfile(p *UserProfile) {
	f.mu.Lock()
	fn := f.profileFn
	f.mu.Unlock()
	fn(p)
}

func (f *fakeBackend) pushMemories(items []Memory) {
	f.mu.Lock()
	fn := f.memoriesFn
	f.mu.Unlock()
	fn(items)
}

func (f *fakeBackend) pushHistory(items []ChatMessage) {
	f.mu.Lock()
	fn := f.historyFn
	f.mu.Unlock()
	fn(items)
}

func (f *fakeBackend) failHistory(err error) {
	f.mu.Lock()
	fn := f.historyErr
	f.mu.Unlock()
	fn(err)
}

func (f *fakeBackend) WriteProfile(ctx context.Context, profile UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, profile)
	return nil
}

func (f *fakeBackend) lastWrite() (UserProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return UserProfile{}, false
	}
	return f.writes[len(f.writes)-1], true
}

func (f *fakeBackend) AppendMemory(ctx context.Context, uid string, m Memory) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories = append(f.memories, m)
	return m.ID, nil
}

func (f *fakeBackend) SetMemoryMeta(ctx context.Context, uid, memoryID string, meta MemoryMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.memories {
		if f.memories[i].ID == memoryID {
			f.memories[i].Meta = meta
		}
	}
	return nil
}

func (f *fakeBackend) AppendMessage(ctx context.Context, uid string, msg ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return msg.ID, nil
}

func (f *fakeBackend) ReplaceCalendarEvents(ctx context.Context, uid string, events []CalendarEvent) error {
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	c := NewCoordinator(backend, nil)
	c.Start()
	t.Cleanup(c.Stop)
	return c, backend
}

// waitState polls until the session state satisfies the predicate.
func waitState(t *testing.T, c *Coordinator, desc string, pred func(SessionState) bool) SessionState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		st := c.State()
		if pred(st) {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s; phase=%s route=%s", desc, st.Phase, st.Route)
		case <-c.Updates():
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// waitWrite polls until the backend has recorded a profile write matching
// the predicate.
func waitWrite(t *testing.T, backend *fakeBackend, desc string, pred func(UserProfile) bool) UserProfile {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := backend.lastWrite(); ok && pred(p) {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
	return UserProfile{}
}

func returningIdentity(uid string) *Identity {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Identity{
		UID:          uid,
		Email:        uid + "@example.com",
		CreatedAt:    created,
		LastSignInAt: created.Add(48 * time.Hour),
	}
}

func brandNewIdentity(uid string) *Identity {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Identity{
		UID:          uid,
		Email:        uid + "@example.com",
		CreatedAt:    created,
		LastSignInAt: created,
	}
}

func TestStartsSignedOut(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t)

	st := waitState(t, c, "signed-out state", func(st SessionState) bool {
		return st.Phase == PhaseUnauthenticated
	})
	require.Equal(t, RouteAuth, st.Route)
	require.Nil(t, st.Identity)
}

func TestReturningUserSeesProvisionalDashboard(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("u1"))
	st := waitState(t, c, "resolving phase", func(st SessionState) bool {
		return st.Phase == PhaseResolving
	})
	require.Equal(t, RouteDashboard, st.Route)
	require.NotNil(t, st.Profile)
	require.True(t, st.Profile.IsOnboarded, "provisional profile for a returning user assumes onboarded")
	require.False(t, st.ProfileConfirmed)

	backend.pushProfile(&UserProfile{ID: "u1", Name: "Uma", IsOnboarded: true, ThemeColor: ThemeTeal})
	st = waitState(t, c, "active phase", func(st SessionState) bool {
		return st.Phase == PhaseActive
	})
	require.Equal(t, RouteDashboard, st.Route)
	require.True(t, st.ProfileConfirmed)
	require.Equal(t, "Uma", st.Profile.Name)
}

func TestBrandNewUserGetsDefaultProfileWritten(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(brandNewIdentity("u2"))
	st := waitState(t, c, "provisional onboarding", func(st SessionState) bool {
		return st.Route == RouteOnboarding
	})
	require.False(t, st.Profile.IsOnboarded)

	// No remote record exists yet.
	backend.pushProfile(nil)
	st = waitState(t, c, "onboarding phase", func(st SessionState) bool {
		return st.Phase == PhaseOnboarding && st.ProfileConfirmed
	})
	require.Equal(t, RouteOnboarding, st.Route)

	written := waitWrite(t, backend, "default profile write", func(p UserProfile) bool {
		return p.ID == "u2"
	})
	require.False(t, written.IsOnboarded)
	require.Equal(t, DefaultTheme, written.ThemeColor)
	require.Equal(t, "u2", written.Name, "name falls back to the email local part")
}

func TestStaleSnapshotsFromPreviousIdentityAreDropped(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("alice"))
	waitState(t, c, "alice resolving", func(st SessionState) bool {
		return st.Identity != nil && st.Identity.UID == "alice"
	})
	aliceProfileFn := func() func(*UserProfile) {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.profileFn
	}()

	backend.pushAuth(returningIdentity("bob"))
	waitState(t, c, "bob resolving", func(st SessionState) bool {
		return st.Identity != nil && st.Identity.UID == "bob"
	})

	// A slow snapshot from alice's subscription lands after the switch.
	aliceProfileFn(&UserProfile{ID: "alice", Name: "Alice", IsOnboarded: true})

	backend.pushProfile(&UserProfile{ID: "bob", Name: "Bob", IsOnboarded: true})
	st := waitState(t, c, "bob active", func(st SessionState) bool {
		return st.Phase == PhaseActive
	})
	require.Equal(t, "Bob", st.Profile.Name)
	require.Equal(t, "bob", st.Profile.ID)
}

func TestUnsubscribeHappensBeforeResubscribe(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("first"))
	waitState(t, c, "first session", func(st SessionState) bool {
		return st.Identity != nil && st.Identity.UID == "first"
	})
	backend.pushAuth(returningIdentity("second"))
	waitState(t, c, "second session", func(st SessionState) bool {
		return st.Identity != nil && st.Identity.UID == "second"
	})

	backend.mu.Lock()
	log := append([]string(nil), backend.cancelLog...)
	backend.mu.Unlock()
	require.Equal(t, []string{"subscribe:first", "cancel:first", "subscribe:second"}, log)
}

func TestNewIdentityWithOnboardedRecordIsCorrectedOnce(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(brandNewIdentity("u3"))
	waitState(t, c, "resolving", func(st SessionState) bool {
		return st.Phase == PhaseResolving
	})

	// The record claims onboarding already happened even though the identity
	// was created this instant.
	backend.pushProfile(&UserProfile{ID: "u3", Name: "Nia", IsOnboarded: true, ThemeColor: ThemeSage})
	st := waitState(t, c, "forced onboarding", func(st SessionState) bool {
		return st.Phase == PhaseOnboarding && st.ProfileConfirmed
	})
	require.Equal(t, RouteOnboarding, st.Route)
	require.False(t, st.Profile.IsOnboarded)
	require.Equal(t, ThemeSage, st.Profile.ThemeColor, "correction keeps the rest of the record")

	corrected := waitWrite(t, backend, "corrected write", func(p UserProfile) bool {
		return p.ID == "u3" && !p.IsOnboarded
	})
	require.Equal(t, "Nia", corrected.Name)

	// Completing onboarding now must stick: the confirming snapshot may not
	// trigger the correction a second time.
	require.NoError(t, c.CompleteOnboarding(context.Background(), []string{"a", "b", "c"}, ThemeBlue))
	done, _ := backend.lastWrite()
	require.True(t, done.IsOnboarded)

	backend.pushProfile(&done)
	st = waitState(t, c, "active after onboarding", func(st SessionState) bool {
		return st.Phase == PhaseActive
	})
	require.Equal(t, RouteDashboard, st.Route)
}

func TestCompleteOnboardingAdvancesOnlyViaSnapshot(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(brandNewIdentity("u4"))
	backend.pushProfile(nil)
	waitState(t, c, "onboarding", func(st SessionState) bool {
		return st.Phase == PhaseOnboarding && st.ProfileConfirmed
	})

	require.NoError(t, c.CompleteOnboarding(context.Background(), []string{"x", "y", "z"}, ThemeLavender))

	// The write succeeded but no snapshot confirmed it yet: still onboarding.
	st := c.State()
	require.Equal(t, RouteOnboarding, st.Route)
	require.Equal(t, PhaseOnboarding, st.Phase)

	written, _ := backend.lastWrite()
	require.True(t, written.IsOnboarded)
	require.Equal(t, []string{"x", "y", "z"}, written.Preferences)
	require.Equal(t, ThemeLavender, written.ThemeColor)

	backend.pushProfile(&written)
	st = waitState(t, c, "dashboard after confirmation", func(st SessionState) bool {
		return st.Phase == PhaseActive
	})
	require.Equal(t, RouteDashboard, st.Route)
}

func TestProfileEditPreservesRoute(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("u5"))
	backend.pushProfile(&UserProfile{ID: "u5", Name: "Pat", IsOnboarded: true})
	waitState(t, c, "active", func(st SessionState) bool {
		return st.Phase == PhaseActive
	})

	c.Navigate(RouteSettings)
	waitState(t, c, "settings route", func(st SessionState) bool {
		return st.Route == RouteSettings
	})

	name := "Patricia"
	require.NoError(t, c.UpdateProfile(context.Background(), ProfileUpdate{Name: &name}))
	written, _ := backend.lastWrite()
	require.Equal(t, "Patricia", written.Name)
	require.True(t, written.IsOnboarded, "edit keeps unrelated fields")

	backend.pushProfile(&written)
	st := waitState(t, c, "updated name adopted", func(st SessionState) bool {
		return st.Profile != nil && st.Profile.Name == "Patricia"
	})
	require.Equal(t, RouteSettings, st.Route, "snapshot adoption must not yank the user off their screen")
}

func TestNavigateIgnoredOutsideActivePhase(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(brandNewIdentity("u6"))
	backend.pushProfile(nil)
	waitState(t, c, "onboarding", func(st SessionState) bool {
		return st.Phase == PhaseOnboarding
	})

	c.Navigate(RouteChat)
	require.Equal(t, RouteOnboarding, c.State().Route)

	c.Navigate(RouteAuth)
	require.Equal(t, RouteOnboarding, c.State().Route)
}

func TestSubscriptionFailureEntersErroredUntilSignOut(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("u7"))
	backend.pushProfile(&UserProfile{ID: "u7", IsOnboarded: true})
	waitState(t, c, "active", func(st SessionState) bool {
		return st.Phase == PhaseActive
	})

	backend.failHistory(ErrPermissionDenied)
	st := waitState(t, c, "errored", func(st SessionState) bool {
		return st.Phase == PhaseErrored
	})
	require.Equal(t, "history", st.ErrScope)
	require.ErrorIs(t, st.Err, ErrPermissionDenied)

	// Navigation is dead while errored.
	c.Navigate(RouteChat)
	require.Equal(t, PhaseErrored, c.State().Phase)

	// A late profile snapshot must not resurrect the session.
	backend.pushProfile(&UserProfile{ID: "u7", IsOnboarded: true})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, PhaseErrored, c.State().Phase)

	require.NoError(t, c.SignOut(context.Background()))
	st = waitState(t, c, "reset after sign-out", func(st SessionState) bool {
		return st.Phase == PhaseUnauthenticated
	})
	require.Equal(t, RouteAuth, st.Route)
	require.Nil(t, st.Err)
	require.Nil(t, st.Profile)
}

func TestSignOutClearsEverything(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("u8"))
	backend.pushProfile(&UserProfile{ID: "u8", IsOnboarded: true})
	backend.pushMemories([]Memory{{ID: "m1", Kind: MemoryGoal, Content: "run"}})
	backend.pushHistory([]ChatMessage{{ID: "c1", Role: RoleUser, Content: "hi"}})
	waitState(t, c, "populated session", func(st SessionState) bool {
		return st.Phase == PhaseActive && len(st.Memories) == 1 && len(st.History) == 1
	})

	require.NoError(t, c.SignOut(context.Background()))
	st := waitState(t, c, "signed out", func(st SessionState) bool {
		return st.Phase == PhaseUnauthenticated
	})
	require.Nil(t, st.Identity)
	require.Empty(t, st.Memories)
	require.Empty(t, st.History)
}

func TestSetGoalProgressClampsAndCompletes(t *testing.T) {
	t.Parallel()
	c, backend := newTestCoordinator(t)

	backend.pushAuth(returningIdentity("u9"))
	backend.pushProfile(&UserProfile{ID: "u9", IsOnboarded: true})
	backend.pushMemories([]Memory{{ID: "g1", Kind: MemoryGoal, Content: "learn piano"}})
	waitState(t, c, "goal loaded", func(st SessionState) bool {
		return len(st.Memories) == 1
	})

	require.NoError(t, c.SetGoalProgress(context.Background(), "g1", 140))
	backend.mu.Lock()
	meta := backend.memories[0].Meta
	backend.mu.Unlock()
	require.Equal(t, 100, meta.Progress)
	require.True(t, meta.IsCompleted)

	require.NoError(t, c.SetGoalProgress(context.Background(), "g1", -5))
	backend.mu.Lock()
	meta = backend.memories[0].Meta
	backend.mu.Unlock()
	require.Equal(t, 0, meta.Progress)
	require.False(t, meta.IsCompleted)
}

func TestEffectiveTheme(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		route   Route
		profile *UserProfile
		want    ThemeColor
	}{
		{"onboarding forces neutral", RouteOnboarding, &UserProfile{ThemeColor: ThemeTeal}, ThemeNeutral},
		{"nil profile falls back", RouteDashboard, nil, DefaultTheme},
		{"unset color falls back", RouteDashboard, &UserProfile{}, DefaultTheme},
		{"unknown color falls back", RouteChat, &UserProfile{ThemeColor: "magenta"}, DefaultTheme},
		{"chosen color wins", RouteSettings, &UserProfile{ThemeColor: ThemeSage}, ThemeSage},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, EffectiveTheme(tc.route, tc.profile))
		})
	}
}
