package app

import (
	"context"
	"errors"
	"sync"
)

// Phase is the coordinator's lifecycle state.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	// PhaseResolving covers the window between a successful sign-in and the
	// first authoritative profile snapshot; the route shown during it comes
	// from the provisional profile seeded off the auth identity.
	PhaseResolving
	PhaseOnboarding
	PhaseActive
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseResolving:
		return "resolving"
	case PhaseOnboarding:
		return "onboarding"
	case PhaseActive:
		return "active"
	case PhaseErrored:
		return "errored"
	}
	return "unknown"
}

// SessionState is the coordinator's derived, read-only view of the session.
// Slices are shared snapshots; callers must not mutate them.
type SessionState struct {
	Phase    Phase
	Route    Route
	Identity *Identity
	Profile  *UserProfile
	// ProfileConfirmed distinguishes the provisional seed from a profile
	// adopted off an authoritative snapshot.
	ProfileConfirmed bool
	Memories         []Memory
	History          []ChatMessage
	// Err and ErrScope record the subscription failure when Phase is
	// PhaseErrored. The only exit from that state is sign-out.
	Err      error
	ErrScope string
}

// ThemeNeutral is the fixed palette forced while onboarding is showing,
// regardless of the profile's chosen color.
const ThemeNeutral ThemeColor = "neutral"

// EffectiveTheme derives the palette for the current state: neutral during
// onboarding, otherwise the profile color with a rose fallback for unset or
// unrecognized values.
func EffectiveTheme(route Route, profile *UserProfile) ThemeColor {
	if route == RouteOnboarding {
		return ThemeNeutral
	}
	if profile == nil {
		return DefaultTheme
	}
	switch profile.ThemeColor {
	case ThemeRose, ThemeBeige, ThemeLavender, ThemeBlue, ThemeGrey, ThemeSage, ThemeTeal:
		return profile.ThemeColor
	}
	return DefaultTheme
}

// Inbound events. Every event except authChanged carries the uid it is
// scoped to; the reducer drops anything scoped to a superseded identity.
type event interface{ eventUID() string }

type authChanged struct{ identity *Identity }

func (authChanged) eventUID() string { return "" }

type profileSnapshot struct {
	uid     string
	profile *UserProfile // nil when no remote record exists
}

func (e profileSnapshot) eventUID() string { return e.uid }

type memoriesSnapshot struct {
	uid   string
	items []Memory
}

func (e memoriesSnapshot) eventUID() string { return e.uid }

type historySnapshot struct {
	uid   string
	items []ChatMessage
}

func (e historySnapshot) eventUID() string { return e.uid }

type subscriptionError struct {
	uid   string
	scope string
	err   error
}

func (e subscriptionError) eventUID() string { return e.uid }

// Coordinator is the single authority translating auth and subscription
// events into session state and the derived route. One instance exists per
// process; every mutation funnels through its event loop.
type Coordinator struct {
	backend Backend
	logger  *Logger

	mu sync.Mutex
	st SessionState
	// isNewIdentity is computed once per sign-in and consumed by the first
	// profile snapshot; it is never re-derived afterwards.
	isNewIdentity bool

	events     chan event
	updates    chan struct{}
	cancelAuth func()
	cancelSubs []func()

	stopOnce sync.Once
	done     chan struct{}
}

func NewCoordinator(backend Backend, logger *Logger) *Coordinator {
	return &Coordinator{
		backend: backend,
		logger:  logger,
		st:      SessionState{Phase: PhaseUnauthenticated, Route: RouteAuth},
		events:  make(chan event, 64),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start begins observing auth and processing events. The auth observer
// fires immediately with the current identity.
func (c *Coordinator) Start() {
	go c.loop()
	c.cancelAuth = c.backend.ObserveAuth(func(id *Identity) {
		c.post(authChanged{identity: id})
	})
}

// Stop tears down the auth observer and all open subscriptions.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.cancelAuth != nil {
			c.cancelAuth()
		}
		c.mu.Lock()
		c.closeSubsLocked()
		c.mu.Unlock()
		close(c.done)
	})
}

// State returns a copy of the current session state.
func (c *Coordinator) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Updates signals after every applied event or navigation. The channel is
// coalescing: consumers re-read State on each tick.
func (c *Coordinator) Updates() <-chan struct{} {
	return c.updates
}

func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.apply(ev)
		}
	}
}

// apply is the reducer. The stale-identity guard lives here and nowhere
// else: snapshots scoped to anything but the current identity are dropped
// before they can touch state.
func (c *Coordinator) apply(ev event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if uid := ev.eventUID(); uid != "" {
		if c.st.Identity == nil || c.st.Identity.UID != uid {
			c.logger.Info("dropping stale event", map[string]interface{}{"uid": uid})
			return
		}
	}

	switch ev := ev.(type) {
	case authChanged:
		c.handleAuthChanged(ev.identity)
	case profileSnapshot:
		c.handleProfileSnapshot(ev.profile)
	case memoriesSnapshot:
		c.st.Memories = ev.items
	case historySnapshot:
		c.st.History = ev.items
	case subscriptionError:
		c.st.Phase = PhaseErrored
		c.st.Err = ev.err
		c.st.ErrScope = ev.scope
		c.logger.Error("subscription failed", map[string]interface{}{"scope": ev.scope, "error": ev.err.Error()})
	}
	c.notify()
}

func (c *Coordinator) handleAuthChanged(id *Identity) {
	// Old subscriptions go down before any new state is visible so a slow
	// snapshot from the previous identity can never land on the new one.
	c.closeSubsLocked()

	if id == nil {
		c.st = SessionState{Phase: PhaseUnauthenticated, Route: RouteAuth}
		c.isNewIdentity = false
		return
	}

	c.isNewIdentity = id.CreatedAt.Equal(id.LastSignInAt)

	seed := UserProfile{
		ID:          id.UID,
		Name:        id.FallbackName(),
		Email:       id.Email,
		Preferences: []string{},
		IsOnboarded: !c.isNewIdentity,
		ThemeColor:  DefaultTheme,
	}
	route := RouteDashboard
	if c.isNewIdentity {
		route = RouteOnboarding
	}
	c.st = SessionState{
		Phase:    PhaseResolving,
		Route:    route,
		Identity: id,
		Profile:  &seed,
	}
	c.logger.Info("session opened", map[string]interface{}{"uid": id.UID, "new": c.isNewIdentity})

	uid := id.UID
	c.cancelSubs = append(c.cancelSubs,
		c.backend.SubscribeProfile(uid,
			func(p *UserProfile) { c.post(profileSnapshot{uid: uid, profile: p}) },
			func(err error) { c.post(subscriptionError{uid: uid, scope: "profile", err: err}) }),
		c.backend.SubscribeMemories(uid,
			func(items []Memory) { c.post(memoriesSnapshot{uid: uid, items: items}) },
			func(err error) { c.post(subscriptionError{uid: uid, scope: "memories", err: err}) }),
		c.backend.SubscribeHistory(uid,
			func(items []ChatMessage) { c.post(historySnapshot{uid: uid, items: items}) },
			func(err error) { c.post(subscriptionError{uid: uid, scope: "history", err: err}) }),
	)
}

func (c *Coordinator) handleProfileSnapshot(remote *UserProfile) {
	if c.st.Phase == PhaseErrored {
		return
	}
	id := c.st.Identity
	isNew := c.isNewIdentity
	// The flag is a one-shot disambiguator: the first authoritative
	// snapshot consumes it. A record edited out-of-band to flip
	// isOnboarded back afterwards is adopted verbatim (known limitation).
	c.isNewIdentity = false

	if remote == nil {
		// True first login: no remote record yet. Materialize the default
		// profile remotely, then adopt it.
		fresh := UserProfile{
			ID:          id.UID,
			Name:        id.FallbackName(),
			Email:       id.Email,
			Preferences: []string{},
			IsOnboarded: false,
			ThemeColor:  DefaultTheme,
		}
		c.writeProfileAsync(fresh)
		c.adoptProfile(fresh)
		c.st.Phase = PhaseOnboarding
		c.st.Route = RouteOnboarding
		return
	}

	if isNew && remote.IsOnboarded {
		// The identity looks brand new by its timestamps yet the record
		// claims onboarding happened: treat the record as stale and force
		// re-onboarding, correcting the remote copy to match.
		corrected := remote.Clone()
		corrected.IsOnboarded = false
		c.writeProfileAsync(corrected)
		c.adoptProfile(corrected)
		c.st.Phase = PhaseOnboarding
		c.st.Route = RouteOnboarding
		c.logger.Info("forced re-onboarding for new identity", map[string]interface{}{"uid": id.UID})
		return
	}

	c.adoptProfile(remote.Clone())
	if !remote.IsOnboarded {
		c.st.Phase = PhaseOnboarding
		c.st.Route = RouteOnboarding
		return
	}
	c.st.Phase = PhaseActive
	if c.st.Route == RouteOnboarding {
		// Onboarding just completed; everything else preserves the user's
		// current place in the app.
		c.st.Route = RouteDashboard
	}
}

func (c *Coordinator) adoptProfile(p UserProfile) {
	c.st.Profile = &p
	c.st.ProfileConfirmed = true
}

// writeProfileAsync persists a profile without blocking the event loop.
// The identity guard on the resulting snapshot makes a late completion
// after sign-out harmless.
func (c *Coordinator) writeProfileAsync(p UserProfile) {
	go func() {
		if err := c.backend.WriteProfile(context.Background(), p); err != nil {
			c.logger.Error("profile write failed", map[string]interface{}{"uid": p.ID, "error": err.Error()})
		}
	}()
}

// CompleteOnboarding writes the finished profile. The route does not
// advance here: it advances when the snapshot confirming isOnboarded=true
// arrives, so a denied write leaves the UI on the onboarding screen.
func (c *Coordinator) CompleteOnboarding(ctx context.Context, preferences []string, theme ThemeColor) error {
	c.mu.Lock()
	if c.st.Identity == nil || c.st.Profile == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	if c.st.Route != RouteOnboarding {
		c.mu.Unlock()
		return errors.New("onboarding is not in progress")
	}
	merged := c.st.Profile.Clone()
	c.mu.Unlock()

	merged.Preferences = append([]string(nil), preferences...)
	merged.ThemeColor = theme
	merged.IsOnboarded = true
	return c.backend.WriteProfile(ctx, merged)
}

// ProfileUpdate carries the optional fields a settings edit may change.
// Nil fields keep the last-known value; the write is always whole-object.
type ProfileUpdate struct {
	Name        *string
	Preferences *[]string
	ThemeColor  *ThemeColor
}

func (c *Coordinator) UpdateProfile(ctx context.Context, upd ProfileUpdate) error {
	c.mu.Lock()
	if c.st.Identity == nil || c.st.Profile == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	merged := c.st.Profile.Clone()
	c.mu.Unlock()

	if upd.Name != nil {
		merged.Name = *upd.Name
	}
	if upd.Preferences != nil {
		merged.Preferences = append([]string(nil), (*upd.Preferences)...)
	}
	if upd.ThemeColor != nil {
		merged.ThemeColor = *upd.ThemeColor
	}
	return c.backend.WriteProfile(ctx, merged)
}

// Navigate moves between in-app screens. Requests are ignored unless the
// session is active (signed in and onboarded) and the target is reachable.
func (c *Coordinator) Navigate(target Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Phase != PhaseActive {
		return
	}
	for _, r := range InAppRoutes {
		if r == target {
			c.st.Route = target
			c.notify()
			return
		}
	}
}

// SignOut asks the backend to end the session; the resulting auth event
// performs the actual reset. It is also the only recovery action from
// PhaseErrored.
func (c *Coordinator) SignOut(ctx context.Context) error {
	return c.backend.SignOut(ctx)
}

// AppendMessage appends a chat message for the current identity.
func (c *Coordinator) AppendMessage(ctx context.Context, msg ChatMessage) (string, error) {
	uid, err := c.currentUID()
	if err != nil {
		return "", err
	}
	return c.backend.AppendMessage(ctx, uid, msg)
}

// AddMemory appends an extracted memory for the current identity.
func (c *Coordinator) AddMemory(ctx context.Context, m Memory) (string, error) {
	uid, err := c.currentUID()
	if err != nil {
		return "", err
	}
	return c.backend.AppendMemory(ctx, uid, m)
}

// SetGoalProgress updates a goal memory's progress metadata, the only
// mutation permitted on an existing memory.
func (c *Coordinator) SetGoalProgress(ctx context.Context, memoryID string, progress int) error {
	uid, err := c.currentUID()
	if err != nil {
		return err
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	c.mu.Lock()
	var meta MemoryMeta
	for _, m := range c.st.Memories {
		if m.ID == memoryID {
			meta = m.Meta
			break
		}
	}
	c.mu.Unlock()
	meta.Progress = progress
	meta.IsCompleted = progress >= 100
	return c.backend.SetMemoryMeta(ctx, uid, memoryID, meta)
}

func (c *Coordinator) currentUID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Identity == nil {
		return "", ErrNotSignedIn
	}
	return c.st.Identity.UID, nil
}

func (c *Coordinator) closeSubsLocked() {
	for _, cancel := range c.cancelSubs {
		cancel()
	}
	c.cancelSubs = nil
}
