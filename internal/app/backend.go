package app

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by the backend collaborator. Call sites classify
// against these instead of inspecting error strings.
var (
	ErrPermissionDenied   = errors.New("backend: permission denied")
	ErrEmailInUse         = errors.New("backend: email already in use")
	ErrInvalidCredentials = errors.New("backend: invalid email or password")
	ErrNotSignedIn        = errors.New("backend: not signed in")
)

// Backend is the realtime data collaborator: authentication, live
// subscriptions and whole-object writes. Subscriptions deliver the full
// current value immediately on subscribe and again after every write to the
// same scope, until the returned cancel func runs. The error callback fires
// when access to the scope is denied.
type Backend interface {
	// ObserveAuth fires once with the current identity (nil when signed
	// out), then on every sign-in/sign-out.
	ObserveAuth(fn func(*Identity)) (cancel func())

	SignUp(ctx context.Context, name, email, password string) error
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error

	SubscribeProfile(uid string, fn func(*UserProfile), fail func(error)) (cancel func())
	SubscribeMemories(uid string, fn func([]Memory), fail func(error)) (cancel func())
	SubscribeHistory(uid string, fn func([]ChatMessage), fail func(error)) (cancel func())

	// WriteProfile replaces users/{id} wholesale.
	WriteProfile(ctx context.Context, profile UserProfile) error
	AppendMemory(ctx context.Context, uid string, m Memory) (string, error)
	SetMemoryMeta(ctx context.Context, uid, memoryID string, meta MemoryMeta) error
	AppendMessage(ctx context.Context, uid string, msg ChatMessage) (string, error)
	ReplaceCalendarEvents(ctx context.Context, uid string, events []CalendarEvent) error
}
