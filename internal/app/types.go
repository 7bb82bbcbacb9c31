package app

import (
	"strings"
	"time"
)

// ThemeColor is a user-selectable accent palette name.
type ThemeColor string

const (
	ThemeRose     ThemeColor = "rose"
	ThemeBeige    ThemeColor = "beige"
	ThemeLavender ThemeColor = "lavender"
	ThemeBlue     ThemeColor = "blue"
	ThemeGrey     ThemeColor = "grey"
	ThemeSage     ThemeColor = "sage"
	ThemeTeal     ThemeColor = "teal"
)

// DefaultTheme is used for fresh profiles and for unrecognized colors.
const DefaultTheme = ThemeRose

// UserProfile mirrors the remote users/{id} record. Writes are always
// whole-object replacements of the last-known merged copy.
type UserProfile struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Email       string     `json:"email" yaml:"email"`
	Preferences []string   `json:"preferences" yaml:"preferences"`
	IsOnboarded bool       `json:"isOnboarded" yaml:"is_onboarded"`
	ThemeColor  ThemeColor `json:"themeColor" yaml:"theme_color"`
}

// Clone returns a deep copy so cached profiles are never aliased by callers.
func (p UserProfile) Clone() UserProfile {
	out := p
	out.Preferences = append([]string(nil), p.Preferences...)
	return out
}

type MemoryKind string

const (
	MemoryNote         MemoryKind = "note"
	MemoryEvent        MemoryKind = "event"
	MemoryRelationship MemoryKind = "relationship"
	MemoryGoal         MemoryKind = "goal"
	MemoryHealth       MemoryKind = "health"
	MemoryFinance      MemoryKind = "finance"
	MemoryPattern      MemoryKind = "pattern"
)

// ParseMemoryKind maps extractor output to a known kind, defaulting to note.
func ParseMemoryKind(s string) MemoryKind {
	switch MemoryKind(s) {
	case MemoryNote, MemoryEvent, MemoryRelationship, MemoryGoal, MemoryHealth, MemoryFinance, MemoryPattern:
		return MemoryKind(s)
	}
	return MemoryNote
}

// MemoryMeta is the closed set of known metadata fields plus an escape
// hatch for anything newer clients may have written.
type MemoryMeta struct {
	Progress    int               `json:"progress,omitempty" yaml:"progress,omitempty"` // 0..100, goals only
	IsCompleted bool              `json:"isCompleted,omitempty" yaml:"is_completed,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Memory is immutable once created except for its metadata.
type Memory struct {
	ID        string     `json:"id" yaml:"id"`
	Kind      MemoryKind `json:"type" yaml:"type"`
	Content   string     `json:"content" yaml:"content"`
	Timestamp string     `json:"timestamp" yaml:"timestamp"` // ISO-8601
	Meta      MemoryMeta `json:"metadata" yaml:"metadata"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type MessageKind string

const (
	MessageText    MessageKind = "text"
	MessageImage   MessageKind = "image"
	MessageInsight MessageKind = "insight"
)

// ChatMessage is one entry of the bounded conversation history.
type ChatMessage struct {
	ID        string      `json:"id" yaml:"id"`
	Role      MessageRole `json:"role" yaml:"role"`
	Content   string      `json:"content" yaml:"content"`
	Kind      MessageKind `json:"type" yaml:"type"`
	ImageURL  string      `json:"imageUrl,omitempty" yaml:"image_url,omitempty"` // data URI
	Timestamp string      `json:"timestamp" yaml:"timestamp"`
}

// HistoryLimit bounds the chat history to the most recent entries.
const HistoryLimit = 50

// Route names the screen the application should be showing.
type Route string

const (
	RouteAuth       Route = "auth"
	RouteOnboarding Route = "onboarding"
	RouteDashboard  Route = "dashboard"
	RouteMindVault  Route = "mindvault"
	RouteFlow       Route = "flow"
	RouteChat       Route = "chat"
	RouteSettings   Route = "settings"
)

// InAppRoutes are the destinations reachable by explicit navigation once a
// user is authenticated and onboarded.
var InAppRoutes = []Route{RouteDashboard, RouteMindVault, RouteFlow, RouteChat, RouteSettings}

// Identity is the opaque authenticated principal handed out by the backend.
type Identity struct {
	UID          string
	Email        string
	DisplayName  string
	CreatedAt    time.Time
	LastSignInAt time.Time
}

// FallbackName picks a display name for provisional profiles the way the
// original client did: display name, then the email local part, then "User".
func (id Identity) FallbackName() string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if at := strings.IndexByte(id.Email, '@'); at > 0 {
		return id.Email[:at]
	}
	return "User"
}

// CalendarEvent is one upcoming event from the calendar collaborator.
type CalendarEvent struct {
	ID       string `json:"id" yaml:"id"`
	Summary  string `json:"summary" yaml:"summary"`
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Status   string `json:"status" yaml:"status"`
	SyncedAt string `json:"syncedAt,omitempty" yaml:"synced_at,omitempty"`
}
