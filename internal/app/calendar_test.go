package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type calendarSink struct {
	mu     sync.Mutex
	events []CalendarEvent
}

func (s *calendarSink) ObserveAuth(fn func(*Identity)) func()                        { return func() {} }
func (s *calendarSink) SignUp(ctx context.Context, name, email, password string) error { return nil }
func (s *calendarSink) SignIn(ctx context.Context, email, password string) error       { return nil }
func (s *calendarSink) SignOut(ctx context.Context) error                              { return nil }
func (s *calendarSink) SubscribeProfile(uid string, fn func(*UserProfile), fail func(error)) func() {
	return func() {}
}
func (s *calendarSink) SubscribeMemories(uid string, fn func([]Memory), fail func(error)) func() {
	return func() {}
}
func (s *calendarSink) SubscribeHistory(uid string, fn func([]ChatMessage), fail func(error)) func() {
	return func() {}
}
func (s *calendarSink) WriteProfile(ctx context.Context, profile UserProfile) error { return nil }
func (s *calendarSink) AppendMemory(ctx context.Context, uid string, m Memory) (string, error) {
	return "", nil
}
func (s *calendarSink) SetMemoryMeta(ctx context.Context, uid, memoryID string, meta MemoryMeta) error {
	return nil
}
func (s *calendarSink) AppendMessage(ctx context.Context, uid string, msg ChatMessage) (string, error) {
	return "", nil
}
func (s *calendarSink) ReplaceCalendarEvents(ctx context.Context, uid string, events []CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]CalendarEvent(nil), events...)
	return nil
}

const calendarPayload = `{
  "items": [
    {"id": "e1", "summary": "Dentist", "status": "confirmed",
     "start": {"dateTime": "2025-03-02T10:00:00Z"}, "end": {"dateTime": "2025-03-02T11:00:00Z"},
     "location": "Main St"},
    {"id": "e2", "summary": "Trip", "status": "confirmed",
     "start": {"date": "2025-03-04"}, "end": {"date": "2025-03-05"}}
  ]
}`

func TestListUpcomingEventsParsesBothDateShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("missing bearer token, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("maxResults") != "20" || q.Get("orderBy") != "startTime" {
			t.Fatalf("unexpected query: %v", q)
		}
		w.Write([]byte(calendarPayload))
	}))
	defer srv.Close()

	c := NewCalendarClient("tok", nil)
	c.BaseURL = srv.URL
	events, err := c.ListUpcomingEvents(context.Background())
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Start != "2025-03-02T10:00:00Z" {
		t.Fatalf("timed event start = %q", events[0].Start)
	}
	if events[1].Start != "2025-03-04" {
		t.Fatalf("all-day event should fall back to the date field, got %q", events[1].Start)
	}
}

func TestMissingTokenIsPermissionError(t *testing.T) {
	c := NewCalendarClient("", nil)
	if c.HasPermission() {
		t.Fatal("empty token should not count as permission")
	}
	if _, err := c.ListUpcomingEvents(context.Background()); !errors.Is(err, ErrCalendarPermission) {
		t.Fatalf("expected ErrCalendarPermission, got %v", err)
	}
	if err := c.RequestPermission(context.Background()); !errors.Is(err, ErrCalendarPermission) {
		t.Fatalf("expected ErrCalendarPermission, got %v", err)
	}
}

func TestRejectedTokenIsPermissionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	}))
	defer srv.Close()

	c := NewCalendarClient("expired", nil)
	c.BaseURL = srv.URL
	if _, err := c.ListUpcomingEvents(context.Background()); !errors.Is(err, ErrCalendarPermission) {
		t.Fatalf("expected ErrCalendarPermission, got %v", err)
	}
}

func TestSyncAllStoresStampedEventsAndReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(calendarPayload))
	}))
	defer srv.Close()

	sink := &calendarSink{}
	c := NewCalendarClient("tok", sink)
	c.BaseURL = srv.URL

	var progress []int
	count, err := c.SyncAll(context.Background(), "u1", func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 synced events, got %d", count)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(sink.events))
	}
	for _, ev := range sink.events {
		if ev.SyncedAt == "" {
			t.Fatalf("event %s missing sync stamp", ev.ID)
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress should end at 100, got %v", progress)
	}
}
