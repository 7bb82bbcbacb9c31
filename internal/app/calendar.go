package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

// ErrCalendarPermission means no usable calendar credential is configured.
var ErrCalendarPermission = errors.New("calendar: permission not granted")

// CalendarClient reads the user's primary Google Calendar. It feeds the
// settings screen only; the session coordinator never touches it.
type CalendarClient struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
	Backend Backend
}

type calendarListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
		Status  string `json:"status"`
		Start   struct {
			DateTime string `json:"dateTime"`
			Date     string `json:"date"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
			Date     string `json:"date"`
		} `json:"end"`
		Location string `json:"location"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewCalendarClient(token string, backend Backend) *CalendarClient {
	return &CalendarClient{
		Token:   token,
		BaseURL: defaultCalendarBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Backend: backend,
	}
}

// HasPermission reports whether a calendar credential is configured.
func (c *CalendarClient) HasPermission() bool {
	return strings.TrimSpace(c.Token) != ""
}

// RequestPermission validates the configured credential with a cheap probe.
// The interactive OAuth consent flow is browser territory; here a token is
// supplied through config and only its usability is checked.
func (c *CalendarClient) RequestPermission(ctx context.Context) error {
	if !c.HasPermission() {
		return ErrCalendarPermission
	}
	_, err := c.ListUpcomingEvents(ctx)
	return err
}

// ListUpcomingEvents returns up to 20 events in the next 7 days, ordered by
// start time.
func (c *CalendarClient) ListUpcomingEvents(ctx context.Context) ([]CalendarEvent, error) {
	if !c.HasPermission() {
		return nil, ErrCalendarPermission
	}
	now := time.Now()
	q := url.Values{}
	q.Set("timeMin", now.Format(time.RFC3339))
	q.Set("timeMax", now.Add(7*24*time.Hour).Format(time.RFC3339))
	q.Set("maxResults", "20")
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	endpoint := fmt.Sprintf("%s/calendars/primary/events?%s", strings.TrimRight(c.BaseURL, "/"), q.Encode())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var parsed calendarListResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if parsed.Error != nil {
		if parsed.Error.Code == http.StatusUnauthorized || parsed.Error.Code == http.StatusForbidden {
			return nil, ErrCalendarPermission
		}
		return nil, fmt.Errorf("calendar api error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	events := make([]CalendarEvent, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		start := it.Start.DateTime
		if start == "" {
			start = it.Start.Date
		}
		end := it.End.DateTime
		if end == "" {
			end = it.End.Date
		}
		events = append(events, CalendarEvent{
			ID:       it.ID,
			Summary:  it.Summary,
			Start:    start,
			End:      end,
			Location: it.Location,
			Status:   it.Status,
		})
	}
	return events, nil
}

// SyncAll replaces the user's synced events with the current upcoming set,
// reporting percentage progress as it goes. Returns how many events landed.
func (c *CalendarClient) SyncAll(ctx context.Context, uid string, onProgress func(percent int)) (int, error) {
	events, err := c.ListUpcomingEvents(ctx)
	if err != nil {
		return 0, err
	}
	syncedAt := time.Now().Format(time.RFC3339)
	for i := range events {
		events[i].SyncedAt = syncedAt
		if onProgress != nil {
			onProgress((i + 1) * 100 / max(1, len(events)))
		}
	}
	if err := c.Backend.ReplaceCalendarEvents(ctx, uid, events); err != nil {
		return 0, err
	}
	if onProgress != nil {
		onProgress(100)
	}
	return len(events), nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
