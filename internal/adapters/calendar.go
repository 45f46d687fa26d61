package adapters

import (
	"context"
	"time"

	"github.com/pulseengine/pulse/pkg/source"
)

// CalendarAdapter reads the events calendar. Event counts feed the people
// dimension when the comms platform has no signal, and venues feed place
// overlap.
type CalendarAdapter struct {
	client *Client
}

// NewCalendarAdapter creates an adapter for the calendar at baseURL.
func NewCalendarAdapter(baseURL string) *CalendarAdapter {
	return &CalendarAdapter{client: NewClient(baseURL)}
}

func (a *CalendarAdapter) SourceID() string {
	return "calendar"
}

func (a *CalendarAdapter) SourceType() source.Type {
	return source.TypeFast
}

type calendarItem struct {
	InitiativeID string     `json:"initiative_id" validate:"required"`
	EventCount   *int       `json:"event_count" validate:"omitempty,gte=0"`
	Venues       []string   `json:"venues"`
	LastEventAt  *time.Time `json:"last_event_at"`
	GeneratedAt  time.Time  `json:"generated_at" validate:"required"`
}

type calendarResponse struct {
	Schedules []calendarItem `json:"schedules" validate:"dive"`
}

// Fetch retrieves per-initiative event schedules within the window given by
// query.Since.
func (a *CalendarAdapter) Fetch(ctx context.Context, query source.Query) ([]source.Record, error) {
	var resp calendarResponse
	if err := a.client.GetJSON(ctx, "/v1/schedules", queryParams(query), &resp); err != nil {
		return nil, err
	}
	if err := a.client.ValidatePayload(&resp); err != nil {
		return nil, err
	}

	records := make([]source.Record, 0, len(resp.Schedules))
	for _, item := range resp.Schedules {
		records = append(records, source.Record{
			EntityID:         item.InitiativeID,
			ObservedAt:       item.GeneratedAt,
			EngagementEvents: item.EventCount,
			Places:           item.Venues,
			LastActivityAt:   item.LastEventAt,
		})
	}
	return records, nil
}
