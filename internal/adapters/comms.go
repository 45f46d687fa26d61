package adapters

import (
	"context"
	"time"

	"github.com/pulseengine/pulse/pkg/source"
)

// CommsAdapter reads the communications platform for engagement signals:
// message volume and who last spoke up about an initiative.
type CommsAdapter struct {
	client *Client
}

// NewCommsAdapter creates an adapter for the comms platform at baseURL.
func NewCommsAdapter(baseURL string) *CommsAdapter {
	return &CommsAdapter{client: NewClient(baseURL)}
}

func (a *CommsAdapter) SourceID() string {
	return "comms"
}

func (a *CommsAdapter) SourceType() source.Type {
	return source.TypeFast
}

type commsItem struct {
	InitiativeID  string     `json:"initiative_id" validate:"required"`
	MessageCount  *int       `json:"message_count" validate:"omitempty,gte=0"`
	ActiveOrgs    []string   `json:"active_orgs"`
	LastMessageAt *time.Time `json:"last_message_at"`
	SampledAt     time.Time  `json:"sampled_at" validate:"required"`
}

type commsResponse struct {
	Channels []commsItem `json:"channels" validate:"dive"`
}

// Fetch retrieves per-initiative engagement counts from the comms platform.
// The rolling window in query.Since is forwarded so reported counts cover
// the same span the need rules cite.
func (a *CommsAdapter) Fetch(ctx context.Context, query source.Query) ([]source.Record, error) {
	var resp commsResponse
	if err := a.client.GetJSON(ctx, "/v1/channels/activity", queryParams(query), &resp); err != nil {
		return nil, err
	}
	if err := a.client.ValidatePayload(&resp); err != nil {
		return nil, err
	}

	records := make([]source.Record, 0, len(resp.Channels))
	for _, item := range resp.Channels {
		records = append(records, source.Record{
			EntityID:         item.InitiativeID,
			ObservedAt:       item.SampledAt,
			EngagementEvents: item.MessageCount,
			ParticipantOrgs:  item.ActiveOrgs,
			LastActivityAt:   item.LastMessageAt,
		})
	}
	return records, nil
}
