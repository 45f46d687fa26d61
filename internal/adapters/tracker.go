package adapters

import (
	"context"
	"time"

	"github.com/pulseengine/pulse/pkg/source"
)

// TrackerAdapter reads the initiative tracker, the registry of record for
// names, tags and ownership. It registers first, so its scalar fields win
// merges against every other source.
type TrackerAdapter struct {
	client *Client
}

// NewTrackerAdapter creates an adapter for the tracker at baseURL.
func NewTrackerAdapter(baseURL string) *TrackerAdapter {
	return &TrackerAdapter{client: NewClient(baseURL)}
}

func (a *TrackerAdapter) SourceID() string {
	return "tracker"
}

func (a *TrackerAdapter) SourceType() source.Type {
	return source.TypeFast
}

type trackerItem struct {
	InitiativeID string     `json:"initiative_id" validate:"required"`
	Name         string     `json:"name" validate:"required"`
	Tags         []string   `json:"tags"`
	Regions      []string   `json:"regions"`
	LinkedIDs    []string   `json:"linked_ids"`
	OwnerCount   *int       `json:"owner_count" validate:"omitempty,gte=0"`
	LastActivity *time.Time `json:"last_activity"`
	UpdatedAt    time.Time  `json:"updated_at" validate:"required"`
}

type trackerResponse struct {
	Initiatives []trackerItem `json:"initiatives" validate:"dive"`
}

// Fetch retrieves the tracker's current initiative listing. The registry is
// not windowed: only entity filtering is forwarded, never Since.
func (a *TrackerAdapter) Fetch(ctx context.Context, query source.Query) ([]source.Record, error) {
	var resp trackerResponse
	params := queryParams(source.Query{EntityIDs: query.EntityIDs})
	if err := a.client.GetJSON(ctx, "/v1/initiatives", params, &resp); err != nil {
		return nil, err
	}
	if err := a.client.ValidatePayload(&resp); err != nil {
		return nil, err
	}

	records := make([]source.Record, 0, len(resp.Initiatives))
	for _, item := range resp.Initiatives {
		name := item.Name
		records = append(records, source.Record{
			EntityID:       item.InitiativeID,
			ObservedAt:     item.UpdatedAt,
			Name:           &name,
			Tags:           item.Tags,
			Places:         item.Regions,
			CrossRefs:      item.LinkedIDs,
			OwnerCount:     item.OwnerCount,
			LastActivityAt: item.LastActivity,
		})
	}
	return records, nil
}
