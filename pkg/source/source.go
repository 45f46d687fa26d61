package source

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseengine/pulse/pkg/types"
)

// Type classifies how quickly a source's data changes, which selects its
// cache TTL window.
type Type string

const (
	// TypeFast is for fast-changing data (activity, communications)
	TypeFast Type = "fast"
	// TypeSlow is for slow-changing data (ledgers, registries)
	TypeSlow Type = "slow"
)

// Query narrows a fetch to specific entities or a time horizon. Empty
// EntityIDs means "everything the source tracks".
type Query struct {
	EntityIDs []string  `json:"entity_ids,omitempty"`
	Since     time.Time `json:"since,omitempty"`
}

// Adapter is the narrow contract each external provider implements. Adapters
// must be idempotent on read and translate their provider's payload shape
// into normalized Records at the boundary; provider quirks never travel
// further into the engine.
type Adapter interface {
	// SourceID returns the stable identifier of the provider
	SourceID() string

	// SourceType classifies the provider's rate of change
	SourceType() Type

	// Fetch retrieves and normalizes the provider's current view
	Fetch(ctx context.Context, query Query) ([]Record, error)
}

// Record is one source's normalized, partial view of an entity. Pointer and
// nil-slice fields distinguish "not supplied by this source" from zero
// values, which drives merge precedence and completeness tracking.
type Record struct {
	EntityID   string    `json:"entity_id"`
	ObservedAt time.Time `json:"observed_at"`

	Name            *string  `json:"name,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ParticipantOrgs []string `json:"participant_orgs,omitempty"`
	Places          []string `json:"places,omitempty"`
	CrossRefs       []string `json:"cross_refs,omitempty"`

	FundingTarget   *decimal.Decimal `json:"funding_target,omitempty"`
	FundingReceived *decimal.Decimal `json:"funding_received,omitempty"`

	EngagementEvents *int       `json:"engagement_events,omitempty"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	OwnerCount       *int       `json:"owner_count,omitempty"`
}

// Merge folds per-source records into one Entity. Records must be given in
// source priority order: a later record only fills fields earlier records
// left unset. List fields (tags, orgs, places, cross-refs) are unioned
// across all sources instead, since each provider sees a different slice of
// the ecosystem. The returned entity's MissingFields lists required fields
// no source supplied.
func Merge(entityID string, records []Record) types.Entity {
	e := types.Entity{ID: entityID}

	var haveName, haveTarget, haveReceived bool
	var haveEvents, haveActivity, haveOwners bool

	for _, r := range records {
		if r.Name != nil && !haveName {
			e.Name = *r.Name
			haveName = true
		}
		if r.FundingTarget != nil && !haveTarget {
			e.FundingTarget = *r.FundingTarget
			haveTarget = true
		}
		if r.FundingReceived != nil && !haveReceived {
			e.FundingReceived = *r.FundingReceived
			haveReceived = true
		}
		if r.EngagementEvents != nil && !haveEvents {
			e.EngagementEvents = *r.EngagementEvents
			haveEvents = true
		}
		if r.LastActivityAt != nil && !haveActivity {
			e.LastActivityAt = *r.LastActivityAt
			haveActivity = true
		}
		if r.OwnerCount != nil && !haveOwners {
			e.OwnerCount = *r.OwnerCount
			haveOwners = true
		}

		e.Tags = unionSorted(e.Tags, r.Tags)
		e.ParticipantOrgs = unionSorted(e.ParticipantOrgs, r.ParticipantOrgs)
		e.Places = unionSorted(e.Places, r.Places)
		e.CrossRefs = unionSorted(e.CrossRefs, r.CrossRefs)

		if r.ObservedAt.After(e.UpdatedAt) {
			e.UpdatedAt = r.ObservedAt
		}
	}

	if !haveName {
		e.MissingFields = append(e.MissingFields, types.FieldName)
	}
	if len(e.Tags) == 0 {
		e.MissingFields = append(e.MissingFields, types.FieldTags)
	}
	if !haveTarget {
		e.MissingFields = append(e.MissingFields, types.FieldFundingTarget)
	}
	if !haveReceived {
		e.MissingFields = append(e.MissingFields, types.FieldFundingReceived)
	}
	if !haveEvents {
		e.MissingFields = append(e.MissingFields, types.FieldEngagementEvents)
	}
	if !haveActivity {
		e.MissingFields = append(e.MissingFields, types.FieldLastActivityAt)
	}
	if !haveOwners {
		e.MissingFields = append(e.MissingFields, types.FieldOwnerCount)
	}

	return e
}

// unionSorted merges two string sets into a sorted, deduplicated slice.
func unionSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}

	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	sort.Strings(out)
	return out
}
