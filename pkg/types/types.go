package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Canonical entity field names used for completeness tracking. An entity is
// assembled from several sources; fields no source supplied are recorded in
// Entity.MissingFields.
const (
	FieldName             = "name"
	FieldTags             = "tags"
	FieldParticipantOrgs  = "participant_orgs"
	FieldPlaces           = "places"
	FieldCrossRefs        = "cross_refs"
	FieldFundingTarget    = "funding_target"
	FieldFundingReceived  = "funding_received"
	FieldEngagementEvents = "engagement_events"
	FieldLastActivityAt   = "last_activity_at"
	FieldOwnerCount       = "owner_count"
)

// RequiredFields is the set of fields every fully-described entity carries.
// Coverage against this list drives the data_quality alert and the
// completeness health dimension.
var RequiredFields = []string{
	FieldName,
	FieldTags,
	FieldFundingTarget,
	FieldFundingReceived,
	FieldEngagementEvents,
	FieldLastActivityAt,
	FieldOwnerCount,
}

// Entity is the engine's uniform, strongly-typed view of a tracked
// initiative after adapter normalization and multi-source merging.
type Entity struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	ParticipantOrgs []string `json:"participant_orgs"`
	Places          []string `json:"places"`
	CrossRefs       []string `json:"cross_refs"`

	FundingTarget   decimal.Decimal `json:"funding_target"`
	FundingReceived decimal.Decimal `json:"funding_received"`

	EngagementEvents int       `json:"engagement_events"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	OwnerCount       int       `json:"owner_count"`

	// MissingFields lists required fields no source supplied.
	MissingFields []string  `json:"missing_fields,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Has reports whether the named required field was supplied by any source.
func (e Entity) Has(field string) bool {
	for _, f := range e.MissingFields {
		if f == field {
			return false
		}
	}
	return true
}

// Coverage returns the ratio of required fields present, in [0,1].
func (e Entity) Coverage() float64 {
	missing := 0
	for _, f := range e.MissingFields {
		for _, r := range RequiredFields {
			if f == r {
				missing++
				break
			}
		}
	}
	return 1 - float64(missing)/float64(len(RequiredFields))
}

// FundingGap returns target minus received, never negative.
func (e Entity) FundingGap() decimal.Decimal {
	gap := e.FundingTarget.Sub(e.FundingReceived)
	if gap.IsNegative() {
		return decimal.Zero
	}
	return gap
}

// Priority ranks a Need. Higher values sort first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority converts the wire form back to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "critical":
		return PriorityCritical, true
	case "high":
		return PriorityHigh, true
	case "medium":
		return PriorityMedium, true
	case "low":
		return PriorityLow, true
	default:
		return PriorityLow, false
	}
}

// MarshalJSON renders the priority as its string form.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// NeedType identifies the deficiency a Need describes.
type NeedType string

const (
	NeedFunding      NeedType = "funding"
	NeedPeople       NeedType = "people"
	NeedMomentum     NeedType = "momentum"
	NeedOwnership    NeedType = "ownership"
	NeedCompleteness NeedType = "completeness"
)

// Need is an actionable, prioritized deficiency derived from health scoring.
// Needs are cycle-scoped and recomputed every cycle, never persisted.
type Need struct {
	EntityID         string   `json:"entity_id"`
	Type             NeedType `json:"type"`
	Priority         Priority `json:"priority"`
	Justification    string   `json:"justification"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`

	// DimensionScore is the health dimension that fired the rule; used for
	// worst-first ordering within a priority band.
	DimensionScore float64 `json:"dimension_score"`
}

// DimensionScores holds the five weighted health dimensions, each in [0,100].
type DimensionScores struct {
	Funding      float64 `json:"funding"`
	People       float64 `json:"people"`
	Momentum     float64 `json:"momentum"`
	Ownership    float64 `json:"ownership"`
	Completeness float64 `json:"completeness"`
}

// HealthScore is the per-entity 0-100 health summary for one cycle.
type HealthScore struct {
	EntityID   string          `json:"entity_id"`
	Overall    int             `json:"overall"`
	Dimensions DimensionScores `json:"dimensions"`
	ComputedAt time.Time       `json:"computed_at"`
}

// FactorOverlap explains one factor's contribution to a relationship edge.
type FactorOverlap struct {
	Factor string   `json:"factor"`
	Shared []string `json:"shared,omitempty"`
	Ratio  float64  `json:"ratio"`
	Weight float64  `json:"weight"`
}

// RelationshipEdge is a weighted similarity link between two entities.
// EntityA is always the lexicographically smaller id, so score(A,B) and
// score(B,A) are the same edge.
type RelationshipEdge struct {
	EntityA string          `json:"entity_a"`
	EntityB string          `json:"entity_b"`
	Score   float64         `json:"score"`
	Factors []FactorOverlap `json:"factors"`
}

// SharedCount returns the absolute overlap count across all factors,
// used as the first tie-break between equally scored edges.
func (e RelationshipEdge) SharedCount() int {
	n := 0
	for _, f := range e.Factors {
		n += len(f.Shared)
	}
	return n
}

// Other returns the edge endpoint that is not the given entity.
func (e RelationshipEdge) Other(entityID string) string {
	if e.EntityA == entityID {
		return e.EntityB
	}
	return e.EntityA
}

// AlertCategory classifies the condition an alert reports on.
type AlertCategory string

const (
	AlertDataFreshness  AlertCategory = "data_freshness"
	AlertDataQuality    AlertCategory = "data_quality"
	AlertAPIPerformance AlertCategory = "api_performance"
)

// AlertSeverity is the urgency of an alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a cycle-scoped monitoring condition. Alerts are recomputed every
// cycle and disappear once the condition no longer holds.
type Alert struct {
	ID        string        `json:"id"`
	Category  AlertCategory `json:"category"`
	Severity  AlertSeverity `json:"severity"`
	SourceID  string        `json:"source_id,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// Freshness tells a consumer how current one source's contribution to an
// entity is, so degraded answers are distinguishable from current ones.
type Freshness struct {
	SourceID  string    `json:"source_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}
