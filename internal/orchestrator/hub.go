package orchestrator

import (
	"sync"
	"time"

	"github.com/pulseengine/pulse/internal/relations"
	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/types"
)

// Result is everything one scoring cycle publishes. All of it is
// cycle-scoped and replaced wholesale by the next cycle.
type Result struct {
	CycleID     string                       `json:"cycle_id"`
	CompletedAt time.Time                    `json:"completed_at"`
	Scores      []types.HealthScore          `json:"scores"`
	Edges       []types.RelationshipEdge     `json:"edges"`
	Needs       []types.Need                 `json:"needs"`
	Alerts      []types.Alert                `json:"alerts"`
	Freshness   map[string][]types.Freshness `json:"freshness"`
}

// HealthReport is a health score annotated with per-source freshness so
// consumers can distinguish current from degraded answers.
type HealthReport struct {
	types.HealthScore
	Freshness []types.Freshness `json:"freshness"`
}

// NeedFilter narrows a needs query.
type NeedFilter struct {
	Priority *types.Priority
	EntityID string
}

// Hub holds the last published cycle result and serves read queries from
// dashboards. Readers never block a publish for long: publish swaps the
// whole result under a write lock.
type Hub struct {
	mu      sync.RWMutex
	result  Result
	byID    map[string]types.HealthScore
	hasData bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{byID: make(map[string]types.HealthScore)}
}

// Publish replaces the served result with a new cycle's output.
func (h *Hub) Publish(r Result) {
	byID := make(map[string]types.HealthScore, len(r.Scores))
	for _, s := range r.Scores {
		byID[s.EntityID] = s
	}

	h.mu.Lock()
	h.result = r
	h.byID = byID
	h.hasData = true
	h.mu.Unlock()
}

// EntityHealth returns the health report for one entity.
func (h *Hub) EntityHealth(entityID string) (*HealthReport, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	score, ok := h.byID[entityID]
	if !ok {
		return nil, errors.NewNotFoundError("entity")
	}

	return &HealthReport{
		HealthScore: score,
		Freshness:   h.result.Freshness[entityID],
	}, nil
}

// RelatedEntities returns an entity's retained edges, best-first, bounded
// by limit (0 means all retained edges).
func (h *Hub) RelatedEntities(entityID string, limit int) []types.RelationshipEdge {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return relations.RelatedTo(h.result.Edges, entityID, limit)
}

// ActiveAlerts returns the current cycle's alerts.
func (h *Hub) ActiveAlerts() []types.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.Alert, len(h.result.Alerts))
	copy(out, h.result.Alerts)
	return out
}

// Needs returns the current cycle's needs, optionally filtered by priority
// and entity, preserving the published order.
func (h *Hub) Needs(filter NeedFilter) []types.Need {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.Need, 0, len(h.result.Needs))
	for _, n := range h.result.Needs {
		if filter.Priority != nil && n.Priority != *filter.Priority {
			continue
		}
		if filter.EntityID != "" && n.EntityID != filter.EntityID {
			continue
		}
		out = append(out, n)
	}
	return out
}

// FreshnessFor returns the published freshness metadata for the given
// entities. Entities the last cycle never saw are absent from the result.
func (h *Hub) FreshnessFor(entityIDs []string) map[string][]types.Freshness {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string][]types.Freshness, len(entityIDs))
	for _, id := range entityIDs {
		if f, ok := h.result.Freshness[id]; ok {
			out[id] = f
		}
	}
	return out
}

// LastCycle returns the id and completion time of the last published cycle.
// ok is false until the first cycle publishes.
func (h *Hub) LastCycle() (cycleID string, completedAt time.Time, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.result.CycleID, h.result.CompletedAt, h.hasData
}
