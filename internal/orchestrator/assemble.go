package orchestrator

import (
	"sort"

	"github.com/pulseengine/pulse/internal/cache"
	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/source"
	"github.com/pulseengine/pulse/pkg/types"
)

// assemble merges each entity's per-source records from the snapshot into a
// single Entity, in source priority order. A malformed cached record
// excludes only its entity from the cycle, with a logged warning; every
// other entity still gets scored.
func (e *Engine) assemble(snap *cache.Snapshot) ([]types.Entity, map[string]float64, map[string][]types.Freshness) {
	priority := make(map[string]int, len(e.adapters))
	for i, a := range e.adapters {
		priority[a.SourceID()] = i
	}

	now := snap.TakenAt
	var entities []types.Entity
	coverage := make(map[string]float64)
	freshness := make(map[string][]types.Freshness)

	for _, entityID := range snap.EntityIDs() {
		entries := snap.EntityEntries(entityID)

		// Restored entries from retired sources sort after live adapters.
		sort.SliceStable(entries, func(i, j int) bool {
			pi, iOK := priority[entries[i].SourceID]
			pj, jOK := priority[entries[j].SourceID]
			if iOK != jOK {
				return iOK
			}
			if iOK && pi != pj {
				return pi < pj
			}
			return entries[i].SourceID < entries[j].SourceID
		})

		records := make([]source.Record, 0, len(entries))
		fresh := make([]types.Freshness, 0, len(entries))
		malformed := false

		for _, entry := range entries {
			if entry.Record.EntityID != entityID {
				err := errors.NewScoringInputError(entityID,
					"cached record entity id does not match its cache key")
				e.logger.Warn("Excluding entity from cycle scoring",
					"entity_id", entityID,
					"source_id", entry.SourceID,
					"error", err.Error(),
				)
				malformed = true
				break
			}

			records = append(records, entry.Record)
			fresh = append(fresh, types.Freshness{
				SourceID:  entry.SourceID,
				FetchedAt: entry.FetchedAt,
				Stale:     entry.Stale(now),
			})
		}

		if malformed {
			continue
		}

		entity := source.Merge(entityID, records)
		entities = append(entities, entity)
		coverage[entityID] = entity.Coverage()
		freshness[entityID] = fresh
	}

	return entities, coverage, freshness
}
