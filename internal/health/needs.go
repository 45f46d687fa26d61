package health

import (
	"fmt"
	"sort"
	"time"

	"github.com/pulseengine/pulse/pkg/types"
)

// DetectNeeds derives the ranked, justified need list for a set of scored
// entities. Output ordering is fully deterministic: priority (critical
// first), then ascending dimension score (worst first), then entity id.
func (d *Detector) DetectNeeds(entities []types.Entity, scores []types.HealthScore, now time.Time) []types.Need {
	byID := make(map[string]types.HealthScore, len(scores))
	for _, s := range scores {
		byID[s.EntityID] = s
	}

	var needs []types.Need
	for _, e := range entities {
		hs, ok := byID[e.ID]
		if !ok {
			continue
		}
		needs = append(needs, d.entityNeeds(e, hs, now)...)
	}

	needs = dedupeNeeds(needs)

	sort.Slice(needs, func(i, j int) bool {
		if needs[i].Priority != needs[j].Priority {
			return needs[i].Priority > needs[j].Priority
		}
		if needs[i].DimensionScore != needs[j].DimensionScore {
			return needs[i].DimensionScore < needs[j].DimensionScore
		}
		if needs[i].EntityID != needs[j].EntityID {
			return needs[i].EntityID < needs[j].EntityID
		}
		return needs[i].Type < needs[j].Type
	})

	return needs
}

// entityNeeds runs every rule for one entity. Each emitted need cites the
// exact threshold and raw value that fired it.
func (d *Detector) entityNeeds(e types.Entity, hs types.HealthScore, now time.Time) []types.Need {
	t := d.config.Thresholds
	var needs []types.Need

	// Funding: an absolute gap at or above the critical threshold dominates
	// the dimension-range rule via dedup.
	if e.Has(types.FieldFundingTarget) && e.Has(types.FieldFundingReceived) {
		gap := e.FundingGap()
		if gap.GreaterThanOrEqual(t.CriticalFundingGap) && t.CriticalFundingGap.IsPositive() {
			needs = append(needs, types.Need{
				EntityID: e.ID,
				Type:     types.NeedFunding,
				Priority: types.PriorityCritical,
				Justification: fmt.Sprintf("funding gap $%s is at or above the critical threshold $%s",
					gap.StringFixed(2), t.CriticalFundingGap.StringFixed(2)),
				SuggestedActions: []string{
					"review open grant applications",
					"schedule a funder outreach round",
				},
				DimensionScore: hs.Dimensions.Funding,
			})
		} else if hs.Dimensions.Funding < 40 {
			needs = append(needs, types.Need{
				EntityID: e.ID,
				Type:     types.NeedFunding,
				Priority: types.PriorityHigh,
				Justification: fmt.Sprintf("funding dimension score %.1f is below 40 (received $%s of $%s target)",
					hs.Dimensions.Funding, e.FundingReceived.StringFixed(2), e.FundingTarget.StringFixed(2)),
				SuggestedActions: []string{"review funding pipeline"},
				DimensionScore:   hs.Dimensions.Funding,
			})
		}
	}

	// People: no engagement at all within the window is worse than merely
	// low engagement.
	if e.Has(types.FieldEngagementEvents) {
		if e.EngagementEvents < t.LowEngagementCount {
			needs = append(needs, types.Need{
				EntityID: e.ID,
				Type:     types.NeedPeople,
				Priority: types.PriorityHigh,
				Justification: fmt.Sprintf("%d engagement events in the last %d days, below the threshold of %d",
					e.EngagementEvents, t.EngagementWindowDays, t.LowEngagementCount),
				SuggestedActions: []string{
					"contact the participant list",
					"plan a community event",
				},
				DimensionScore: hs.Dimensions.People,
			})
		} else if hs.Dimensions.People < 40 {
			needs = append(needs, types.Need{
				EntityID: e.ID,
				Type:     types.NeedPeople,
				Priority: types.PriorityMedium,
				Justification: fmt.Sprintf("people dimension score %.1f is below 40 (%d events of %d target in %d days)",
					hs.Dimensions.People, e.EngagementEvents, t.HealthyEngagement, t.EngagementWindowDays),
				SuggestedActions: []string{"plan a community event"},
				DimensionScore:   hs.Dimensions.People,
			})
		}
	}

	// Momentum: prolonged inactivity.
	if e.Has(types.FieldLastActivityAt) {
		days := int(now.Sub(e.LastActivityAt).Hours() / 24)
		if days > t.StaleActivityDays {
			needs = append(needs, types.Need{
				EntityID: e.ID,
				Type:     types.NeedMomentum,
				Priority: types.PriorityMedium,
				Justification: fmt.Sprintf("last activity %d days ago, exceeding the threshold of %d days",
					days, t.StaleActivityDays),
				SuggestedActions: []string{"check in with the initiative owners"},
				DimensionScore:   hs.Dimensions.Momentum,
			})
		}
	}

	// Ownership: nobody is responsible.
	if e.Has(types.FieldOwnerCount) && e.OwnerCount == 0 {
		needs = append(needs, types.Need{
			EntityID:         e.ID,
			Type:             types.NeedOwnership,
			Priority:         types.PriorityMedium,
			Justification:    "0 registered owners, below the threshold of 1",
			SuggestedActions: []string{"recruit an initiative owner"},
			DimensionScore:   hs.Dimensions.Ownership,
		})
	}

	// Completeness: too many required fields missing to trust the picture.
	if coverage := e.Coverage(); coverage < t.MinFieldCoverage {
		needs = append(needs, types.Need{
			EntityID: e.ID,
			Type:     types.NeedCompleteness,
			Priority: types.PriorityLow,
			Justification: fmt.Sprintf("required field coverage %.0f%% is below the threshold of %.0f%%",
				coverage*100, t.MinFieldCoverage*100),
			SuggestedActions: []string{"backfill missing entity fields"},
			DimensionScore:   hs.Dimensions.Completeness,
		})
	}

	return needs
}

// dedupeNeeds collapses multiple firings per (type, entity), keeping the
// highest-priority instance.
func dedupeNeeds(needs []types.Need) []types.Need {
	type needKey struct {
		entityID string
		needType types.NeedType
	}

	best := make(map[needKey]types.Need)
	order := make([]needKey, 0, len(needs))

	for _, n := range needs {
		k := needKey{n.EntityID, n.Type}
		existing, ok := best[k]
		if !ok {
			best[k] = n
			order = append(order, k)
			continue
		}
		if n.Priority > existing.Priority {
			best[k] = n
		}
	}

	out := make([]types.Need, 0, len(best))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}
