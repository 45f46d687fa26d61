package health

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/pulse/pkg/types"
)

func detectFor(t *testing.T, entities ...types.Entity) []types.Need {
	t.Helper()
	d := newTestDetector(t)
	scores := d.ScoreAll(entities, scoreNow)
	return d.DetectNeeds(entities, scores, scoreNow)
}

func needsOf(needs []types.Need, entityID string, needType types.NeedType) []types.Need {
	var out []types.Need
	for _, n := range needs {
		if n.EntityID == entityID && n.Type == needType {
			out = append(out, n)
		}
	}
	return out
}

func TestDetectNeeds_CriticalFundingGapAndNoEngagement(t *testing.T) {
	// A $20,000 gap sits exactly at the critical threshold, and zero
	// engagement events in the window fire the high-priority people rule.
	e := completeEntity("e1")
	e.FundingTarget = decimal.NewFromInt(30000)
	e.FundingReceived = decimal.NewFromInt(10000)
	e.EngagementEvents = 0

	needs := detectFor(t, e)

	funding := needsOf(needs, "e1", types.NeedFunding)
	require.Len(t, funding, 1)
	assert.Equal(t, types.PriorityCritical, funding[0].Priority)
	assert.Contains(t, funding[0].Justification, "$20000.00")
	assert.Contains(t, funding[0].Justification, "at or above the critical threshold")
	assert.NotEmpty(t, funding[0].SuggestedActions)

	people := needsOf(needs, "e1", types.NeedPeople)
	require.Len(t, people, 1)
	assert.Equal(t, types.PriorityHigh, people[0].Priority)
	assert.Contains(t, people[0].Justification, "0 engagement events in the last 90 days")
	assert.Contains(t, people[0].Justification, "below the threshold of 1")

	// Critical first, then high.
	assert.Equal(t, types.NeedFunding, needs[0].Type)
	assert.Equal(t, types.NeedPeople, needs[1].Type)
}

func TestDetectNeeds_SubcriticalGapFiresDimensionRule(t *testing.T) {
	e := completeEntity("e1")
	e.FundingTarget = decimal.NewFromInt(10000)
	e.FundingReceived = decimal.NewFromInt(1000) // 10% funded, gap below 20k

	needs := detectFor(t, e)

	funding := needsOf(needs, "e1", types.NeedFunding)
	require.Len(t, funding, 1)
	assert.Equal(t, types.PriorityHigh, funding[0].Priority)
	assert.Contains(t, funding[0].Justification, "below 40")
}

func TestDetectNeeds_HealthyEntityHasNone(t *testing.T) {
	assert.Empty(t, detectFor(t, completeEntity("e1")))
}

func TestDetectNeeds_MomentumOwnershipCompleteness(t *testing.T) {
	e := completeEntity("e1")
	e.LastActivityAt = scoreNow.AddDate(0, 0, -60)
	e.OwnerCount = 0
	e.MissingFields = []string{
		types.FieldName,
		types.FieldTags,
		types.FieldFundingTarget,
		types.FieldFundingReceived,
	}

	needs := detectFor(t, e)

	momentum := needsOf(needs, "e1", types.NeedMomentum)
	require.Len(t, momentum, 1)
	assert.Equal(t, types.PriorityMedium, momentum[0].Priority)
	assert.Contains(t, momentum[0].Justification, "last activity 60 days ago")
	assert.Contains(t, momentum[0].Justification, "threshold of 45 days")

	ownership := needsOf(needs, "e1", types.NeedOwnership)
	require.Len(t, ownership, 1)
	assert.Equal(t, types.PriorityMedium, ownership[0].Priority)
	assert.Contains(t, ownership[0].Justification, "0 registered owners")

	completeness := needsOf(needs, "e1", types.NeedCompleteness)
	require.Len(t, completeness, 1)
	assert.Equal(t, types.PriorityLow, completeness[0].Priority)
	assert.Contains(t, completeness[0].Justification, "coverage 43%")

	// No funding need: funding data is missing, so the rule never fires.
	assert.Empty(t, needsOf(needs, "e1", types.NeedFunding))
}

func TestDetectNeeds_MissingInputsNeverFireRules(t *testing.T) {
	e := completeEntity("e1")
	e.EngagementEvents = 0
	e.OwnerCount = 0
	e.MissingFields = []string{
		types.FieldEngagementEvents,
		types.FieldOwnerCount,
	}

	needs := detectFor(t, e)

	assert.Empty(t, needsOf(needs, "e1", types.NeedPeople))
	assert.Empty(t, needsOf(needs, "e1", types.NeedOwnership))
}

func TestDetectNeeds_AtMostOneNeedPerTypePerEntity(t *testing.T) {
	e := completeEntity("e1")
	e.FundingTarget = decimal.NewFromInt(100000)
	e.FundingReceived = decimal.Zero // both the gap rule and the dimension rule fire

	needs := detectFor(t, e)

	funding := needsOf(needs, "e1", types.NeedFunding)
	require.Len(t, funding, 1)
	assert.Equal(t, types.PriorityCritical, funding[0].Priority)
}

func TestDetectNeeds_DeterministicOrdering(t *testing.T) {
	worse := completeEntity("bbb")
	worse.FundingTarget = decimal.NewFromInt(100000)
	worse.FundingReceived = decimal.Zero

	bad := completeEntity("aaa")
	bad.FundingTarget = decimal.NewFromInt(100000)
	bad.FundingReceived = decimal.NewFromInt(20000)

	stale := completeEntity("ccc")
	stale.LastActivityAt = scoreNow.AddDate(0, 0, -60)

	needs := detectFor(t, worse, bad, stale)
	require.Len(t, needs, 3)

	// Both funding needs are critical; the lower dimension score comes
	// first, then the medium momentum need.
	assert.Equal(t, "bbb", needs[0].EntityID)
	assert.Equal(t, "aaa", needs[1].EntityID)
	assert.Equal(t, "ccc", needs[2].EntityID)
	assert.Equal(t, types.PriorityMedium, needs[2].Priority)
}
