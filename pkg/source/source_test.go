package source

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pulseengine/pulse/pkg/types"
)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func decPtr(s string) *decimal.Decimal { d := decimal.RequireFromString(s); return &d }

func TestMerge_ScalarFieldsFollowSourcePriority(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)

	records := []Record{
		{
			EntityID:   "init-1",
			ObservedAt: t1,
			Name:       strPtr("Community Garden"),
			OwnerCount: intPtr(2),
		},
		{
			EntityID:        "init-1",
			ObservedAt:      t2,
			Name:            strPtr("Garden (ledger alias)"),
			FundingTarget:   decPtr("50000"),
			FundingReceived: decPtr("30000"),
		},
	}

	e := Merge("init-1", records)

	// The first record wins contested scalars; the second only fills gaps.
	assert.Equal(t, "Community Garden", e.Name)
	assert.Equal(t, 2, e.OwnerCount)
	assert.Equal(t, "50000", e.FundingTarget.String())
	assert.Equal(t, "30000", e.FundingReceived.String())
	assert.Equal(t, t2, e.UpdatedAt)
}

func TestMerge_ListFieldsAreUnionedAndSorted(t *testing.T) {
	records := []Record{
		{EntityID: "init-1", Tags: []string{"water", "education"}, Places: []string{"riverside"}},
		{EntityID: "init-1", Tags: []string{"education", "youth"}, ParticipantOrgs: []string{"org-b", "org-a"}},
	}

	e := Merge("init-1", records)

	assert.Equal(t, []string{"education", "water", "youth"}, e.Tags)
	assert.Equal(t, []string{"org-a", "org-b"}, e.ParticipantOrgs)
	assert.Equal(t, []string{"riverside"}, e.Places)
}

func TestMerge_TracksMissingRequiredFields(t *testing.T) {
	e := Merge("init-1", []Record{
		{EntityID: "init-1", Name: strPtr("Partial"), Tags: []string{"arts"}},
	})

	assert.True(t, e.Has(types.FieldName))
	assert.True(t, e.Has(types.FieldTags))
	assert.False(t, e.Has(types.FieldFundingTarget))
	assert.False(t, e.Has(types.FieldEngagementEvents))
	assert.False(t, e.Has(types.FieldOwnerCount))

	// 2 of the 7 required fields present.
	assert.InDelta(t, 2.0/7.0, e.Coverage(), 1e-9)
}

func TestMerge_NoRecords(t *testing.T) {
	e := Merge("init-1", nil)

	assert.Equal(t, "init-1", e.ID)
	assert.Equal(t, float64(0), e.Coverage())
	assert.Len(t, e.MissingFields, len(types.RequiredFields))
}
