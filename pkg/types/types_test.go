package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_OrderingAndWireForm(t *testing.T) {
	assert.True(t, PriorityCritical > PriorityHigh)
	assert.True(t, PriorityHigh > PriorityMedium)
	assert.True(t, PriorityMedium > PriorityLow)

	data, err := json.Marshal(PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, `"critical"`, string(data))

	p, ok := ParsePriority("high")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
}

func TestEntity_FundingGap(t *testing.T) {
	e := Entity{
		FundingTarget:   decimal.NewFromInt(50000),
		FundingReceived: decimal.NewFromInt(30000),
	}
	assert.Equal(t, "20000", e.FundingGap().String())

	// Overfunded entities have no gap.
	e.FundingReceived = decimal.NewFromInt(60000)
	assert.Equal(t, "0", e.FundingGap().String())
}

func TestRelationshipEdge_Other(t *testing.T) {
	edge := RelationshipEdge{EntityA: "a", EntityB: "b"}
	assert.Equal(t, "b", edge.Other("a"))
	assert.Equal(t, "a", edge.Other("b"))
}
