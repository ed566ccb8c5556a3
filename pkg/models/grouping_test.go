package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupingResult_GroupOf(t *testing.T) {
	r := GroupingResult{Groups: []PersonGroup{
		{ID: "g1", DocumentIDs: []string{"d1", "d2"}},
		{ID: "g2", DocumentIDs: []string{"d3"}},
	}}

	require.NotNil(t, r.GroupOf("d2"))
	assert.Equal(t, "g1", r.GroupOf("d2").ID)
	assert.Equal(t, "g2", r.GroupOf("d3").ID)
	assert.Nil(t, r.GroupOf("missing"))
}
