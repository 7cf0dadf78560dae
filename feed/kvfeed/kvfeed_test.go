package kvfeed

import (
	"testing"

	"github.com/encodeous/spfsync/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjacencyKey(t *testing.T) {
	assert.Equal(t, "1.2", AdjacencyKey(2, 1))
	assert.Equal(t, AdjacencyKey(167772161, 167772162), AdjacencyKey(167772162, 167772161))
}

func TestParseAdjacencyKey(t *testing.T) {
	adj, err := ParseAdjacencyKey(AdjacencyKey(9, 4))
	require.NoError(t, err)
	assert.Equal(t, state.Adjacency{A: 4, B: 9, Metric: state.INF, Up: false}, adj)

	_, err = ParseAdjacencyKey("not-a-key")
	assert.Error(t, err)
}
