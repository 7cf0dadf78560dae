package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/encodeous/spfsync/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "topology.db"), state.NodeStateTable, state.LinkStateTable)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	nodeA = state.NodeRow{Name: "r1", Addr: "fc00::1", Prefix: "fc00:1::/64", Pbsid: "fc00:1::100"}
	nodeB = state.NodeRow{Name: "r2", Addr: "fc00::2", Pbsid: "fc00:2::100"}
	link  = state.LinkRow{Name1: "r1", Addr1: "fc00::1", Name2: "r2", Addr2: "fc00::2", Metric: 10, Bw: 1000, AvaBw: 640.5, Delay: 0.25}
)

func TestPublishRetractNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishNode(ctx, nodeA))
	require.NoError(t, s.PublishNode(ctx, nodeB))
	rows, err := s.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.NodeRow{nodeA, nodeB}, rows)

	require.NoError(t, s.RetractNode(ctx, nodeA))
	rows, err = s.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.NodeRow{nodeB}, rows)
}

func TestPublishIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishNode(ctx, nodeA))
	changed := nodeA
	changed.Addr = "fc00::99"
	require.NoError(t, s.PublishNode(ctx, changed))

	rows, err := s.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.NodeRow{changed}, rows)
}

func TestPublishRetractLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishLink(ctx, link))
	rows, err := s.Links(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.LinkRow{link}, rows)

	require.NoError(t, s.RetractLink(ctx, link))
	rows, err = s.Links(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRetractMissingRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	assert.NoError(t, s.RetractNode(ctx, nodeA))
	assert.NoError(t, s.RetractLink(ctx, link))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.db")
	s, err := Open(path, "Nodes", "Links")
	require.NoError(t, err)
	require.NoError(t, s.PublishNode(context.Background(), nodeA))
	require.NoError(t, s.Close())

	s, err = Open(path, "Nodes", "Links")
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.Nodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []state.NodeRow{nodeA}, rows)
}

func TestOpenRejectsBadTableName(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "topology.db"), `Node"State`, state.LinkStateTable)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.PublishNode(ctx, nodeA))
}
