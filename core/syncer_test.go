package core

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/spfsync/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSyncer builds a state whose dispatch channel is drained by the test
func newTestSyncer(t *testing.T, configure ...func(env *state.Env)) (*state.State, *Syncer, *StoreHarness, chan func(*state.State) error) {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(nil) })
	dispatch := make(chan func(*state.State) error, 128)
	s := &state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			DispatchChannel: dispatch,
			Context:         ctx,
			Cancel:          cancel,
			Log:             discardLogger(),
			Cfg: state.Cfg{
				Id:         "test",
				Root:       1,
				CycleDelay: time.Hour,
			},
		},
	}
	for _, fn := range configure {
		fn(s.Env)
	}
	h := NewStoreHarness()
	y := &Syncer{Store: h}
	require.NoError(t, y.Init(s))
	s.Modules["*core.Syncer"] = y
	return s, y, h, dispatch
}

func TestSyncerCycle(t *testing.T) {
	s, y, h, _ := newTestSyncer(t)

	require.NoError(t, y.HandleNodeFact(s, nodeFact(1, "r1")))
	require.NoError(t, y.HandleNodeFact(s, nodeFact(2, "r2")))
	require.NoError(t, y.HandleNodeFact(s, nodeFact(3, "r3")))
	require.NoError(t, y.HandleLinkFact(s, linkFact(1, 2, "r1", "r2")))
	require.NoError(t, y.HandleLinkFact(s, linkFact(2, 3, "r2", "r3")))
	require.NoError(t, y.HandleAdjacency(s, state.Adjacency{A: 1, B: 2, Metric: 1, Up: true}))
	require.NoError(t, y.HandleAdjacency(s, state.Adjacency{A: 2, B: 3, Metric: 1, Up: true}))

	y.RunCycle(s)
	h.GetActions().AssertSequence(t,
		"PUBLISH_NODE r1",
		"PUBLISH_NODE r2",
		"PUBLISH_NODE r3",
		"PUBLISH_LINK r1 r2",
		"PUBLISH_LINK r2 r3",
	)
	assert.Equal(t, uint64(1), y.Cycles)

	// steady state writes nothing
	y.RunCycle(s)
	assert.Empty(t, h.GetActions())

	// r3 is cut off
	require.NoError(t, y.HandleAdjacency(s, state.Adjacency{A: 3, B: 2, Metric: 1, Up: false}))
	y.RunCycle(s)
	h.GetActions().AssertSequence(t,
		"RETRACT_LINK r2 r3",
		"RETRACT_NODE r3",
	)
	assert.Equal(t, SweepStats{LinksRetracted: 1, NodesRetracted: 1, LinksLive: 1, NodesLive: 2}, y.LastStats)
}

func TestSyncerUncatalogedFacts(t *testing.T) {
	s, y, h, _ := newTestSyncer(t)

	// the adjacency database knows about router 2, the catalog does not
	require.NoError(t, y.HandleNodeFact(s, nodeFact(1, "r1")))
	require.NoError(t, y.HandleAdjacency(s, state.Adjacency{A: 1, B: 2, Metric: 1, Up: true}))
	y.RunCycle(s)
	h.GetActions().AssertSequence(t, "PUBLISH_NODE r1")

	// once cataloged, the next cycle publishes it
	require.NoError(t, y.HandleNodeFact(s, nodeFact(2, "r2")))
	require.NoError(t, y.HandleLinkFact(s, linkFact(2, 1, "r2", "r1")))
	y.RunCycle(s)
	h.GetActions().AssertSequence(t,
		"PUBLISH_NODE r2",
		"PUBLISH_LINK r2 r1",
	)
}

func TestSyncerDropsBadFacts(t *testing.T) {
	s, y, h, _ := newTestSyncer(t)
	assert.NoError(t, y.HandleLinkFact(s, linkFact(4, 4, "r4", "r4")))
	assert.NoError(t, y.HandleAdjacency(s, state.Adjacency{A: 4, B: 4, Up: true}))
	assert.Empty(t, y.Cache.Links())
	assert.Empty(t, y.Adjacencies())
	assert.Empty(t, h.GetActions())
	assert.NoError(t, s.Context.Err())
}

func TestSyncerDropsFactsPastCatalogCap(t *testing.T) {
	counter := &levelCounter{Handler: slog.DiscardHandler, counts: make(map[slog.Level]int)}
	s, y, h, _ := newTestSyncer(t, func(env *state.Env) {
		env.Catalog = state.CatalogCfg{MaxNodes: 1, MaxLinks: 1}
		env.Log = slog.New(counter)
	})

	require.NoError(t, y.HandleNodeFact(s, nodeFact(1, "r1")))
	assert.NoError(t, y.HandleNodeFact(s, nodeFact(2, "r2")))
	require.NoError(t, y.HandleLinkFact(s, linkFact(1, 3, "r1", "r3")))
	assert.NoError(t, y.HandleLinkFact(s, linkFact(1, 2, "r1", "r2")))

	assert.Equal(t, 2, counter.counts[slog.LevelError])
	assert.Len(t, y.Cache.Nodes(), 1)
	assert.Len(t, y.Cache.Links(), 1)
	_, ok := y.Cache.Node(2)
	assert.False(t, ok)
	assert.NoError(t, s.Context.Err())

	// the known node is still updated and published
	require.NoError(t, y.HandleNodeFact(s, nodeFact(1, "r1")))
	y.RunCycle(s)
	h.GetActions().AssertSequence(t, "PUBLISH_NODE r1")
	assert.NoError(t, s.Context.Err())
}

func TestRequestCycleCoalesces(t *testing.T) {
	old := state.CycleCoalesceDelay
	state.CycleCoalesceDelay = 10 * time.Millisecond
	defer func() { state.CycleCoalesceDelay = old }()

	s, y, _, dispatch := newTestSyncer(t)
	for range 5 {
		y.RequestCycle(s)
	}

	select {
	case f := <-dispatch:
		require.NoError(t, f(s))
	case <-time.After(time.Second):
		t.Fatal("requested cycle never ran")
	}
	assert.Equal(t, uint64(1), y.Cycles)
	select {
	case <-dispatch:
		t.Fatal("requests were not coalesced")
	case <-time.After(50 * time.Millisecond):
	}

	// a new request after the cycle ran schedules another one
	y.RequestCycle(s)
	select {
	case f := <-dispatch:
		require.NoError(t, f(s))
	case <-time.After(time.Second):
		t.Fatal("requested cycle never ran")
	}
	assert.Equal(t, uint64(2), y.Cycles)
}

func TestSyncerCleanupClosesStore(t *testing.T) {
	s, y, h, _ := newTestSyncer(t)
	require.NoError(t, y.Cleanup(s))
	assert.True(t, h.closed)
}

func TestInspect(t *testing.T) {
	s, y, _, _ := newTestSyncer(t)
	require.NoError(t, y.HandleNodeFact(s, nodeFact(1, "r1")))
	require.NoError(t, y.HandleNodeFact(s, nodeFact(2, "r2")))
	require.NoError(t, y.HandleLinkFact(s, linkFact(1, 2, "r1", "r2")))

	out := Inspect(s)
	assert.Contains(t, out, "Last Cycle: never")
	assert.Contains(t, out, " - 0.0.0.1 r1: not-published, unreachable")

	require.NoError(t, y.HandleAdjacency(s, state.Adjacency{A: 1, B: 2, Metric: 7, Up: true}))
	y.RunCycle(s)
	out = Inspect(s)
	assert.Contains(t, out, "Root: 0.0.0.1")
	assert.Contains(t, out, " - 0.0.0.2 r2: published, m=7")
	assert.Contains(t, out, " - 0.0.0.2 <-> 0.0.0.1 r1 <-> r2: published, metric 10")

	owner, err := LookupOwner(s, "fc00:2::9")
	require.NoError(t, err)
	assert.Equal(t, "fc00:2::9: r2 (0.0.0.2) published\n", owner)
	owner, err = LookupOwner(s, "fc00::1%eth0")
	require.NoError(t, err)
	assert.Equal(t, "fc00::1%eth0: r1 (0.0.0.1) published\n", owner)
	_, err = LookupOwner(s, "bogus")
	assert.Error(t, err)
}
