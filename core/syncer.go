package core

import (
	"errors"
	"maps"
	"time"

	"github.com/encodeous/spfsync/perf"
	"github.com/encodeous/spfsync/state"
)

// Syncer owns the liveness cache and the adjacency database. Every cycle it recomputes the shortest
// path tree, activates what is reachable and sweeps the rest.
type Syncer struct {
	Store Store
	Cache *Cache

	adjacency map[state.LinkKey]state.Adjacency
	pending   bool

	LastResult SpfResult
	LastStats  SweepStats
	LastCycle  time.Time
	Cycles     uint64
}

func (y *Syncer) Init(s *state.State) error {
	s.Log.Debug("init syncer")
	if y.Store == nil {
		return errors.New("syncer has no store")
	}
	y.Cache = NewCache(Instrument(y.Store), s.Log, CacheOptionsFromConfig(&s.Cfg))
	y.adjacency = make(map[state.LinkKey]state.Adjacency)

	s.RepeatTask(func(s *state.State) error {
		y.RunCycle(s)
		return nil
	}, s.CycleDelay)
	return nil
}

func (y *Syncer) Cleanup(s *state.State) error {
	return y.Store.Close()
}

// RunCycle activates every reachable node, then every live link, then sweeps
func (y *Syncer) RunCycle(s *state.State) {
	start := time.Now()
	ctx := s.Context
	if ctx.Err() != nil {
		// the store calls would all fail and retract nothing useful
		return
	}
	res := ComputeSPF(s.Root, y.adjacency)

	missingNodes, missingLinks := 0, 0
	for _, id := range res.Reachable() {
		if _, err := y.Cache.ActivateNode(ctx, state.NodeId(id)); err != nil {
			missingNodes++
		}
	}
	for _, key := range res.Links {
		e := key.Endpoints()
		if _, err := y.Cache.ActivateLink(ctx, e.V1, e.V2); err != nil {
			missingLinks++
		}
	}
	stats := y.Cache.Sweep(ctx)

	y.LastResult = res
	y.LastStats = stats
	y.LastCycle = time.Now()
	y.Cycles++
	perf.Cycles.Inc()
	elapsed := time.Since(start)
	perf.CycleLatency.Add(float64(elapsed.Microseconds()))

	s.Log.Debug("cycle complete",
		"reachable", len(res.Distance), "links", len(res.Links),
		"uncataloged_nodes", missingNodes, "uncataloged_links", missingLinks,
		"retracted", stats.NodesRetracted+stats.LinksRetracted,
		"retract_failures", stats.NodesFailed+stats.LinksFailed,
		"elapsed", elapsed)
}

// RequestCycle runs a cycle shortly, requests made while one is pending are merged
func (y *Syncer) RequestCycle(s *state.State) {
	if y.pending {
		return
	}
	y.pending = true
	s.ScheduleTask(func(s *state.State) error {
		y.pending = false
		y.RunCycle(s)
		return nil
	}, state.CycleCoalesceDelay)
}

func (y *Syncer) HandleNodeFact(s *state.State, fact state.NodeFact) error {
	old, known := y.Cache.Node(fact.Id)
	if err := y.Cache.UpsertNode(fact); err != nil {
		s.Log.Error("dropping node fact", "node", fact.Id, "name", fact.Name, "err", err)
		return nil
	}
	if known && old.Fact == fact {
		return nil
	}
	s.Log.Debug("node fact", "node", fact.Id, "name", fact.Name, "addr", fact.Addr)
	y.RequestCycle(s)
	return nil
}

func (y *Syncer) HandleLinkFact(s *state.State, fact state.LinkFact) error {
	old, known := y.Cache.Link(fact.IdA, fact.IdB)
	if err := y.Cache.UpsertLink(fact); err != nil {
		s.Log.Error("dropping link fact", "a", fact.IdA, "b", fact.IdB, "err", err)
		return nil
	}
	if known && old.Fact == fact {
		return nil
	}
	s.Log.Debug("link fact", "a", fact.IdA, "b", fact.IdB, "metric", fact.Metric)
	y.RequestCycle(s)
	return nil
}

func (y *Syncer) HandleAdjacency(s *state.State, adj state.Adjacency) error {
	key, err := state.MakeLinkKey(adj.A, adj.B)
	if err != nil {
		s.Log.Warn("dropping adjacency", "a", adj.A, "b", adj.B, "err", err)
		return nil
	}
	if old, ok := y.adjacency[key]; ok && old == adj {
		return nil
	}
	y.adjacency[key] = adj
	s.Log.Debug("adjacency", "link", key, "up", adj.Up, "metric", adj.Metric)
	y.RequestCycle(s)
	return nil
}

// Adjacencies returns a copy of the adjacency database
func (y *Syncer) Adjacencies() map[state.LinkKey]state.Adjacency {
	return maps.Clone(y.adjacency)
}
