package core

import (
	"container/heap"
	"maps"
	"slices"

	"github.com/encodeous/spfsync/state"
)

type SpfResult struct {
	Root state.RouterId
	// Distance holds every router reachable from Root
	Distance map[state.RouterId]uint32
	// Links are the up adjacencies with both endpoints reachable, ordered by key
	Links []state.LinkKey
}

// Reachable returns the reachable routers in ascending order
func (r SpfResult) Reachable() []state.RouterId {
	return slices.Sorted(maps.Keys(r.Distance))
}

type spfEntry struct {
	id   state.RouterId
	dist uint32
}

type spfQueue []spfEntry

func (q spfQueue) Len() int { return len(q) }
func (q spfQueue) Less(i, j int) bool {
	if q[i].dist == q[j].dist {
		return q[i].id < q[j].id
	}
	return q[i].dist < q[j].dist
}
func (q spfQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *spfQueue) Push(x any)   { *q = append(*q, x.(spfEntry)) }
func (q *spfQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// ComputeSPF runs Dijkstra from root over the up adjacencies. Adjacencies with an infinite metric are not traversed.
// The root is always reachable.
func ComputeSPF(root state.RouterId, adjacencies map[state.LinkKey]state.Adjacency) SpfResult {
	graph := make(map[state.RouterId][]state.Pair[state.RouterId, uint32])
	for _, adj := range adjacencies {
		if !adj.Up || adj.Metric >= state.INF || adj.A == adj.B {
			continue
		}
		graph[adj.A] = append(graph[adj.A], state.Pair[state.RouterId, uint32]{V1: adj.B, V2: adj.Metric})
		graph[adj.B] = append(graph[adj.B], state.Pair[state.RouterId, uint32]{V1: adj.A, V2: adj.Metric})
	}

	dist := map[state.RouterId]uint32{root: 0}
	done := make(map[state.RouterId]struct{})
	q := &spfQueue{{root, 0}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(spfEntry)
		if _, ok := done[cur.id]; ok {
			continue
		}
		done[cur.id] = struct{}{}
		for _, edge := range graph[cur.id] {
			nd := AddMetric(cur.dist, edge.V2)
			if old, ok := dist[edge.V1]; !ok || nd < old {
				dist[edge.V1] = nd
				heap.Push(q, spfEntry{edge.V1, nd})
			}
		}
	}

	links := make([]state.LinkKey, 0)
	for key, adj := range adjacencies {
		if !adj.Up || adj.Metric >= state.INF {
			continue
		}
		_, okA := dist[adj.A]
		_, okB := dist[adj.B]
		if okA && okB {
			links = append(links, key)
		}
	}
	slices.Sort(links)

	return SpfResult{
		Root:     root,
		Distance: dist,
		Links:    links,
	}
}
