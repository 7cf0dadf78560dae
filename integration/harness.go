//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/encodeous/spfsync/core"
	"github.com/encodeous/spfsync/feed"
	"github.com/encodeous/spfsync/state"
	"github.com/encodeous/spfsync/store/sqlstore"
	"github.com/goccy/go-yaml"
)

const WaitTimeout = 10 * time.Second

// VirtualHarness runs spfsync in process against a catalog file and a sqlite database
type VirtualHarness struct {
	t       *testing.T
	Root    state.RouterId
	Catalog feed.Catalog
	Path    string
	Store   *sqlstore.Store
	State   *state.State

	modTime time.Time
	cancel  context.CancelFunc
	done    chan error
	stopped bool
	err     error
}

func NewHarness(t *testing.T, root state.RouterId) *VirtualHarness {
	dir := t.TempDir()
	st, err := sqlstore.Open(filepath.Join(dir, "spfsync.db"), state.NodeStateTable, state.LinkStateTable)
	if err != nil {
		t.Fatal(err)
	}
	return &VirtualHarness{
		t:       t,
		Root:    root,
		Path:    filepath.Join(dir, "catalog.yaml"),
		Store:   st,
		modTime: time.Unix(1_000_000, 0),
	}
}

func (v *VirtualHarness) NewNode(id state.RouterId) {
	v.Catalog.Nodes = append(v.Catalog.Nodes, state.NodeFact{
		Id:     state.NodeId(id),
		Name:   fmt.Sprintf("r%d", id),
		Addr:   fmt.Sprintf("fc00::%x", uint32(id)),
		Prefix: fmt.Sprintf("fc00:%x::/64", uint32(id)),
	})
}

// AddLink catalogs a link and brings its adjacency up
func (v *VirtualHarness) AddLink(a, b state.RouterId, metric uint32) {
	v.Catalog.Links = append(v.Catalog.Links, state.LinkFact{
		IdA: a, IdB: b,
		NameA: fmt.Sprintf("r%d", a), NameB: fmt.Sprintf("r%d", b),
		AddrA: fmt.Sprintf("fc00::%x", uint32(a)), AddrB: fmt.Sprintf("fc00::%x", uint32(b)),
		Metric: int(metric),
	})
	v.SetAdjacency(a, b, metric, true)
}

func (v *VirtualHarness) SetAdjacency(a, b state.RouterId, metric uint32, up bool) {
	adj := state.Adjacency{A: a, B: b, Metric: metric, Up: up}
	for i, cur := range v.Catalog.Adjacencies {
		if state.MakeSortedPair(cur.A, cur.B) == state.MakeSortedPair(a, b) {
			v.Catalog.Adjacencies[i] = adj
			return
		}
	}
	v.Catalog.Adjacencies = append(v.Catalog.Adjacencies, adj)
}

func (v *VirtualHarness) RemoveAdjacency(a, b state.RouterId) {
	v.Catalog.Adjacencies = slices.DeleteFunc(v.Catalog.Adjacencies, func(cur state.Adjacency) bool {
		return state.MakeSortedPair(cur.A, cur.B) == state.MakeSortedPair(a, b)
	})
}

// Flush writes the catalog with a fresh modification time so the feed reloads it
func (v *VirtualHarness) Flush() {
	data, err := yaml.Marshal(v.Catalog)
	if err != nil {
		v.t.Fatal(err)
	}
	if err := os.WriteFile(v.Path, data, 0o600); err != nil {
		v.t.Fatal(err)
	}
	v.modTime = v.modTime.Add(time.Second)
	if err := os.Chtimes(v.Path, v.modTime, v.modTime); err != nil {
		v.t.Fatal(err)
	}
}

func (v *VirtualHarness) Start() {
	v.Flush()
	cfg := state.Cfg{
		Id:         "integration",
		Root:       v.Root,
		CycleDelay: 50 * time.Millisecond,
		DebugAddr:  "-",
		Store:      state.StoreCfg{Type: state.StoreSqlite},
		Feed:       state.FeedCfg{Type: state.FeedFile, Path: v.Path},
	}
	state.ExpandConfig(&cfg)
	aux := map[string]any{core.AuxStore: v.Store}

	oldReload := state.CatalogReloadDelay
	state.CatalogReloadDelay = 20 * time.Millisecond
	v.t.Cleanup(func() {
		if err := v.Stop(); err != nil {
			v.t.Error(err)
		}
		state.CatalogReloadDelay = oldReload
	})

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.done = make(chan error, 1)
	go func() {
		v.done <- core.StartContext(ctx, cfg, slog.LevelDebug, aux, nil)
	}()
}

// Stop cancels spfsync and waits for it to exit. The store is closed by spfsync on the way out.
func (v *VirtualHarness) Stop() error {
	if v.stopped {
		return v.err
	}
	v.stopped = true
	v.cancel()
	select {
	case v.err = <-v.done:
	case <-time.After(WaitTimeout):
		v.err = fmt.Errorf("spfsync did not stop within %s", WaitTimeout)
	}
	return v.err
}

func (v *VirtualHarness) NodeNames() []string {
	rows, err := v.Store.Nodes(context.Background())
	if err != nil {
		v.t.Fatal(err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	slices.Sort(names)
	return names
}

func (v *VirtualHarness) LinkNames() []string {
	rows, err := v.Store.Links(context.Background())
	if err != nil {
		v.t.Fatal(err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name1+"-"+r.Name2)
	}
	slices.Sort(names)
	return names
}

// WaitRows waits for the NodeState and LinkState tables to hold exactly the given rows
func (v *VirtualHarness) WaitRows(nodes, links []string) {
	v.t.Helper()
	slices.Sort(nodes)
	slices.Sort(links)
	deadline := time.Now().Add(WaitTimeout)
	for {
		gotNodes, gotLinks := v.NodeNames(), v.LinkNames()
		if slices.Equal(gotNodes, nodes) && slices.Equal(gotLinks, links) {
			return
		}
		if time.Now().After(deadline) {
			v.t.Fatalf("expected nodes %v links %v, got nodes %v links %v", nodes, links, gotNodes, gotLinks)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
