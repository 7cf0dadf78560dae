package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/spfsync/perf"
	"github.com/encodeous/spfsync/state"
	"github.com/gaissmai/bart"
	"github.com/jellydator/ttlcache/v3"
)

type NodeRecord struct {
	Id        state.NodeId
	Fact      state.NodeFact
	Active    bool
	Published state.PublishState
	// stored is the row last written to the store, retractions use it
	stored state.NodeRow
}

type LinkRecord struct {
	Key       state.LinkKey
	Fact      state.LinkFact
	Active    bool
	Published state.PublishState
	stored    state.LinkRow
}

type CacheOptions struct {
	MaxNodes int // 0 is unlimited
	MaxLinks int // 0 is unlimited
	// StoreTimeout bounds every store call, 0 leaves it to the store client
	StoreTimeout time.Duration
	// NotFoundLogTTL is how long repeated lookups of the same unknown key are logged at debug level
	NotFoundLogTTL time.Duration
}

func CacheOptionsFromConfig(cfg *state.Cfg) CacheOptions {
	return CacheOptions{
		MaxNodes:       cfg.Catalog.MaxNodes,
		MaxLinks:       cfg.Catalog.MaxLinks,
		StoreTimeout:   cfg.Store.Timeout,
		NotFoundLogTTL: state.NotFoundLogTTL,
	}
}

// Cache tracks which catalog records are live and mirrors them into a Store.
// It is not safe for concurrent use, all calls must happen on the dispatch goroutine.
type Cache struct {
	store Store
	log   *slog.Logger
	opts  CacheOptions

	nodes map[state.NodeId]*NodeRecord
	links map[state.LinkKey]*LinkRecord

	// owners maps node prefixes and addresses to the node that announced them
	owners  bart.Table[state.NodeId]
	claims  map[netip.Prefix][]state.NodeId // every node announcing a prefix, latest last
	missing *ttlcache.Cache[string, struct{}]
}

type SweepStats struct {
	LinksRetracted int
	LinksFailed    int
	NodesRetracted int
	NodesFailed    int
	LinksLive      int
	NodesLive      int
}

func NewCache(store Store, log *slog.Logger, opts CacheOptions) *Cache {
	if opts.NotFoundLogTTL <= 0 {
		opts.NotFoundLogTTL = state.NotFoundLogTTL
	}
	return &Cache{
		store:  store,
		log:    log,
		opts:   opts,
		nodes:  make(map[state.NodeId]*NodeRecord),
		links:  make(map[state.LinkKey]*LinkRecord),
		claims: make(map[netip.Prefix][]state.NodeId),
		missing: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](opts.NotFoundLogTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

func (c *Cache) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.opts.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.StoreTimeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %w", state.ErrStoreWriteFailed, err)
	}
	return nil
}

func (c *Cache) notFound(key string, msg string, args ...any) {
	if c.missing.Get(key) != nil {
		c.log.Debug(msg, args...)
		return
	}
	c.missing.Set(key, struct{}{}, ttlcache.DefaultTTL)
	c.log.Warn(msg, args...)
}

func (c *Cache) publishNode(ctx context.Context, rec *NodeRecord) error {
	row := rec.Fact.Row()
	err := c.write(ctx, func(ctx context.Context) error {
		return c.store.PublishNode(ctx, row)
	})
	if err != nil {
		c.log.Error(fmt.Sprintf("Cannot push %s %s", state.NodeStateTable, row), "node", rec.Id, "err", err)
		return err
	}
	perf.PublishesPerSecond.Add(1)
	rec.stored = row
	rec.Published = state.Published
	c.log.Debug("published node", "node", rec.Id, "name", row.Name)
	return nil
}

func (c *Cache) retractNode(ctx context.Context, rec *NodeRecord) error {
	row := rec.stored
	err := c.write(ctx, func(ctx context.Context) error {
		return c.store.RetractNode(ctx, row)
	})
	if err != nil {
		c.log.Error(fmt.Sprintf("Cannot delete %s %s", state.NodeStateTable, row), "node", rec.Id, "err", err)
		return err
	}
	perf.RetractsPerSecond.Add(1)
	rec.Published = state.NotPublished
	rec.stored = state.NodeRow{}
	c.log.Debug("retracted node", "node", rec.Id, "name", row.Name)
	return nil
}

func (c *Cache) publishLink(ctx context.Context, rec *LinkRecord) error {
	row := rec.Fact.Row()
	err := c.write(ctx, func(ctx context.Context) error {
		return c.store.PublishLink(ctx, row)
	})
	if err != nil {
		c.log.Error(fmt.Sprintf("Cannot push %s %s", state.LinkStateTable, row), "link", rec.Key, "err", err)
		return err
	}
	perf.PublishesPerSecond.Add(1)
	rec.stored = row
	rec.Published = state.Published
	c.log.Debug("published link", "link", rec.Key)
	return nil
}

func (c *Cache) retractLink(ctx context.Context, rec *LinkRecord) error {
	row := rec.stored
	err := c.write(ctx, func(ctx context.Context) error {
		return c.store.RetractLink(ctx, row)
	})
	if err != nil {
		c.log.Error(fmt.Sprintf("Cannot delete %s %s", state.LinkStateTable, row), "link", rec.Key, "err", err)
		return err
	}
	perf.RetractsPerSecond.Add(1)
	rec.Published = state.NotPublished
	rec.stored = state.LinkRow{}
	c.log.Debug("retracted link", "link", rec.Key)
	return nil
}

// ActivateNode marks the node live for this cycle and publishes it if it is not in the store yet.
// A node whose identity changed since it was written is published again, the old row is removed
// first when the name it is stored under changed.
func (c *Cache) ActivateNode(ctx context.Context, id state.NodeId) (state.PublishState, error) {
	rec, ok := c.nodes[id]
	if !ok {
		c.notFound("node:"+id.String(), "cannot activate node, not in catalog", "node", id)
		return state.NotPublished, fmt.Errorf("node %s: %w", id, state.ErrNotFound)
	}
	rec.Active = true
	if rec.Published == state.RetractPending {
		// the retraction never went through, the row is still in the store
		rec.Published = state.Published
	}
	if rec.Published == state.Published {
		if rec.Fact.Row() == rec.stored {
			return rec.Published, nil
		}
		if rec.Fact.Name != rec.stored.Name {
			if err := c.retractNode(ctx, rec); err != nil {
				return rec.Published, nil
			}
		}
	}
	// failures are logged and retried on the next activation
	_ = c.publishNode(ctx, rec)
	return rec.Published, nil
}

// ActivateLink marks the catalog link between a and b live for this cycle and publishes it if
// it is not in the store yet, or republishes it when its catalog entry changed. Links are never
// created here.
func (c *Cache) ActivateLink(ctx context.Context, a, b state.RouterId) (state.PublishState, error) {
	key, err := state.MakeLinkKey(a, b)
	if err != nil {
		return state.NotPublished, err
	}
	rec, ok := c.links[key]
	if !ok {
		c.notFound("link:"+key.String(), "cannot activate link, not in catalog", "link", key)
		return state.NotPublished, fmt.Errorf("link %s: %w", key, state.ErrNotFound)
	}
	rec.Active = true
	if rec.Published == state.RetractPending {
		rec.Published = state.Published
	}
	if rec.Published == state.Published {
		row := rec.Fact.Row()
		if row == rec.stored {
			return rec.Published, nil
		}
		// links are stored under their endpoint names
		if row.Name1 != rec.stored.Name1 || row.Name2 != rec.stored.Name2 {
			if err := c.retractLink(ctx, rec); err != nil {
				return rec.Published, nil
			}
		}
	}
	_ = c.publishLink(ctx, rec)
	return rec.Published, nil
}

// Sweep ends a cycle. Every record that was not activated since the last sweep and is still in the
// store is retracted, links strictly before nodes. Failed retractions are retried by the next sweep.
// All activation marks are cleared.
func (c *Cache) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats

	for _, key := range slices.Sorted(maps.Keys(c.links)) {
		rec := c.links[key]
		if rec.Active {
			rec.Active = false
			stats.LinksLive++
			continue
		}
		if rec.Published == state.NotPublished {
			continue
		}
		if err := c.retractLink(ctx, rec); err != nil {
			rec.Published = state.RetractPending
			stats.LinksFailed++
			continue
		}
		stats.LinksRetracted++
	}

	for _, id := range slices.Sorted(maps.Keys(c.nodes)) {
		rec := c.nodes[id]
		if rec.Active {
			rec.Active = false
			stats.NodesLive++
			continue
		}
		if rec.Published == state.NotPublished {
			continue
		}
		if err := c.retractNode(ctx, rec); err != nil {
			rec.Published = state.RetractPending
			stats.NodesFailed++
			continue
		}
		stats.NodesRetracted++
	}

	c.missing.DeleteExpired()
	c.updateGauges()
	return stats
}

func (c *Cache) updateGauges() {
	nodes, links := 0, 0
	for _, rec := range c.nodes {
		if rec.Published != state.NotPublished {
			nodes++
		}
	}
	for _, rec := range c.links {
		if rec.Published != state.NotPublished {
			links++
		}
	}
	perf.PublishedRecords.WithLabelValues("node").Set(float64(nodes))
	perf.PublishedRecords.WithLabelValues("link").Set(float64(links))
	perf.CatalogRecords.WithLabelValues("node").Set(float64(len(c.nodes)))
	perf.CatalogRecords.WithLabelValues("link").Set(float64(len(c.links)))
}

func (c *Cache) Node(id state.NodeId) (NodeRecord, bool) {
	rec, ok := c.nodes[id]
	if !ok {
		return NodeRecord{}, false
	}
	return *rec, true
}

func (c *Cache) Link(a, b state.RouterId) (LinkRecord, bool) {
	key, err := state.MakeLinkKey(a, b)
	if err != nil {
		return LinkRecord{}, false
	}
	rec, ok := c.links[key]
	if !ok {
		return LinkRecord{}, false
	}
	return *rec, true
}

// Nodes returns a copy of every node record ordered by id
func (c *Cache) Nodes() []NodeRecord {
	out := make([]NodeRecord, 0, len(c.nodes))
	for _, id := range slices.Sorted(maps.Keys(c.nodes)) {
		out = append(out, *c.nodes[id])
	}
	return out
}

// Links returns a copy of every link record ordered by key
func (c *Cache) Links() []LinkRecord {
	out := make([]LinkRecord, 0, len(c.links))
	for _, key := range slices.Sorted(maps.Keys(c.links)) {
		out = append(out, *c.links[key])
	}
	return out
}

// LookupAddr returns the node owning the longest prefix that contains addr
func (c *Cache) LookupAddr(addr netip.Addr) (NodeRecord, bool) {
	id, ok := c.owners.Lookup(addr)
	if !ok {
		return NodeRecord{}, false
	}
	return c.Node(id)
}
