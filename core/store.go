package core

import (
	"context"
	"time"

	"github.com/encodeous/spfsync/perf"
	"github.com/encodeous/spfsync/state"
)

// Store is the external record store. Every call is a single synchronous write, a returned error
// means the row was not durably written or removed.
type Store interface {
	PublishNode(ctx context.Context, row state.NodeRow) error
	PublishLink(ctx context.Context, row state.LinkRow) error
	RetractNode(ctx context.Context, row state.NodeRow) error
	RetractLink(ctx context.Context, row state.LinkRow) error
	Close() error
}

// InstrumentedStore records every store call in the perf counters
type InstrumentedStore struct {
	Store
}

func Instrument(store Store) *InstrumentedStore {
	return &InstrumentedStore{Store: store}
}

func observe(op string, start time.Time, err error) error {
	perf.StoreLatency.Add(float64(time.Since(start).Microseconds()))
	result := "ok"
	if err != nil {
		result = "error"
	}
	perf.StoreOperations.WithLabelValues(op, result).Inc()
	return err
}

func (i *InstrumentedStore) PublishNode(ctx context.Context, row state.NodeRow) error {
	start := time.Now()
	return observe("publish_node", start, i.Store.PublishNode(ctx, row))
}

func (i *InstrumentedStore) PublishLink(ctx context.Context, row state.LinkRow) error {
	start := time.Now()
	return observe("publish_link", start, i.Store.PublishLink(ctx, row))
}

func (i *InstrumentedStore) RetractNode(ctx context.Context, row state.NodeRow) error {
	start := time.Now()
	return observe("retract_node", start, i.Store.RetractNode(ctx, row))
}

func (i *InstrumentedStore) RetractLink(ctx context.Context, row state.LinkRow) error {
	start := time.Now()
	return observe("retract_link", start, i.Store.RetractLink(ctx, row))
}
