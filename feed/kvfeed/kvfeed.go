// Package kvfeed watches the NameIdMapping, AvailableLink and Adjacency buckets and hands every
// fact to the dispatch goroutine.
package kvfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/encodeous/spfsync/feed"
	"github.com/encodeous/spfsync/state"
	"github.com/encodeous/spfsync/store/kvstore"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

type Feed struct {
	Sink feed.Sink
	// Conn is used instead of dialing Cfg.Feed.Url when set
	Conn *nats.Conn

	ownsConn bool
	cancel   context.CancelFunc
	group    *errgroup.Group
}

func (f *Feed) Init(s *state.State) error {
	cfg := s.Feed
	if f.Conn == nil {
		nc, err := kvstore.Dial(cfg.Url, "spfsync-feed")
		if err != nil {
			return err
		}
		f.Conn = nc
		f.ownsConn = true
	}
	js, err := jetstream.New(f.Conn)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithCancel(s.Context)
	f.cancel = cancel
	g := &errgroup.Group{}
	f.group = g
	env := s.Env

	watch := func(bucket string, handle func(jetstream.KeyValueEntry) error) {
		g.Go(func() error {
			return watchBucket(ctx, env, js, bucket, handle)
		})
	}
	watch(cfg.NameBucket, func(entry jetstream.KeyValueEntry) error {
		if entry.Operation() != jetstream.KeyValuePut {
			// the catalog has no deletion path
			return nil
		}
		var fact state.NodeFact
		if err := json.Unmarshal(entry.Value(), &fact); err != nil {
			return err
		}
		feed.DeliverNode(env, f.Sink, fact)
		return nil
	})
	watch(cfg.LinkBucket, func(entry jetstream.KeyValueEntry) error {
		if entry.Operation() != jetstream.KeyValuePut {
			return nil
		}
		var fact state.LinkFact
		if err := json.Unmarshal(entry.Value(), &fact); err != nil {
			return err
		}
		feed.DeliverLink(env, f.Sink, fact)
		return nil
	})
	watch(cfg.AdjacencyBucket, func(entry jetstream.KeyValueEntry) error {
		if entry.Operation() != jetstream.KeyValuePut {
			adj, err := ParseAdjacencyKey(entry.Key())
			if err != nil {
				return err
			}
			// a deleted adjacency is down
			feed.DeliverAdjacency(env, f.Sink, adj)
			return nil
		}
		var adj state.Adjacency
		if err := json.Unmarshal(entry.Value(), &adj); err != nil {
			return err
		}
		feed.DeliverAdjacency(env, f.Sink, adj)
		return nil
	})
	return nil
}

// watchBucket replays the bucket and then follows updates, rebinding after failures until ctx is done.
// Malformed entries are logged and skipped.
func watchBucket(ctx context.Context, env *state.Env, js jetstream.JetStream, bucket string, handle func(jetstream.KeyValueEntry) error) error {
	for ctx.Err() == nil {
		err := watchOnce(ctx, env, js, bucket, handle)
		if err == nil || ctx.Err() != nil {
			break
		}
		env.Log.Warn("kv watch failed, retrying", "bucket", bucket, "err", err, "delay", state.FeedRetryDelay)
		select {
		case <-ctx.Done():
		case <-time.After(state.FeedRetryDelay):
		}
	}
	return nil
}

func watchOnce(ctx context.Context, env *state.Env, js jetstream.JetStream, bucket string, handle func(jetstream.KeyValueEntry) error) error {
	kv, err := kvstore.Bucket(ctx, js, bucket)
	if err != nil {
		return err
	}
	w, err := kv.WatchAll(ctx)
	if err != nil {
		return fmt.Errorf("watch %s: %w", bucket, err)
	}
	defer w.Stop()

	replayed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-w.Updates():
			if !ok {
				return fmt.Errorf("watch %s closed", bucket)
			}
			if entry == nil {
				env.Log.Info("kv feed caught up", "bucket", bucket, "entries", replayed)
				continue
			}
			replayed++
			if err := handle(entry); err != nil {
				env.Log.Warn("dropping malformed kv entry", "bucket", bucket, "key", entry.Key(), "err", err)
			}
		}
	}
}

// AdjacencyKey is the key adjacency producers write under, "<low>.<high>" router ids in decimal
func AdjacencyKey(a, b state.RouterId) string {
	p := state.MakeSortedPair(a, b)
	return fmt.Sprintf("%d.%d", p.V1, p.V2)
}

func ParseAdjacencyKey(key string) (state.Adjacency, error) {
	var a, b uint32
	if _, err := fmt.Sscanf(key, "%d.%d", &a, &b); err != nil {
		return state.Adjacency{}, fmt.Errorf("bad adjacency key %q: %w", key, err)
	}
	return state.Adjacency{A: state.RouterId(a), B: state.RouterId(b), Metric: state.INF, Up: false}, nil
}

func (f *Feed) Cleanup(s *state.State) error {
	if f.cancel != nil {
		f.cancel()
	}
	if f.group != nil {
		_ = f.group.Wait()
	}
	if f.ownsConn && f.Conn != nil {
		f.Conn.Close()
	}
	return nil
}
