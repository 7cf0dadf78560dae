// Package kvstore keeps NodeState and LinkState rows in NATS JetStream key-value buckets.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/encodeous/spfsync/state"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket binds to an existing bucket or creates it
func Bucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("bind bucket %s: %w", name, err)
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
	if errors.Is(err, jetstream.ErrBucketExists) {
		// created concurrently
		return js.KeyValue(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return kv, nil
}

// Dial connects to a NATS server with reconnects enabled
func Dial(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return nc, nil
}

type Store struct {
	nc    *nats.Conn
	nodes jetstream.KeyValue
	links jetstream.KeyValue
}

// Open connects to url and binds the two row buckets. The connection is owned by the Store.
func Open(ctx context.Context, url, nodeBucket, linkBucket string) (*Store, error) {
	nc, err := Dial(url, "spfsync-store")
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, nc, nodeBucket, linkBucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.nc = nc
	return s, nil
}

// New binds the row buckets on an existing connection, Close leaves the connection open
func New(ctx context.Context, nc *nats.Conn, nodeBucket, linkBucket string) (*Store, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	nodes, err := Bucket(ctx, js, nodeBucket)
	if err != nil {
		return nil, err
	}
	links, err := Bucket(ctx, js, linkBucket)
	if err != nil {
		return nil, err
	}
	return &Store{nodes: nodes, links: links}, nil
}

func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// EscapeKey maps a name onto the key alphabet, every other byte is written as =XX
func EscapeKey(name string) string {
	sb := strings.Builder{}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			sb.WriteByte(ch)
		default:
			sb.WriteString(fmt.Sprintf("=%02X", ch))
		}
	}
	if sb.Len() == 0 {
		return "="
	}
	return sb.String()
}

func NodeKey(row state.NodeRow) string {
	return EscapeKey(row.Name)
}

func LinkKey(row state.LinkRow) string {
	return EscapeKey(row.Name1) + "." + EscapeKey(row.Name2)
}

func put(ctx context.Context, kv jetstream.KeyValue, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("kv put %s/%s: %w", kv.Bucket(), key, err)
	}
	return nil
}

func del(ctx context.Context, kv jetstream.KeyValue, key string) error {
	if err := kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s/%s: %w", kv.Bucket(), key, err)
	}
	return nil
}

func (s *Store) PublishNode(ctx context.Context, row state.NodeRow) error {
	return put(ctx, s.nodes, NodeKey(row), row)
}

func (s *Store) PublishLink(ctx context.Context, row state.LinkRow) error {
	return put(ctx, s.links, LinkKey(row), row)
}

func (s *Store) RetractNode(ctx context.Context, row state.NodeRow) error {
	return del(ctx, s.nodes, NodeKey(row))
}

func (s *Store) RetractLink(ctx context.Context, row state.LinkRow) error {
	return del(ctx, s.links, LinkKey(row))
}
