//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/encodeous/spfsync/core"
	"github.com/encodeous/spfsync/feed/kvfeed"
	"github.com/encodeous/spfsync/state"
	"github.com/encodeous/spfsync/store/kvstore"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	NatsImage   = "nats:2.11.7-alpine"
	WaitTimeout = 30 * time.Second
)

// Harness runs a JetStream enabled NATS server in a container and plays the part of the topology producers
type Harness struct {
	t         *testing.T
	ctx       context.Context
	container testcontainers.Container
	URL       string
	Conn      *nats.Conn
	JS        jetstream.JetStream
}

func NewHarness(t *testing.T) *Harness {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        NatsImage,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222", "--js"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(WaitTimeout),
		),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start NATS container: %v", err)
	}
	h := &Harness{t: t, ctx: ctx, container: c}
	t.Cleanup(h.Cleanup)

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := c.MappedPort(ctx, "4222/tcp")
	if err != nil {
		t.Fatal(err)
	}
	h.URL = fmt.Sprintf("nats://%s:%s", host, port.Port())

	h.Conn, err = nats.Connect(h.URL, nats.Name("e2e-producer"))
	if err != nil {
		t.Fatal(err)
	}
	h.JS, err = jetstream.New(h.Conn)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *Harness) Cleanup() {
	if h.Conn != nil {
		h.Conn.Close()
	}
	if err := h.container.Terminate(context.Background()); err != nil {
		h.t.Logf("failed to terminate container: %v", err)
	}
}

func (h *Harness) bucket(name string) jetstream.KeyValue {
	ctx, cancel := context.WithTimeout(h.ctx, WaitTimeout)
	defer cancel()
	kv, err := kvstore.Bucket(ctx, h.JS, name)
	if err != nil {
		h.t.Fatal(err)
	}
	return kv
}

func (h *Harness) put(bucket, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.t.Fatal(err)
	}
	if _, err := h.bucket(bucket).Put(h.ctx, key, data); err != nil {
		h.t.Fatal(err)
	}
}

func (h *Harness) PutNode(fact state.NodeFact) {
	h.put(state.NameMappingBucket, fmt.Sprint(uint64(fact.Id)), fact)
}

func (h *Harness) PutLink(fact state.LinkFact) {
	h.put(state.AvailableLinkTable, kvfeed.AdjacencyKey(fact.IdA, fact.IdB), fact)
}

func (h *Harness) PutAdjacency(adj state.Adjacency) {
	h.put(state.AdjacencyBucket, kvfeed.AdjacencyKey(adj.A, adj.B), adj)
}

func (h *Harness) DeleteAdjacency(a, b state.RouterId) {
	if err := h.bucket(state.AdjacencyBucket).Delete(h.ctx, kvfeed.AdjacencyKey(a, b)); err != nil {
		h.t.Fatal(err)
	}
}

// Keys lists the live keys of a bucket in order
func (h *Harness) Keys(bucket string) []string {
	keys, err := h.bucket(bucket).Keys(h.ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []string{}
	}
	if err != nil {
		h.t.Fatal(err)
	}
	slices.Sort(keys)
	return keys
}

// WaitKeys waits until the bucket holds exactly keys
func (h *Harness) WaitKeys(bucket string, keys ...string) {
	h.t.Helper()
	slices.Sort(keys)
	deadline := time.Now().Add(WaitTimeout)
	for {
		got := h.Keys(bucket)
		if slices.Equal(got, keys) {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("bucket %s: expected keys %v, got %v", bucket, keys, got)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// StartSync runs spfsync against the container until the test ends
func (h *Harness) StartSync(root state.RouterId) {
	cfg := state.Cfg{
		Id:         "e2e",
		Root:       root,
		CycleDelay: 200 * time.Millisecond,
		DebugAddr:  "-",
		Store:      state.StoreCfg{Type: state.StoreNats, Url: h.URL},
		Feed:       state.FeedCfg{Type: state.FeedNats},
	}
	state.ExpandConfig(&cfg)
	if err := state.ConfigValidator(&cfg); err != nil {
		h.t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- core.StartContext(ctx, cfg, slog.LevelDebug, nil, nil)
	}()
	h.t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				h.t.Errorf("spfsync stopped with error: %v", err)
			}
		case <-time.After(WaitTimeout):
			h.t.Error("spfsync did not stop")
		}
	})
}
