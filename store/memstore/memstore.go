// Package memstore is an in-process Store used for dry runs and tests.
package memstore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/encodeous/spfsync/state"
)

var ErrInjected = errors.New("injected store failure")

type Op string

const (
	OpPublishNode Op = "PUBLISH_NODE"
	OpPublishLink Op = "PUBLISH_LINK"
	OpRetractNode Op = "RETRACT_NODE"
	OpRetractLink Op = "RETRACT_LINK"
)

// Call is one store operation as it was received
type Call struct {
	Op   Op
	Name string // node name, or "name1-name2" for links
	Err  error
}

type Store struct {
	mu    sync.Mutex
	nodes map[string]state.NodeRow
	links map[state.Pair[string, string]]state.LinkRow
	calls []Call
	fail  map[Op]int
}

func New() *Store {
	return &Store{
		nodes: make(map[string]state.NodeRow),
		links: make(map[state.Pair[string, string]]state.LinkRow),
		fail:  make(map[Op]int),
	}
}

// FailNext makes the next n calls of op fail with ErrInjected. n < 0 fails until reset with n = 0.
func (s *Store) FailNext(op Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = n
}

func (s *Store) record(ctx context.Context, op Op, name string) error {
	err := ctx.Err()
	if err == nil {
		if n := s.fail[op]; n != 0 {
			if n > 0 {
				s.fail[op] = n - 1
			}
			err = ErrInjected
		}
	}
	s.calls = append(s.calls, Call{Op: op, Name: name, Err: err})
	return err
}

func linkName(row state.LinkRow) string {
	return row.Name1 + "-" + row.Name2
}

func (s *Store) PublishNode(ctx context.Context, row state.NodeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpPublishNode, row.Name); err != nil {
		return err
	}
	s.nodes[row.Name] = row
	return nil
}

func (s *Store) PublishLink(ctx context.Context, row state.LinkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpPublishLink, linkName(row)); err != nil {
		return err
	}
	s.links[state.Pair[string, string]{V1: row.Name1, V2: row.Name2}] = row
	return nil
}

func (s *Store) RetractNode(ctx context.Context, row state.NodeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpRetractNode, row.Name); err != nil {
		return err
	}
	delete(s.nodes, row.Name)
	return nil
}

func (s *Store) RetractLink(ctx context.Context, row state.LinkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, OpRetractLink, linkName(row)); err != nil {
		return err
	}
	delete(s.links, state.Pair[string, string]{V1: row.Name1, V2: row.Name2})
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Calls returns and clears the recorded calls
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.calls
	s.calls = nil
	return out
}

// Nodes returns the stored node names in order
func (s *Store) Nodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.nodes))
}

// Links returns the stored links as "name1-name2" in order
func (s *Store) Links() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.links))
	for _, row := range s.links {
		out = append(out, linkName(row))
	}
	slices.Sort(out)
	return out
}

func (s *Store) Node(name string) (state.NodeRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.nodes[name]
	return row, ok
}
