// Package feed delivers catalog facts and adjacency changes to the dispatch goroutine.
package feed

import (
	"fmt"
	"os"

	"github.com/encodeous/spfsync/perf"
	"github.com/encodeous/spfsync/state"
	"github.com/goccy/go-yaml"
)

// Sink consumes facts. Its methods are only called on the dispatch goroutine.
type Sink interface {
	HandleNodeFact(s *state.State, fact state.NodeFact) error
	HandleLinkFact(s *state.State, fact state.LinkFact) error
	HandleAdjacency(s *state.State, adj state.Adjacency) error
}

func DeliverNode(env *state.Env, sink Sink, fact state.NodeFact) {
	perf.FactsPerSecond.Add(1)
	env.Dispatch(func(s *state.State) error {
		return sink.HandleNodeFact(s, fact)
	})
}

func DeliverLink(env *state.Env, sink Sink, fact state.LinkFact) {
	perf.FactsPerSecond.Add(1)
	env.Dispatch(func(s *state.State) error {
		return sink.HandleLinkFact(s, fact)
	})
}

func DeliverAdjacency(env *state.Env, sink Sink, adj state.Adjacency) {
	perf.FactsPerSecond.Add(1)
	env.Dispatch(func(s *state.State) error {
		return sink.HandleAdjacency(s, adj)
	})
}

// Catalog is a static topology description
type Catalog struct {
	Nodes       []state.NodeFact  `yaml:"nodes,omitempty"`
	Links       []state.LinkFact  `yaml:"links,omitempty"`
	Adjacencies []state.Adjacency `yaml:"adjacencies,omitempty"`
}

func ParseCatalog(data []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	for i, l := range c.Links {
		if _, err := state.MakeLinkKey(l.IdA, l.IdB); err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
	}
	for i, a := range c.Adjacencies {
		if _, err := state.MakeLinkKey(a.A, a.B); err != nil {
			return nil, fmt.Errorf("adjacencies[%d]: %w", i, err)
		}
	}
	return c, nil
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return c, nil
}
