// Package filefeed loads the catalog and adjacencies from a YAML file and reloads it when it changes.
package filefeed

import (
	"os"
	"time"

	"github.com/encodeous/spfsync/feed"
	"github.com/encodeous/spfsync/state"
)

type Feed struct {
	Sink feed.Sink
	// ReloadDelay is how often the file is checked for changes, 0 disables reloading
	ReloadDelay time.Duration

	modTime     time.Time
	adjacencies map[state.LinkKey]state.Adjacency
}

func (f *Feed) Init(s *state.State) error {
	f.adjacencies = make(map[state.LinkKey]state.Adjacency)
	if err := f.load(s); err != nil {
		return err
	}
	if f.ReloadDelay > 0 {
		s.RepeatTask(func(s *state.State) error {
			f.reload(s)
			return nil
		}, f.ReloadDelay)
	}
	return nil
}

func (f *Feed) reload(s *state.State) {
	st, err := os.Stat(s.Feed.Path)
	if err != nil {
		s.Log.Warn("cannot stat catalog", "path", s.Feed.Path, "err", err)
		return
	}
	if st.ModTime().Equal(f.modTime) {
		return
	}
	if err := f.load(s); err != nil {
		s.Log.Warn("cannot reload catalog, keeping the previous one", "path", s.Feed.Path, "err", err)
	}
}

// load runs on the dispatch goroutine, so facts go to the sink directly
func (f *Feed) load(s *state.State) error {
	st, err := os.Stat(s.Feed.Path)
	if err != nil {
		return err
	}
	c, err := feed.LoadCatalog(s.Feed.Path)
	if err != nil {
		return err
	}
	f.modTime = st.ModTime()
	s.Log.Info("loaded catalog", "path", s.Feed.Path, "nodes", len(c.Nodes), "links", len(c.Links), "adjacencies", len(c.Adjacencies))

	for _, fact := range c.Nodes {
		if err := f.Sink.HandleNodeFact(s, fact); err != nil {
			return err
		}
	}
	for _, fact := range c.Links {
		if err := f.Sink.HandleLinkFact(s, fact); err != nil {
			return err
		}
	}

	seen := make(map[state.LinkKey]state.Adjacency)
	for _, adj := range c.Adjacencies {
		key, _ := state.MakeLinkKey(adj.A, adj.B)
		seen[key] = adj
		if err := f.Sink.HandleAdjacency(s, adj); err != nil {
			return err
		}
	}
	// adjacencies dropped from the file go down
	for key, adj := range f.adjacencies {
		if _, ok := seen[key]; ok {
			continue
		}
		adj.Up = false
		if err := f.Sink.HandleAdjacency(s, adj); err != nil {
			return err
		}
	}
	f.adjacencies = seen
	return nil
}

func (f *Feed) Cleanup(s *state.State) error {
	return nil
}
