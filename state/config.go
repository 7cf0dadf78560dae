package state

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

type StoreType string

const (
	StoreSqlite StoreType = "sqlite"
	StoreNats   StoreType = "nats"
	StoreMemory StoreType = "memory"
)

type FeedType string

const (
	FeedNats FeedType = "nats"
	FeedFile FeedType = "file"
)

type StoreCfg struct {
	Type       StoreType     `yaml:"type"`
	Path       string        `yaml:"path,omitempty"`        // sqlite database file
	Url        string        `yaml:"url,omitempty"`         // nats server url
	NodeBucket string        `yaml:"node_bucket,omitempty"` // NodeState table or bucket
	LinkBucket string        `yaml:"link_bucket,omitempty"` // LinkState table or bucket
	Timeout    time.Duration `yaml:"timeout,omitempty"`     // per write timeout
}

type FeedCfg struct {
	Type            FeedType `yaml:"type"`
	Url             string   `yaml:"url,omitempty"`  // nats server url
	Path            string   `yaml:"path,omitempty"` // yaml catalog file
	NameBucket      string   `yaml:"name_bucket,omitempty"`
	LinkBucket      string   `yaml:"link_bucket,omitempty"`
	AdjacencyBucket string   `yaml:"adjacency_bucket,omitempty"`
}

type CatalogCfg struct {
	MaxNodes int `yaml:"max_nodes,omitempty"` // 0 is unlimited
	MaxLinks int `yaml:"max_links,omitempty"` // 0 is unlimited
}

// Cfg is the daemon configuration
type Cfg struct {
	Id         string        `yaml:"id"`   // instance name, used as the log prefix
	Root       RouterId      `yaml:"root"` // router the shortest path tree is computed from
	CycleDelay time.Duration `yaml:"cycle_delay,omitempty"`
	LogPath    string        `yaml:"log_path,omitempty"`   // if not empty, logs are also written to this file
	DebugAddr  string        `yaml:"debug_addr,omitempty"` // metrics and inspect endpoint, "-" disables it
	Catalog    CatalogCfg    `yaml:"catalog,omitempty"`
	Store      StoreCfg      `yaml:"store"`
	Feed       FeedCfg       `yaml:"feed"`
}

func ReadConfig(path string) (*Cfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Cfg{}
	err = yaml.Unmarshal(file, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ExpandConfig fills in defaults for omitted fields
func ExpandConfig(cfg *Cfg) {
	if cfg.CycleDelay == 0 {
		cfg.CycleDelay = CycleDelay
	}
	if cfg.DebugAddr == "" {
		cfg.DebugAddr = DefaultDebugAddr
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = StoreTimeout
	}
	if cfg.Store.NodeBucket == "" {
		cfg.Store.NodeBucket = NodeStateTable
	}
	if cfg.Store.LinkBucket == "" {
		cfg.Store.LinkBucket = LinkStateTable
	}
	if cfg.Feed.NameBucket == "" {
		cfg.Feed.NameBucket = NameMappingBucket
	}
	if cfg.Feed.LinkBucket == "" {
		cfg.Feed.LinkBucket = AvailableLinkTable
	}
	if cfg.Feed.AdjacencyBucket == "" {
		cfg.Feed.AdjacencyBucket = AdjacencyBucket
	}
	if cfg.Feed.Type == FeedNats && cfg.Feed.Url == "" {
		cfg.Feed.Url = cfg.Store.Url
	}
}
