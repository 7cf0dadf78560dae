package state

import (
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")
var bucketPattern, _ = regexp.Compile("^[a-zA-Z0-9_-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

// BucketValidator checks names used both as sqlite table names and jetstream bucket names
func BucketValidator(s string) error {
	if !bucketPattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid table/bucket name, must match pattern %s", s, bucketPattern.String())
	}
	return nil
}

func AddrValidator(s string) error {
	if s == "-" {
		return nil
	}
	_, _, err := net.SplitHostPort(s)
	return err
}

func StoreConfigValidator(cfg *StoreCfg) error {
	switch cfg.Type {
	case StoreSqlite:
		if cfg.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
		if cfg.Path != ":memory:" {
			if err := PathValidator(cfg.Path); err != nil {
				return fmt.Errorf("store.path: %w", err)
			}
		}
	case StoreNats:
		if cfg.Url == "" {
			return fmt.Errorf("store.url is required for the nats store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err := BucketValidator(cfg.NodeBucket); err != nil {
		return err
	}
	if err := BucketValidator(cfg.LinkBucket); err != nil {
		return err
	}
	if cfg.NodeBucket == cfg.LinkBucket {
		return fmt.Errorf("store.node_bucket and store.link_bucket must differ")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}
	return nil
}

func FeedConfigValidator(cfg *FeedCfg) error {
	switch cfg.Type {
	case FeedNats:
		if cfg.Url == "" {
			return fmt.Errorf("feed.url is required for the nats feed")
		}
		for _, b := range []string{cfg.NameBucket, cfg.LinkBucket, cfg.AdjacencyBucket} {
			if err := BucketValidator(b); err != nil {
				return err
			}
		}
	case FeedFile:
		if cfg.Path == "" {
			return fmt.Errorf("feed.path is required for the file feed")
		}
		if _, err := os.Stat(cfg.Path); err != nil {
			return fmt.Errorf("feed.path: %w", err)
		}
	default:
		return fmt.Errorf("unknown feed type %q", cfg.Type)
	}
	return nil
}

func ConfigValidator(cfg *Cfg) error {
	err := NameValidator(cfg.Id)
	if err != nil {
		return err
	}
	if cfg.Root == 0 {
		return fmt.Errorf("root router id must be set")
	}
	if cfg.CycleDelay <= 0 {
		return fmt.Errorf("cycle_delay must be positive")
	}
	if cfg.Catalog.MaxNodes < 0 || cfg.Catalog.MaxLinks < 0 {
		return fmt.Errorf("catalog limits must not be negative")
	}
	if err := AddrValidator(cfg.DebugAddr); err != nil {
		return fmt.Errorf("debug_addr: %w", err)
	}
	if err := StoreConfigValidator(&cfg.Store); err != nil {
		return err
	}
	return FeedConfigValidator(&cfg.Feed)
}
