package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spfsync.yaml")
	err := os.WriteFile(path, []byte(`id: spf-a
root: 167772161
cycle_delay: 2s
catalog:
  max_nodes: 100
store:
  type: nats
  url: nats://127.0.0.1:4222
  timeout: 750ms
feed:
  type: nats
`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	ExpandConfig(cfg)

	assert.Equal(t, "spf-a", cfg.Id)
	assert.Equal(t, RouterId(0x0a000001), cfg.Root)
	assert.Equal(t, 2*time.Second, cfg.CycleDelay)
	assert.Equal(t, 100, cfg.Catalog.MaxNodes)
	assert.Equal(t, 0, cfg.Catalog.MaxLinks)
	assert.Equal(t, StoreNats, cfg.Store.Type)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
	// the feed inherits the store url
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Feed.Url)
	assert.Equal(t, "NameIdMapping", cfg.Feed.NameBucket)
	assert.Equal(t, "AvailableLink", cfg.Feed.LinkBucket)
	assert.Equal(t, "Adjacency", cfg.Feed.AdjacencyBucket)
	assert.NoError(t, ConfigValidator(cfg))
}

func TestReadConfig_Missing(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spfsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: [unterminated\n"), 0600))
	_, err := ReadConfig(path)
	assert.Error(t, err)
}
