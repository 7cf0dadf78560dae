package state

import "time"

const (
	// INF is the distance of an unreachable router
	INF = ^(uint32)(0)
	// INFM is the largest finite distance
	INFM = INF - 1
)

var (
	CycleDelay         = time.Second * 5
	CycleCoalesceDelay = time.Millisecond * 200
	StoreTimeout       = time.Second * 5
	NotFoundLogTTL     = time.Minute * 1
	SlowDispatch       = time.Millisecond * 50
	FeedRetryDelay     = time.Second * 3
	CatalogReloadDelay = time.Second * 5

	// default table and bucket names
	NodeStateTable     = "NodeState"
	LinkStateTable     = "LinkState"
	NameMappingBucket  = "NameIdMapping"
	AvailableLinkTable = "AvailableLink"
	AdjacencyBucket    = "Adjacency"

	DefaultConfigPath = "/etc/spfsync/spfsync.yaml"
	DefaultDebugAddr  = "127.0.0.1:9474"
)
