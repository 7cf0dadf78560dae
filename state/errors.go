package state

import "errors"

var (
	// ErrNotFound is returned when a node id or link is not in the catalog
	ErrNotFound = errors.New("not found in catalog")
	// ErrInvalidArgument is returned for self-loop links
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreWriteFailed wraps any failed publish or retract
	ErrStoreWriteFailed = errors.New("store write failed")
	// ErrCatalogFull is returned when a catalog collection reached its configured capacity
	ErrCatalogFull = errors.New("catalog full")
)
