package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on the dispatch goroutine
type State struct {
	*Env
	Modules map[string]Module
	// Order is the order modules were initialised in, cleanup runs in reverse
	Order []string
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	Cfg
	Context   context.Context
	Cancel    context.CancelCauseFunc
	Log       *slog.Logger
	AuxConfig map[string]any
	Started   atomic.Bool
	Stopping  atomic.Bool
}
