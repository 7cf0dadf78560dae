package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/encodeous/spfsync/feed/filefeed"
	"github.com/encodeous/spfsync/feed/kvfeed"
	"github.com/encodeous/spfsync/perf"
	"github.com/encodeous/spfsync/state"
	"github.com/encodeous/spfsync/store/kvstore"
	"github.com/encodeous/spfsync/store/memstore"
	"github.com/encodeous/spfsync/store/sqlstore"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// ErrShutdown is the cancellation cause of SIGINT and SIGTERM
var ErrShutdown = errors.New("received shutdown signal")

// AuxStore overrides the configured store when set in the aux config
const AuxStore = "store"

// Bootstrap reads and validates the config, then runs until a shutdown signal
func Bootstrap(configPath, logPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg, err := state.ReadConfig(configPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	state.ExpandConfig(cfg)
	if err := state.ConfigValidator(cfg); err != nil {
		return err
	}
	return Start(*cfg, level, nil, nil)
}

func newLogger(cfg state.Cfg, logLevel slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: cfg.Id,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// OpenStore opens the store selected by the config
func OpenStore(ctx context.Context, cfg state.StoreCfg) (Store, error) {
	switch cfg.Type {
	case state.StoreSqlite:
		return sqlstore.Open(cfg.Path, cfg.NodeBucket, cfg.LinkBucket)
	case state.StoreNats:
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return kvstore.Open(ctx, cfg.Url, cfg.NodeBucket, cfg.LinkBucket)
	case state.StoreMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// Start runs spfsync until it is cancelled. initState, if not nil, receives the state before the main loop starts.
func Start(cfg state.Cfg, logLevel slog.Level, aux map[string]any, initState **state.State) error {
	return StartContext(context.Background(), cfg, logLevel, aux, initState)
}

// StartContext is Start, also stopping when parent is done
func StartContext(parent context.Context, cfg state.Cfg, logLevel slog.Level, aux map[string]any, initState **state.State) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	dispatch := make(chan func(env *state.State) error, 128)

	logger, err := newLogger(cfg, logLevel)
	if err != nil {
		return err
	}

	var store Store
	if st, ok := aux[AuxStore].(Store); ok {
		store = st
	} else {
		store, err = OpenStore(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
		}
	}

	s := state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			Cfg:             cfg,
			Log:             logger,
			AuxConfig:       aux,
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules")
	err = initModules(&s, store)
	if err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("spfsync has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "root", cfg.Root, "store", cfg.Store.Type, "feed", cfg.Feed.Type)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case _ = <-c:
			s.Cancel(ErrShutdown)
		case <-ctx.Done():
			return
		}
	}()

	return MainLoop(&s, dispatch)
}

func initModules(s *state.State, store Store) error {
	syncer := &Syncer{Store: store}
	var modules []state.Module
	modules = append(modules, syncer)
	switch s.Feed.Type {
	case state.FeedNats:
		modules = append(modules, &kvfeed.Feed{Sink: syncer})
	case state.FeedFile:
		modules = append(modules, &filefeed.Feed{Sink: syncer, ReloadDelay: state.CatalogReloadDelay})
	default:
		store.Close()
		return fmt.Errorf("unknown feed type %q", s.Feed.Type)
	}
	modules = append(modules, &Inspector{})

	for _, module := range modules {
		name := reflect.TypeOf(module).String()
		s.Modules[name] = module
		s.Order = append(s.Order, name)
		if err := module.Init(s); err != nil {
			return fmt.Errorf("init %s: %w", name, err)
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatch {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	cause := context.Cause(s.Context)
	if cause == nil {
		cause = errors.New("dispatch channel closed")
	}
	s.Log.Info("stopped main loop", "reason", cause.Error())
	Stop(s)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, ErrShutdown) {
		return nil
	}
	return cause
}

// Stop cancels the runtime and cleans up modules in reverse init order. It is safe to call more than once.
func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	close(s.DispatchChannel)
	s.Log.Info("cleaning up modules")
	for _, name := range slices.Backward(s.Order) {
		err := s.Modules[name].Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", name, "error", err)
		}
	}
	s.Log.Info("stopped")
}
