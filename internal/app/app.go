// Package app assembles the engine: logging router, room registry, gateway,
// websocket endpoint and HTTP surface, run as one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"partyline/server/internal/gateway"
	"partyline/server/internal/httpapi"
	"partyline/server/internal/net/ws"
	"partyline/server/internal/results"
	"partyline/server/internal/room"
	"partyline/server/internal/telemetry"
	"partyline/server/logging"
	"partyline/server/logging/sinks"
)

// Config is the process-level configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// PublicBaseURL is the origin rendered into join links. Empty keeps
	// join links relative.
	PublicBaseURL string
	// ResultsPath is the SQLite file for match history. Empty disables
	// persistence.
	ResultsPath string
	// LogJSONPath appends structured events to a file alongside the
	// console sink when set.
	LogJSONPath string
	// EmptyRoomGrace is how long a room may sit with no sessions before
	// the sweep reaps it.
	EmptyRoomGrace time.Duration
}

// DefaultConfig returns the tuning used when a field is unset.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		EmptyRoomGrace: 60 * time.Second,
	}
}

// App is the assembled engine.
type App struct {
	cfg      Config
	logs     *logging.Router
	counters *telemetry.Counters
	registry *room.Registry
	gateway  *gateway.Gateway
	store    *results.Store
	http     *http.Server
}

// New wires every component. Call Run to serve and Close to tear down.
func New(cfg Config) (*App, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.EmptyRoomGrace <= 0 {
		cfg.EmptyRoomGrace = DefaultConfig().EmptyRoomGrace
	}

	logCfg := logging.DefaultConfig()
	named := []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	}
	if cfg.LogJSONPath != "" {
		f, err := os.OpenFile(cfg.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		named = append(named, logging.NamedSink{Name: "json", Sink: sinks.NewJSON(f, logCfg.JSON.FlushInterval)})
		logCfg.EnabledSinks = append(logCfg.EnabledSinks, "json")
	}
	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, named)
	if err != nil {
		return nil, fmt.Errorf("build log router: %w", err)
	}

	counters := telemetry.NewCounters()

	var store *results.Store
	var sink room.ResultSink = results.NopRecorder{}
	var lister httpapi.MatchLister
	if cfg.ResultsPath != "" {
		store, err = results.Open(cfg.ResultsPath)
		if err != nil {
			router.Close(context.Background())
			return nil, err
		}
		sink = store
		lister = store
	}

	registry := room.NewRegistry(room.RegistryConfig{EmptyGrace: cfg.EmptyRoomGrace}, room.Deps{
		Publisher: router,
		Metrics:   counters,
		Results:   sink,
	})
	gw := gateway.New(registry, router, counters)
	wsHandler := ws.NewHandler(gw, router, counters, func(roomID string) string {
		return httpapi.JoinURL(cfg.PublicBaseURL, roomID)
	})
	api := httpapi.NewServer(registry, gw, wsHandler, counters, router, lister)

	return &App{
		cfg:      cfg,
		logs:     router,
		counters: counters,
		registry: registry,
		gateway:  gw,
		store:    store,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until the context ends, then shuts everything down in order:
// HTTP listener, rooms, persistence, logging.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := a.registry.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.http.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	a.registry.CloseAll("server shutting down")
	if a.store != nil {
		_ = a.store.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.logs.Close(ctx)
}
