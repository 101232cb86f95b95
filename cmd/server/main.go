package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partyline/server/internal/app"
)

func main() {
	cfg := app.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", envOr("PARTYLINE_ADDR", cfg.Addr), "HTTP listen address")
	flag.StringVar(&cfg.PublicBaseURL, "public-url", envOr("PARTYLINE_PUBLIC_URL", ""), "public origin used in join links")
	flag.StringVar(&cfg.ResultsPath, "results-db", envOr("PARTYLINE_RESULTS_DB", ""), "SQLite file for match history (empty disables)")
	flag.StringVar(&cfg.LogJSONPath, "log-json", envOr("PARTYLINE_LOG_JSON", ""), "append structured log events to this file")
	flag.DurationVar(&cfg.EmptyRoomGrace, "empty-grace", cfg.EmptyRoomGrace, "how long an empty room survives before being reaped")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	log.Printf("listening on %s", cfg.Addr)
	start := time.Now()
	if err := engine.Run(ctx); err != nil {
		log.Fatalf("server exited after %s: %v", time.Since(start).Truncate(time.Second), err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
