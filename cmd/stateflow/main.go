package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/stateflow-labs/stateflow/config"
	"github.com/stateflow-labs/stateflow/decl"
	"github.com/stateflow-labs/stateflow/expr"
	"github.com/stateflow-labs/stateflow/observability"
)

func main() {
	var (
		declFile   = flag.String("decl", "", "Path to workflow declaration YAML file (required)")
		configFile = flag.String("config", "", "Path to runtime config JSON file")
		eventJSON  = flag.String("event", "{}", "Input event as JSON")
		cacheDir   = flag.String("cache-dir", "", "Compiled decision cache directory (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	if *declFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: stateflow -decl <file> [-event <json>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		log.Fatalf("Failed to resolve observer %q: %v", cfg.Observer, err)
	}

	var event any
	if err := json.Unmarshal([]byte(*eventJSON), &event); err != nil {
		log.Fatalf("Failed to parse event JSON: %v", err)
	}

	file, err := decl.Load(*declFile)
	if err != nil {
		log.Fatalf("Failed to load declaration: %v", err)
	}

	builder := decl.NewBuilder(file,
		decl.WithCache(expr.NewCache(cfg.CacheDir)),
		decl.WithObserver(observer),
		decl.WithDefaultStateTimeout(time.Duration(cfg.DefaultStateTimeout)*time.Second),
	)
	m, err := builder.Build()
	if err != nil {
		log.Fatalf("Failed to build machine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := m.Run(ctx, event)
	if err != nil {
		log.Fatalf("Machine run failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
