// Command talaria wires the engine's components together against a
// database path and exits. A full CLI (subcommands for ingest/reduce/
// backup/restore) is explicitly out of scope per spec.md §1's Non-goals;
// this entrypoint demonstrates production wiring order in the teacher's
// style of a small cmd/ main that builds a logger, opens the store, and
// hands off to the engine.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/talaria-db/sequoia/chunkstore"
	"github.com/talaria-db/sequoia/config"
	"github.com/talaria-db/sequoia/kv"
	"github.com/talaria-db/sequoia/metrics"
	"github.com/talaria-db/sequoia/reduce"
	"github.com/talaria-db/sequoia/seqstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "talaria:", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	home := os.Getenv("TALARIA_HOME")
	if home == "" {
		home = "."
	}
	configPath := home + "/config.toml"

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	if cfg.KV.Path == "" {
		cfg.KV.Path = home + "/databases/chunk_storage"
	}

	engine, err := kv.Open(cfg.KV, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats := metrics.New()

	chunks := chunkstore.New(engine, log)
	_ = seqstore.New(engine, log)
	_ = reduce.New(chunks, log, stats)

	count, err := engine.Count(kv.Sequences)
	if err != nil {
		return err
	}

	log.Info("talaria engine initialized",
		zap.String("home", home),
		zap.String("kv_path", cfg.KV.Path),
		zap.Int("canonical_sequences", count),
	)
	return nil
}
