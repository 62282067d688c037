// Command mama opens an Engine against the environment's configured
// database, saves a decision, runs a semantic search against it, and exits.
// It is not a CLI wrapper around the full operation surface — just a
// minimal demonstration of the embeddable Engine lifecycle.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama-core/mama"
	"github.com/mama-core/mama/internal/model"
)

var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("MAMA_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return int(mama.ExitCodeFor(err))
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	eng, err := mama.Open(ctx, mama.WithLogger(logger), mama.WithVersion(version))
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer eng.Close(ctx)

	saved, err := eng.Save(ctx, mama.SaveInput{
		Type:      model.EntityTypeDecision,
		Topic:     "demo",
		Content:   "Chose SQLite with WAL mode for local-first persistence.",
		Reasoning: "Single-writer workloads don't need a client/server database.",
	})
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	logger.Info("saved", "id", saved.ID, "has_embedding", saved.HasEmbedding)

	results, err := eng.Search(ctx, mama.SearchInput{QueryText: "why sqlite", K: 5, Threshold: 0.0})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for _, r := range results {
		logger.Info("search hit", "id", r.Entity.ID, "topic", r.Entity.Topic, "score", r.Score)
	}
	return nil
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
