// Package main runs one ingest-and-resolve pass over the configured sources
// and prints the run report as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"aura.dev/aura/internal/app/modules"
	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/source"
	"aura.dev/aura/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pipeline", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (default: config.yaml lookup)")
	fs.String("database.driver", "", "store driver: memory, sqlite or postgres")
	fs.String("database.sqlite_path", "", "sqlite database file")
	fs.String("database.url", "", "postgres connection URL")
	fs.Bool("database.auto_migrate", false, "apply the schema before running")
	fs.String("log.level", "", "log level")
	fs.Bool("resolve-all", false, "resolve every stored item, not only the ones touched by this run")
	return fs
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	sources, err := source.FromConfig(cfg.Sources)
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	if len(sources) == 0 {
		return errors.New("no sources configured")
	}

	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init infrastructure: %w", err)
	}
	defer infra.Close()
	pipeline := modules.NewInventoryModule(infra).Pipeline()

	report, err := pipeline.Run(ctx, sources...)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	out := struct {
		usecase.RunReport
		ResolveAll *usecase.ResolveReport `json:"resolve_all,omitempty"`
	}{RunReport: report}

	if all, _ := fs.GetBool("resolve-all"); all {
		full, err := pipeline.ResolveAll(ctx)
		if err != nil {
			return fmt.Errorf("resolve all: %w", err)
		}
		out.ResolveAll = &full
	}

	logger.Info("Pipeline run completed",
		zap.Int("accepted", report.Ingest.Accepted),
		zap.Int("rejected", report.Ingest.Rejected),
		zap.Int("resolved", report.Resolve.Resolved),
		zap.Int("failed", report.Resolve.Failed),
	)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
