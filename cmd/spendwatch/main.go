// Command spendwatch replays a batch log to build the friendship network,
// then processes a stream log, flagging purchases that are anomalously large
// for the customer's social network.
package main

import (
	"context"
	"database/sql"
	"flag"
	"io"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/schollz/progressbar/v3"

	"github.com/mbd888/spendwatch/internal/config"
	"github.com/mbd888/spendwatch/internal/logging"
	"github.com/mbd888/spendwatch/internal/pipeline"
	"github.com/mbd888/spendwatch/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Flags override environment
	batchFile := flag.String("batch-file", cfg.BatchFile, "path to the batch (initialization) log")
	streamFile := flag.String("stream-file", cfg.StreamFile, "path to the stream log")
	flagFile := flag.String("flag-file", cfg.FlagFile, "path for the flagged purchases output")
	invalidFile := flag.String("invalid-file", cfg.InvalidFile, "path for the invalid records output")
	stdThreshold := flag.Float64("std-threshold", cfg.StdThreshold, "standard deviations above the mean to flag")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFmt)
	slog.SetDefault(logger)

	if *batchFile == "" || *streamFile == "" || *flagFile == "" || *invalidFile == "" {
		logger.Error("usage: spendwatch --batch-file F --stream-file F --flag-file F --invalid-file F [--std-threshold N]")
		os.Exit(1)
	}
	if *stdThreshold <= 0 {
		logger.Error("std-threshold must be positive", "value", *stdThreshold)
		os.Exit(1)
	}

	if err := run(cfg, *batchFile, *streamFile, *flagFile, *invalidFile, *stdThreshold, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, batchFile, streamFile, flagFile, invalidFile string, stdThreshold float64, logger *slog.Logger) error {
	flagSink, err := report.NewFileFlagWriter(flagFile)
	if err != nil {
		return err
	}
	defer flagSink.Close()

	invalidSink, err := report.NewFileInvalidWriter(invalidFile)
	if err != nil {
		return err
	}
	defer invalidSink.Close()

	var flags report.FlagWriter = flagSink
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return err
		}
		logger.Info("postgres flag sink enabled")
		flags = report.NewMultiWriter(flagSink, report.NewPostgresFlagWriter(db))
	}

	pipe := pipeline.New(flags, invalidSink,
		pipeline.WithLogger(logger),
		pipeline.WithStdThreshold(stdThreshold),
	)

	ctx := context.Background()

	if err := runBatch(ctx, pipe, batchFile); err != nil {
		return err
	}

	stream, err := os.Open(streamFile)
	if err != nil {
		return err
	}
	defer stream.Close()
	if err := pipe.RunStream(ctx, stream); err != nil {
		return err
	}

	stats := pipe.Stats()
	logger.Info("run complete",
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"customers", stats.Customers,
		"purchases", stats.Purchases,
		"flagged", stats.Flagged,
	)
	return nil
}

// runBatch replays the batch log behind a byte progress bar.
func runBatch(ctx context.Context, pipe *pipeline.Pipeline, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	bar := progressbar.DefaultBytes(info.Size(), "batch")
	defer bar.Close()

	return pipe.RunBatch(ctx, io.TeeReader(f, bar))
}
