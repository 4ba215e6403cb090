package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/batch"
	"github.com/raaihank/consolemask/internal/config"
	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/masking"
	"github.com/raaihank/consolemask/internal/settings"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputDir   = flag.String("input", "", "Directory of saved HTML pages")
		outputDir  = flag.String("output", "", "Directory for masked pages and report.parquet")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		progress   = flag.Int("progress", 100, "Log progress every N files (0 disables)")
		quiet      = flag.Bool("quiet", false, "Only print the final summary")
	)
	flag.Parse()

	if *inputDir == "" || *outputDir == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input ./captures --output ./masked\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input ./captures --output ./masked --workers 8 --config configs/config.yaml\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewNop()
	if !*quiet {
		log, err = logger.New(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling batch...")
		cancel()
	}()

	store, err := settings.Open(ctx, cfg.Store, log.WithComponent("settings"))
	if err != nil {
		log.Fatal("Failed to open settings store", zap.Error(err))
	}
	defer store.Close()

	service := masking.NewService(store, cfg.Masking.MaxFrameDepth, cfg.Masking.SettingsTimeout, log.WithComponent("masking"))
	pipeline := batch.NewPipeline(service, cfg.Masking.MaxFrameDepth, &batch.Config{
		WorkerCount:    *workers,
		ProgressReport: *progress,
	}, log)

	result, err := pipeline.Run(ctx, *inputDir, *outputDir)
	if err != nil {
		log.Error("Batch masking failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Batch masking failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)

	if result.Failed > 0 {
		os.Exit(2)
	}
}
