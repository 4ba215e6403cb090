package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/config"
	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/privacy"
	"github.com/raaihank/consolemask/internal/proxy"
	"github.com/raaihank/consolemask/internal/settings"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = flag.String("health-url", "http://localhost:8080/health", "URL used by -health-check")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("ConsoleMask %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := settings.Open(ctx, cfg.Store, log.WithComponent("settings"))
	if err != nil {
		log.Fatal("Failed to open settings store", zap.Error(err))
	}
	defer store.Close()

	if flag.Arg(0) == "settings" {
		if err := runSettings(ctx, store, flag.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "settings: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log.Info("Starting ConsoleMask",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	server, err := proxy.New(cfg, store, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if file := config.FileUsed(); file != "" {
		config.Watch(func(newConfig *config.Config) {
			if err := server.ApplyConfig(newConfig); err != nil {
				log.Warn("Rejected configuration reload", zap.Error(err))
			}
		}, func(err error) {
			log.Warn("Configuration reload failed", zap.Error(err))
		})
		log.Info("Watching configuration file", zap.String("path", file))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] [settings show | settings set key=bool... | settings custom value...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s -config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s settings set maskArn=false maskSecretKey=true\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s settings custom my-team prod-db.internal\n", os.Args[0])
}

// runSettings edits the stored masking preferences.
func runSettings(ctx context.Context, store *settings.Store, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}

	switch args[0] {
	case "show":
	case "set":
		current, err := store.LoadSettings(ctx)
		if err != nil {
			return err
		}
		for _, kv := range args[1:] {
			if err := applyToggle(&current, kv); err != nil {
				return err
			}
		}
		if err := store.SaveSettings(ctx, current); err != nil {
			return err
		}
	case "custom":
		if err := store.SaveCustomStrings(ctx, args[1:]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown settings command %q", args[0])
	}

	current, err := store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	custom, err := store.LoadCustomStrings(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		settings.KeySettings:      current,
		settings.KeyCustomStrings: custom,
		"backend":                 store.Backend(),
	})
}

func applyToggle(s *privacy.Settings, kv string) error {
	key, raw, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("expected key=bool, got %q", kv)
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	switch key {
	case "maskAccountId":
		s.AccountID = value
	case "maskArn":
		s.ARN = value
	case "maskAccessKey":
		s.AccessKey = value
	case "maskSecretKey":
		s.SecretKey = value
	case "maskCustomStrings":
		s.CustomStrings = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
