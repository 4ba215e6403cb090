package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/config"
	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/privacy"
)

// Keys under which the masking preferences are persisted.
const (
	KeySettings      = "maskSettings"
	KeyCustomStrings = "customStrings"
)

// KV is the minimal key-value contract every settings backend implements.
// Get reports found=false for a missing key rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Store reads and writes masking preferences over a KV backend.
type Store struct {
	kv      KV
	backend string
	logger  *logger.Logger
}

// NewStore wraps kv. backend is only used for reporting.
func NewStore(kv KV, backend string, log *logger.Logger) *Store {
	return &Store{kv: kv, backend: backend, logger: log}
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*Store, error) {
	var (
		kv  KV
		err error
	)

	switch cfg.Backend {
	case "", "memory":
		kv = NewMemoryKV()
	case "file":
		kv, err = NewFileKV(cfg.FilePath)
	case "redis":
		kv, err = NewRedisKV(ctx, cfg.RedisURL, cfg.KeyPrefix, log)
	case "postgres":
		kv, err = NewPostgresKV(ctx, cfg.DatabaseURL, log)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s settings backend: %w", cfg.Backend, err)
	}

	backend := cfg.Backend
	if backend == "" {
		backend = "memory"
	}
	log.Info("Settings store ready", zap.String("backend", backend))
	return NewStore(kv, backend, log), nil
}

// Backend names the KV implementation in use.
func (s *Store) Backend() string {
	return s.backend
}

// LoadSettings returns the stored toggles merged over DefaultSettings, so a
// toggle that was never written stays enabled.
func (s *Store) LoadSettings(ctx context.Context) (privacy.Settings, error) {
	settings := privacy.DefaultSettings()

	raw, found, err := s.kv.Get(ctx, KeySettings)
	if err != nil {
		return settings, fmt.Errorf("load %s: %w", KeySettings, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return settings, nil
	}

	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return privacy.DefaultSettings(), fmt.Errorf("decode %s: %w", KeySettings, err)
	}
	return settings, nil
}

// LoadCustomStrings returns the stored literal list, or nil when none is set.
func (s *Store) LoadCustomStrings(ctx context.Context) ([]string, error) {
	raw, found, err := s.kv.Get(ctx, KeyCustomStrings)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", KeyCustomStrings, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var custom []string
	if err := json.Unmarshal([]byte(raw), &custom); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyCustomStrings, err)
	}
	return custom, nil
}

// SaveSettings persists all five toggles.
func (s *Store) SaveSettings(ctx context.Context, settings privacy.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeySettings, err)
	}
	if err := s.kv.Set(ctx, KeySettings, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", KeySettings, err)
	}
	s.logger.Debug("Mask settings saved", zap.ByteString("value", data))
	return nil
}

// SaveCustomStrings persists the literal list. Empty entries are dropped;
// nothing else is trimmed.
func (s *Store) SaveCustomStrings(ctx context.Context, custom []string) error {
	kept := make([]string, 0, len(custom))
	for _, c := range custom {
		if c != "" {
			kept = append(kept, c)
		}
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyCustomStrings, err)
	}
	if err := s.kv.Set(ctx, KeyCustomStrings, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", KeyCustomStrings, err)
	}
	s.logger.Debug("Custom strings saved", zap.Int("count", len(kept)))
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}
