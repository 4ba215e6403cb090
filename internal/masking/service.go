package masking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/privacy"
)

// SettingsLoader is the read side of the settings store.
type SettingsLoader interface {
	LoadSettings(ctx context.Context) (privacy.Settings, error)
	LoadCustomStrings(ctx context.Context) ([]string, error)
}

// DocumentReport describes what one apply or remove pass did to one document.
type DocumentReport struct {
	Path      string         `json:"path"`
	Removed   int            `json:"removed"`
	Markers   int            `json:"markers"`
	Nodes     int            `json:"nodes"`
	ByPattern map[string]int `json:"by_pattern,omitempty"`
}

// Outcome is the result of ApplyMasking or RemoveMasking.
type Outcome struct {
	Applied   bool             `json:"applied"`
	Patterns  []string         `json:"patterns,omitempty"`
	Documents []DocumentReport `json:"documents"`
	Skipped   []dom.FrameSkip  `json:"skipped,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Markers totals the markers created across all documents.
func (o *Outcome) Markers() int {
	total := 0
	for _, d := range o.Documents {
		total += d.Markers
	}
	return total
}

// Service coordinates a masking pass over a document and its frames.
type Service struct {
	settings        SettingsLoader
	maxDepth        int
	settingsTimeout time.Duration
	logger          *logger.Logger
}

// NewService creates a masking service. maxDepth bounds frame nesting.
func NewService(settings SettingsLoader, maxDepth int, settingsTimeout time.Duration, log *logger.Logger) *Service {
	return &Service{
		settings:        settings,
		maxDepth:        maxDepth,
		settingsTimeout: settingsTimeout,
		logger:          log,
	}
}

// ActivePatterns loads the current settings and builds a fresh pattern set.
// Load failures fall back to defaults (everything on, no custom strings).
func (s *Service) ActivePatterns(ctx context.Context) []privacy.Pattern {
	if s.settingsTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settingsTimeout)
		defer cancel()
	}

	settings, err := s.settings.LoadSettings(ctx)
	if err != nil {
		s.logger.Warn("Failed to load mask settings, using defaults", zap.Error(err))
		settings = privacy.DefaultSettings()
	}

	custom, err := s.settings.LoadCustomStrings(ctx)
	if err != nil {
		s.logger.Warn("Failed to load custom strings, using none", zap.Error(err))
		custom = nil
	}

	return privacy.BuildActivePatterns(settings, custom)
}

// ApplyMasking unmasks and then re-masks doc and every accessible frame with
// the current settings. With no active pattern it returns without touching
// the document.
func (s *Service) ApplyMasking(ctx context.Context, doc *dom.Document) (*Outcome, error) {
	patterns := s.ActivePatterns(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("apply masking: %w", err)
	}

	start := time.Now()
	outcome := &Outcome{Documents: []DocumentReport{}}
	if len(patterns) == 0 {
		s.logger.Debug("No active patterns, nothing to mask")
		return outcome, nil
	}

	outcome.Applied = true
	for _, p := range patterns {
		outcome.Patterns = append(outcome.Patterns, p.ID)
	}

	outcome.Skipped = dom.WalkFrames(doc, s.maxDepth, func(v dom.Visit) {
		target := maskTarget(v.Doc)
		removed := Unmask(target)
		res := Mask(target, patterns)
		outcome.Documents = append(outcome.Documents, DocumentReport{
			Path:      v.Path,
			Removed:   removed,
			Markers:   res.Markers,
			Nodes:     res.Nodes,
			ByPattern: res.ByPattern,
		})
	})
	outcome.Duration = time.Since(start)

	s.logSkips(outcome.Skipped)
	s.logger.Info("Masking applied",
		zap.Int("patterns", len(patterns)),
		zap.Int("documents", len(outcome.Documents)),
		zap.Int("markers", outcome.Markers()),
		zap.Int("skipped_frames", len(outcome.Skipped)),
		zap.Duration("duration", outcome.Duration),
	)

	return outcome, nil
}

// RemoveMasking restores doc and every accessible frame to unmasked text.
func (s *Service) RemoveMasking(ctx context.Context, doc *dom.Document) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("remove masking: %w", err)
	}

	start := time.Now()
	outcome := &Outcome{Documents: []DocumentReport{}}
	outcome.Skipped = dom.WalkFrames(doc, s.maxDepth, func(v dom.Visit) {
		outcome.Documents = append(outcome.Documents, DocumentReport{
			Path:    v.Path,
			Removed: Unmask(maskTarget(v.Doc)),
		})
	})
	outcome.Duration = time.Since(start)

	s.logSkips(outcome.Skipped)
	s.logger.Info("Masking removed",
		zap.Int("documents", len(outcome.Documents)),
		zap.Duration("duration", outcome.Duration),
	)

	return outcome, nil
}

func (s *Service) logSkips(skips []dom.FrameSkip) {
	for _, skip := range skips {
		s.logger.Debug("Frame skipped",
			zap.String("path", skip.Path),
			zap.String("reason", skip.Reason),
		)
	}
}

// maskTarget is the body when there is one, otherwise the whole tree.
func maskTarget(doc *dom.Document) *html.Node {
	if body := doc.Body(); body != nil {
		return body
	}
	return doc.Root
}
