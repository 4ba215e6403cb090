package batch

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/masking"
)

// Pipeline masks saved HTML pages from disk.
type Pipeline struct {
	service  *masking.Service
	maxDepth int
	config   *Config
	logger   *logger.Logger
}

type fileResult struct {
	rel     string
	rows    []ReportRow
	markers int
	skipped int
	err     error
}

// NewPipeline creates a pipeline. maxDepth bounds srcdoc frame nesting.
func NewPipeline(service *masking.Service, maxDepth int, config *Config, log *logger.Logger) *Pipeline {
	if config == nil {
		config = &Config{}
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	return &Pipeline{
		service:  service,
		maxDepth: maxDepth,
		config:   config,
		logger:   log.WithComponent("batch"),
	}
}

// Run masks every HTML file under inputDir into the same relative path under
// outputDir and writes the report next to them. A file that fails does not
// stop the others.
func (p *Pipeline) Run(ctx context.Context, inputDir, outputDir string) (*Result, error) {
	start := time.Now()

	files, err := DiscoverFiles(inputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	p.logger.Info("Starting batch masking",
		zap.String("input", inputDir),
		zap.String("output", outputDir),
		zap.Int("files", len(files)),
		zap.Int("workers", p.config.WorkerCount))

	jobs := make(chan string)
	results := make(chan fileResult)

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				results <- p.processFile(ctx, inputDir, outputDir, rel)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rel := range files {
			select {
			case <-ctx.Done():
				return
			case jobs <- rel:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &Result{Files: int64(len(files))}
	var rows []ReportRow
	for fr := range results {
		if fr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", fr.rel, fr.err))
			p.logger.Warn("Failed to mask file", zap.String("file", fr.rel), zap.Error(fr.err))
			continue
		}
		result.ProcessedOK++
		result.Markers += int64(fr.markers)
		result.SkippedFrame += int64(fr.skipped)
		rows = append(rows, fr.rows...)

		if p.config.ProgressReport > 0 && result.ProcessedOK%int64(p.config.ProgressReport) == 0 {
			p.logger.Info("Batch progress",
				zap.Int64("processed", result.ProcessedOK),
				zap.Int64("total", result.Files))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	sortRows(rows)
	result.ReportPath = filepath.Join(outputDir, ReportFileName)
	if err := WriteReport(result.ReportPath, rows); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)

	p.logger.Info("Batch masking completed",
		zap.Int64("files", result.Files),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("failed", result.Failed),
		zap.Int64("markers", result.Markers),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) processFile(ctx context.Context, inputDir, outputDir, rel string) fileResult {
	fr := fileResult{rel: rel}

	src := filepath.Join(inputDir, rel)
	data, err := os.ReadFile(src)
	if err != nil {
		fr.err = err
		return fr
	}

	// No fetcher: saved pages only carry their srcdoc frames.
	loader := &dom.Loader{MaxDepth: p.maxDepth, Logger: p.logger}
	doc, err := loader.Load(ctx, fileURL(src), bytes.NewReader(data))
	if err != nil {
		fr.err = err
		return fr
	}

	outcome, err := p.service.ApplyMasking(ctx, doc)
	if err != nil {
		fr.err = err
		return fr
	}

	var out bytes.Buffer
	if err := dom.Render(&out, doc); err != nil {
		fr.err = err
		return fr
	}
	if err := masking.VerifyRendered(out.Bytes(), outcome.Markers(), p.maxDepth); err != nil {
		fr.err = err
		return fr
	}

	dst := filepath.Join(outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		fr.err = err
		return fr
	}
	if err := os.WriteFile(dst, out.Bytes(), 0o644); err != nil {
		fr.err = err
		return fr
	}

	now := time.Now().UnixMilli()
	for _, d := range outcome.Documents {
		for pattern, count := range d.ByPattern {
			fr.rows = append(fr.rows, ReportRow{
				File:     filepath.ToSlash(rel),
				Document: d.Path,
				Pattern:  pattern,
				Count:    int64(count),
				Markers:  int64(d.Markers),
				MaskedAt: now,
			})
		}
	}
	fr.markers = outcome.Markers()
	fr.skipped = len(outcome.Skipped)

	p.logger.Debug("File masked",
		zap.String("file", rel),
		zap.Int("markers", fr.markers),
		zap.Int("documents", len(outcome.Documents)))
	return fr
}

// DiscoverFiles lists HTML files under dir as paths relative to dir, in
// lexical order.
func DiscoverFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsHTMLFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// WriteReport writes rows as a parquet file.
func WriteReport(path string, rows []ReportRow) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) ([]ReportRow, error) {
	rows, err := parquet.ReadFile[ReportRow](path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return rows, nil
}

func sortRows(rows []ReportRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Document != b.Document {
			return a.Document < b.Document
		}
		return a.Pattern < b.Pattern
	})
}

func fileURL(path string) *url.URL {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
}
