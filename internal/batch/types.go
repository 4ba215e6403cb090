package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// ReportFileName is written at the root of the output directory.
const ReportFileName = "report.parquet"

// ReportRow is one (file, document, pattern) line of the batch report.
type ReportRow struct {
	File     string `parquet:"file" json:"file"`
	Document string `parquet:"document" json:"document"`
	Pattern  string `parquet:"pattern" json:"pattern"`
	Count    int64  `parquet:"count" json:"count"`
	Markers  int64  `parquet:"markers" json:"markers"`
	MaskedAt int64  `parquet:"masked_at" json:"masked_at"` // unix milliseconds
}

// Result summarises a batch run
type Result struct {
	Files        int64         `json:"files"`
	ProcessedOK  int64         `json:"processed_ok"`
	Failed       int64         `json:"failed"`
	Markers      int64         `json:"markers"`
	SkippedFrame int64         `json:"skipped_frames"`
	Duration     time.Duration `json:"duration"`
	ReportPath   string        `json:"report_path"`
	Errors       []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"` // 100
}

// IsHTMLFile reports whether name has an .html or .htm extension.
func IsHTMLFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}
