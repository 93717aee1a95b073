// Package output writes machine-readable reports of command line imports.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rumor-ml/commons.systems/budgetter/internal/pipeline"
)

// FileStatus is the outcome of one file in a batch.
type FileStatus string

const (
	StatusImported  FileStatus = "imported"
	StatusDuplicate FileStatus = "duplicate"
	StatusFailed    FileStatus = "failed"
)

// FileResult records what happened to one statement file.
type FileResult struct {
	Path   string           `json:"path"`
	Status FileStatus       `json:"status"`
	Report *pipeline.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Batch is one run of the import command.
type Batch struct {
	StartedAt time.Time    `json:"started_at"`
	Files     []FileResult `json:"files"`
	Imported  int          `json:"imported_count"`
	Skipped   int          `json:"skipped_count"`
	Failed    int          `json:"failed_files"`
}

// NewBatch starts an empty batch.
func NewBatch(startedAt time.Time) *Batch {
	return &Batch{StartedAt: startedAt, Files: []FileResult{}}
}

// Add appends a file result and updates the totals.
func (b *Batch) Add(r FileResult) {
	b.Files = append(b.Files, r)
	switch r.Status {
	case StatusFailed:
		b.Failed++
	case StatusImported:
		if r.Report != nil {
			b.Imported += r.Report.Imported
			b.Skipped += r.Report.Skipped
		}
	}
}

// History is the on-disk list of batches, oldest first.
type History struct {
	Batches []Batch `json:"batches"`
}

// WriteOptions configures how a batch is written
type WriteOptions struct {
	MergeMode bool   // append to the history already at FilePath
	FilePath  string // empty means stdout
}

// WriteBatch serializes the batch to JSON with 2-space indentation
func WriteBatch(b *Batch, w io.Writer) error {
	if b == nil {
		return fmt.Errorf("batch cannot be nil")
	}
	return encode(b, w)
}

func encode(v any, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}
	return nil
}

// WriteBatchToFile writes the batch to stdout or, as a one-batch history, to
// opts.FilePath. In merge mode the batch is appended to the existing history.
func WriteBatchToFile(b *Batch, opts WriteOptions) (err error) {
	if b == nil {
		return fmt.Errorf("batch cannot be nil")
	}
	if opts.FilePath == "" {
		return WriteBatch(b, os.Stdout)
	}

	history := &History{}
	if opts.MergeMode {
		existing, err := LoadHistory(opts.FilePath)
		switch {
		case err == nil:
			history = existing
		case !os.IsNotExist(err):
			return fmt.Errorf("failed to load existing history for merge: %w", err)
		}
	}
	history.Batches = append(history.Batches, *b)

	// Write to a sibling temp file, then rename over the target.
	tmp := opts.FilePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", tmp, err)
	}
	if err := encode(history, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write history to %s: %w", opts.FilePath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close output file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, opts.FilePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", opts.FilePath, err)
	}
	return nil
}

// LoadHistory reads a history file written by WriteBatchToFile. A missing
// file is returned unwrapped so callers can test os.IsNotExist.
func LoadHistory(filePath string) (*History, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var h History
	if err := json.NewDecoder(f).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode history JSON: %w", err)
	}
	return &h, nil
}
