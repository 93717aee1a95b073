// Package pipeline runs a statement file through detection, parsing,
// reconciliation and archiving. The HTTP import handlers and the CLI share it.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/dedup"
	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/reconcile"
	"github.com/rumor-ml/commons.systems/budgetter/internal/registry"
)

// Archiver keeps a copy of imported files. *archive.Archive implements it.
type Archiver interface {
	Store(ctx context.Context, institution, fileName string, content []byte) (string, error)
}

// Report is the outcome of importing one file.
type Report struct {
	*reconcile.Result
	FileName    string `json:"file_name"`
	Parser      string `json:"parser"`
	Fingerprint string `json:"fingerprint"`
	ArchivedAs  string `json:"archived_as,omitempty"`
}

// Pipeline orchestrates parsing files and reconciling them into the store.
type Pipeline struct {
	registry *registry.Registry
	engine   *reconcile.Engine
	archiver Archiver
	opts     reconcile.Options
	maxBytes int64
	log      zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithArchiver archives every successfully imported file.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithMaxBytes rejects files larger than n bytes.
func WithMaxBytes(n int64) Option {
	return func(p *Pipeline) { p.maxBytes = n }
}

// WithOptions sets the reconciliation options of every import.
func WithOptions(opts reconcile.Options) Option {
	return func(p *Pipeline) { p.opts = opts }
}

// New creates a pipeline.
func New(reg *registry.Registry, engine *reconcile.Engine, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: reg,
		engine:   engine,
		maxBytes: 10 << 20,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// parsed is a file read into memory and parsed.
type parsed struct {
	content    []byte
	parserName string
	statements []parser.Statement
}

// Parse reads r fully, picks a parser and parses the file. No database work
// happens here, so a parse failure leaves the ledger untouched.
func (p *Pipeline) parse(ctx context.Context, name string, r io.Reader, source parser.Source) (*parsed, error) {
	content, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if int64(len(content)) > p.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, name, p.maxBytes)
	}

	selected, body, err := p.registry.Detect(name, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	meta, err := parser.NewMetadata(name, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	meta.SetSize(int64(len(content)))
	meta.SetSource(source)

	stmts, err := selected.Parse(ctx, body, meta)
	if err != nil {
		return nil, err
	}
	return &parsed{content: content, parserName: selected.Name(), statements: stmts}, nil
}

// Import parses and reconciles one file. Archive failures are logged and do
// not fail the import.
func (p *Pipeline) Import(ctx context.Context, name string, r io.Reader, source parser.Source) (*Report, error) {
	file, err := p.parse(ctx, name, r, source)
	if err != nil {
		return nil, err
	}

	res, err := p.engine.Import(ctx, file.statements, p.opts)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Result:      res,
		FileName:    name,
		Parser:      file.parserName,
		Fingerprint: dedup.Fingerprint(file.content),
	}

	if p.archiver != nil && len(file.statements) > 0 {
		object, err := p.archiver.Store(ctx, file.statements[0].InstitutionID(), name, file.content)
		if err != nil {
			p.log.Warn().Err(err).Str("file", name).Msg("statement not archived")
		} else {
			report.ArchivedAs = object
		}
	}

	p.log.Info().
		Str("file", name).
		Str("source", string(source)).
		Int("statements", len(file.statements)).
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Msg("file imported")
	return report, nil
}

// Preview parses one file and reports what Import would write.
func (p *Pipeline) Preview(ctx context.Context, name string, r io.Reader, source parser.Source) (*reconcile.Preview, error) {
	file, err := p.parse(ctx, name, r, source)
	if err != nil {
		return nil, err
	}
	return p.engine.Preview(ctx, file.statements, p.opts)
}

// ImportPath imports a file from disk.
func (p *Pipeline) ImportPath(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return p.Import(ctx, filepath.Base(path), f, parser.SourceCLI)
}

// PreviewPath previews a file from disk.
func (p *Pipeline) PreviewPath(ctx context.Context, path string) (*reconcile.Preview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return p.Preview(ctx, filepath.Base(path), f, parser.SourceCLI)
}
