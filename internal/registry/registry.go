package registry

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parsers/ofx"
)

// headerSize is enough to see the OFX header block
const headerSize = 512

// Registry holds all registered parsers
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with all built-in parsers
func New(log zerolog.Logger) *Registry {
	return &Registry{
		parsers: []parser.Parser{
			ofx.NewParser(log),
		},
	}
}

// Register adds a custom parser (for extensibility)
func (r *Registry) Register(p parser.Parser) {
	r.parsers = append(r.parsers, p)
}

// FindParser returns the first parser accepting the name and header.
func (r *Registry) FindParser(name string, header []byte) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.CanParse(name, header) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, name)
}

// Detect peeks at the head of r to pick a parser. The returned reader
// replays the peeked bytes followed by the rest of r.
func (r *Registry) Detect(name string, src io.Reader) (parser.Parser, io.Reader, error) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(src, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, fmt.Errorf("failed to read header from %s: %w", name, err)
	}
	// Short files are fine; parsers see whatever was read.
	header = header[:n]

	p, err := r.FindParser(name, header)
	if err != nil {
		return nil, nil, err
	}
	return p, io.MultiReader(bytes.NewReader(header), src), nil
}

// FindParserForPath opens path and detects its parser. The caller closes the file.
func (r *Registry) FindParserForPath(path string) (parser.Parser, io.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	p, body, err := r.Detect(path, f)
	if err != nil {
		f.Close() // Best-effort close, already failing
		return nil, nil, nil, err
	}
	return p, body, f, nil
}

// ListParsers returns all registered parsers
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
