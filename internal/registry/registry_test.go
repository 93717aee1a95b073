package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
)

// mockParser implements parser.Parser for testing
type mockParser struct {
	name         string
	canParseFunc func(string, []byte) bool
}

func (m *mockParser) Name() string {
	return m.name
}

func (m *mockParser) CanParse(path string, header []byte) bool {
	if m.canParseFunc != nil {
		return m.canParseFunc(path, header)
	}
	return false
}

func (m *mockParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]parser.Statement, error) {
	return nil, nil
}

func TestRegistry_New(t *testing.T) {
	reg := New(zerolog.Nop())

	names := reg.ListParsers()
	if len(names) != 1 || names[0] != "ofx" {
		t.Errorf("Expected built-in parsers [ofx], got %v", names)
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := New(zerolog.Nop())
	reg.Register(&mockParser{
		name: "csv",
		canParseFunc: func(name string, _ []byte) bool {
			return strings.HasSuffix(name, ".csv")
		},
	})

	if got := reg.ListParsers(); len(got) != 2 || got[1] != "csv" {
		t.Errorf("Expected [ofx csv], got %v", got)
	}

	p, err := reg.FindParser("march.csv", nil)
	if err != nil {
		t.Fatalf("FindParser() error = %v", err)
	}
	if p.Name() != "csv" {
		t.Errorf("Expected csv parser, got %s", p.Name())
	}
}

func TestRegistry_FindParser_Unsupported(t *testing.T) {
	reg := New(zerolog.Nop())

	_, err := reg.FindParser("statement.pdf", []byte("%PDF-1.7"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRegistry_DetectReplaysHeader(t *testing.T) {
	reg := New(zerolog.Nop())
	content := "OFXHEADER:100\nDATA:OFXSGML\n" + strings.Repeat("x", 2000)

	p, body, err := reg.Detect("a.ofx", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if p.Name() != "ofx" {
		t.Errorf("Expected ofx parser, got %s", p.Name())
	}

	replayed, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(replayed) != content {
		t.Errorf("Detect() lost bytes: got %d, want %d", len(replayed), len(content))
	}
}

func TestRegistry_DetectShortFile(t *testing.T) {
	reg := New(zerolog.Nop())

	p, _, err := reg.Detect("tiny.ofx", strings.NewReader("<OFX>"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if p.Name() != "ofx" {
		t.Errorf("Expected ofx parser, got %s", p.Name())
	}
}

func TestRegistry_FindParserForPath(t *testing.T) {
	reg := New(zerolog.Nop())
	dir := t.TempDir()

	ofxPath := filepath.Join(dir, "statement.ofx")
	if err := os.WriteFile(ofxPath, []byte("OFXHEADER:100\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p, _, f, err := reg.FindParserForPath(ofxPath)
	if err != nil {
		t.Fatalf("FindParserForPath() error = %v", err)
	}
	defer f.Close()
	if p.Name() != "ofx" {
		t.Errorf("Expected ofx parser, got %s", p.Name())
	}

	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := reg.FindParserForPath(txtPath); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}

	if _, _, _, err := reg.FindParserForPath(filepath.Join(dir, "missing.ofx")); err == nil {
		t.Error("Expected error for missing file")
	}
}
