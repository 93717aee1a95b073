package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Source tells where a statement file came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceCLI    Source = "cli"
)

// Metadata contains context about the file being parsed.
//
// Create instances using NewMetadata(fileName, receivedAt).
type Metadata struct {
	fileName   string
	size       int64
	source     Source
	receivedAt time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
func NewMetadata(fileName string, receivedAt time.Time) (*Metadata, error) {
	if fileName == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if receivedAt.IsZero() {
		return nil, fmt.Errorf("received time cannot be zero")
	}
	return &Metadata{
		fileName:   fileName,
		source:     SourceUpload,
		receivedAt: receivedAt,
	}, nil
}

// FileName returns the file name as supplied by the client or the CLI
func (m *Metadata) FileName() string {
	return m.fileName
}

// Ext returns the lower-cased file extension including the dot
func (m *Metadata) Ext() string {
	return strings.ToLower(filepath.Ext(m.fileName))
}

// Size returns the file size in bytes, zero when unknown
func (m *Metadata) Size() int64 {
	return m.size
}

// Source returns where the file came from
func (m *Metadata) Source() Source {
	return m.source
}

// ReceivedAt returns when the file was received
func (m *Metadata) ReceivedAt() time.Time {
	return m.receivedAt
}

// SetSize sets the file size
func (m *Metadata) SetSize(size int64) {
	m.size = size
}

// SetSource sets the file origin
func (m *Metadata) SetSource(source Source) {
	m.source = source
}
