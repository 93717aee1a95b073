// Package archive keeps a copy of every imported statement file in a Cloud
// Storage bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/dedup"
	"github.com/rumor-ml/commons.systems/budgetter/internal/transform"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

const unknownInstitution = "unknown"

// ObjectWriter stores one object. The GCS implementation is returned by NewGCS.
type ObjectWriter interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) error
	Close() error
}

// Archive names and writes statement objects.
type Archive struct {
	objects ObjectWriter
	prefix  string
	now     func() time.Time
	log     zerolog.Logger
}

// New returns an archive writing through objects under prefix.
func New(objects ObjectWriter, prefix string, log zerolog.Logger) *Archive {
	return &Archive{
		objects: objects,
		prefix:  strings.Trim(prefix, "/"),
		now:     time.Now,
		log:     log.With().Str("component", "archive").Logger(),
	}
}

// Store uploads content and returns the object name. Identical content
// from the same institution always maps to the same name, so re-imports
// overwrite rather than accumulate.
func (a *Archive) Store(ctx context.Context, institution, fileName string, content []byte) (string, error) {
	name := a.ObjectName(institution, fileName, content)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	if err := a.objects.Put(ctx, name, contentType(fileName), bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("archive %s: %w", fileName, err)
	}
	a.log.Info().Str("object", name).Int("bytes", len(content)).Msg("statement archived")
	return name, nil
}

// ObjectName builds "<prefix>/<institution>/<fingerprint prefix>-<file>".
func (a *Archive) ObjectName(institution, fileName string, content []byte) string {
	slug, err := transform.SlugifyInstitution(institution)
	if err != nil {
		slug = unknownInstitution
	}
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		base = "statement.ofx"
	}
	name := fmt.Sprintf("%s/%s-%s", slug, dedup.Fingerprint(content)[:16], base)
	if a.prefix != "" {
		name = a.prefix + "/" + name
	}
	return name
}

// Close releases the underlying client.
func (a *Archive) Close() error {
	return a.objects.Close()
}

func contentType(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".ofx", ".qfx":
		return "application/x-ofx"
	default:
		return "application/octet-stream"
	}
}

// gcsWriter writes objects to one bucket.
type gcsWriter struct {
	client *storage.Client
	bucket string
}

// NewGCS opens a Cloud Storage client using Application Default Credentials.
func NewGCS(ctx context.Context, bucket string) (ObjectWriter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsWriter{client: client, bucket: bucket}, nil
}

func (g *gcsWriter) Put(ctx context.Context, name, contentType string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (g *gcsWriter) Close() error {
	return g.client.Close()
}
