// Package scanner finds statement files in a directory tree for batch
// imports from the command line.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Scanner walks directory tree and finds statement files
type Scanner struct {
	rootDir string
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is a statement file found under the root. Institution and
// Period are hints taken from the directory layout
// {root}/{institution}/{period?}/file.ofx and may be empty.
type ScanResult struct {
	Path        string
	RelPath     string
	Institution string
	Period      string
	Size        int64
	ModTime     time.Time
}

// Scan walks the directory tree and returns statement files sorted by path.
// Hidden directories are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]ScanResult, error) {
	var results []ScanResult

	rootDir := expandHome(s.rootDir)

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != rootDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsStatementFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		result := s.describe(path, rootDir)
		result.Size = info.Size()
		result.ModTime = info.ModTime()
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// IsStatementFile checks if file is a known statement format
func IsStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".ofx" || ext == ".qfx"
}

func (s *Scanner) describe(filePath, rootDir string) ScanResult {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}
	result := ScanResult{Path: filePath, RelPath: relPath}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) >= 2 {
		result.Institution = normalizeInstitutionName(parts[0])
	}
	if len(parts) >= 3 && looksLikePeriod(parts[len(parts)-2]) {
		result.Period = parts[len(parts)-2]
	}
	return result
}

// normalizeInstitutionName converts directory name to readable name
// "credit_mutuel" -> "Credit Mutuel"
func normalizeInstitutionName(dirName string) string {
	name := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(dirName)), " ")
	return cases.Title(language.Und).String(name)
}

// looksLikePeriod reports whether str is a YYYY-MM month.
func looksLikePeriod(str string) bool {
	_, err := time.Parse("2006-01", str)
	return err == nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
