// Package dedup fingerprints statement files and keeps a local ledger of the
// files the CLI has already imported.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State represents the import ledger with fingerprint history.
type State struct {
	Version      int                      `json:"version"`
	Fingerprints map[string]*ImportRecord `json:"fingerprints"`
	Metadata     StateMetadata            `json:"metadata"`
}

// ImportRecord tracks one file content across repeated imports.
type ImportRecord struct {
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Count     int       `json:"count"`
	FileName  string    `json:"fileName"`
	Imported  int       `json:"imported"`
}

// StateMetadata contains aggregate statistics about the state.
type StateMetadata struct {
	LastUpdated       time.Time `json:"lastUpdated"`
	TotalFingerprints int       `json:"totalFingerprints"`
}

const (
	// CurrentVersion is the current state file format version
	CurrentVersion = 1
)

// NewState creates an empty ledger.
func NewState() *State {
	return &State{
		Version:      CurrentVersion,
		Fingerprints: make(map[string]*ImportRecord),
		Metadata: StateMetadata{
			LastUpdated: time.Now(),
		},
	}
}

// Fingerprint is the hex SHA256 of content.
func Fingerprint(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// LoadState loads a state file from disk.
// Returns an os.IsNotExist error if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	if state.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported state file version %d (current version: %d)", state.Version, CurrentVersion)
	}

	if state.Fingerprints == nil {
		state.Fingerprints = make(map[string]*ImportRecord)
	}

	return &state, nil
}

// LoadOrNew loads filePath, starting a fresh ledger when it does not exist.
func LoadOrNew(filePath string) (*State, error) {
	state, err := LoadState(filePath)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	return state, err
}

// SaveState writes the state to disk through a temp file and rename,
// creating the parent directory.
func SaveState(state *State, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	state.Metadata.LastUpdated = time.Now()
	state.Metadata.TotalFingerprints = len(state.Fingerprints)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// IsDuplicate checks if a fingerprint exists in the state.
func (s *State) IsDuplicate(fingerprint string) bool {
	_, exists := s.Fingerprints[fingerprint]
	return exists
}

// RecordImport records an import of the file with this fingerprint.
// A new fingerprint starts at count 1; a known one has its count, last-seen
// time and imported total updated.
func (s *State) RecordImport(fingerprint, fileName string, imported int, timestamp time.Time) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if fileName == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if imported < 0 {
		return fmt.Errorf("imported count cannot be negative: %d", imported)
	}

	if record, exists := s.Fingerprints[fingerprint]; exists {
		record.LastSeen = timestamp
		record.Count++
		record.Imported += imported
		return nil
	}
	s.Fingerprints[fingerprint] = &ImportRecord{
		FirstSeen: timestamp,
		LastSeen:  timestamp,
		Count:     1,
		FileName:  fileName,
		Imported:  imported,
	}
	return nil
}
