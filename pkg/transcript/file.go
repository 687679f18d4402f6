package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Well-known filenames inside the storage directory. Downstream tooling and
// the read endpoints consume these; per-call files sit next to them.
const (
	latestTranscriptFile = "call-transcript.json"
	latestReportFile     = "call-report.json"
)

// Compile-time interface checks.
var (
	_ Sink        = (*FileStore)(nil)
	_ ReportStore = (*FileStore)(nil)
)

// FileStore persists transcripts and reports as JSON files in a local
// directory. Each call gets its own file keyed by call ID, and the
// well-known "call-transcript.json" / "call-report.json" files always hold
// the latest snapshot so single-slot consumers keep working.
//
// Thread-safe for concurrent use; writes are serialised by a mutex.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// WriteSnapshot implements [Sink]. It serialises entries and writes both the
// per-call file and the well-known latest file in full.
func (fs *FileStore) WriteSnapshot(_ context.Context, callID string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("transcript: marshal: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.WriteFile(filepath.Join(fs.dir, callID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("transcript: write call file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(fs.dir, latestTranscriptFile), data, 0o644); err != nil {
		return fmt.Errorf("transcript: write latest file: %w", err)
	}
	return nil
}

// Latest implements [Sink]. It reads the well-known latest transcript file.
func (fs *FileStore) Latest(_ context.Context) ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(fs.dir, latestTranscriptFile))
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: read latest: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("transcript: decode latest: %w", err)
	}
	return entries, nil
}

// WriteReport implements [ReportStore]. The report body is stored verbatim,
// whatever the summarization model returned.
func (fs *FileStore) WriteReport(_ context.Context, callID string, report []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.WriteFile(filepath.Join(fs.dir, callID+"-report.json"), report, 0o644); err != nil {
		return fmt.Errorf("transcript: write call report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(fs.dir, latestReportFile), report, 0o644); err != nil {
		return fmt.Errorf("transcript: write latest report: %w", err)
	}
	return nil
}

// LatestReport implements [ReportStore].
func (fs *FileStore) LatestReport(_ context.Context) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(fs.dir, latestReportFile))
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: read latest report: %w", err)
	}
	return data, nil
}
