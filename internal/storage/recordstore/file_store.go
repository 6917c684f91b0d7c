package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

var (
	// ErrStoreNotFound is returned by Load when the record file does not exist
	ErrStoreNotFound = errors.New("record store not found")
	// ErrCorruptStore is returned by Load when the record file cannot be decoded
	ErrCorruptStore = errors.New("record store is empty or corrupted")
)

// FileStore keeps the full record collection in a single JSON array file
type FileStore struct {
	fs     afero.Fs
	path   string
	logger arbor.ILogger
	mu     sync.Mutex
}

var _ interfaces.RecordStore = (*FileStore)(nil)

// NewFileStore creates a store for path on the given filesystem
func NewFileStore(fs afero.Fs, path string, logger arbor.ILogger) *FileStore {
	return &FileStore{
		fs:     fs,
		path:   path,
		logger: logger,
	}
}

// NewOsFileStore creates a store backed by the real filesystem
func NewOsFileStore(path string, logger arbor.ILogger) *FileStore {
	return NewFileStore(afero.NewOsFs(), path, logger)
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the whole collection
func (s *FileStore) Load(ctx context.Context) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var records []*models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.path, err)
	}
	if records == nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptStore, s.path)
	}

	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("%w: %s: entry %d is null", ErrCorruptStore, s.path, i)
		}
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("records", len(records)).
		Msg("Record store loaded")

	return records, nil
}

// Save rewrites the whole collection atomically
func (s *FileStore) Save(ctx context.Context, records []*models.Record) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.fs, s.path, data); err != nil {
		return fmt.Errorf("failed to save record store: %w", err)
	}
	return nil
}

// Encode serialises records in the persisted layout: a 4-space indented JSON
// array with markup left unescaped
func Encode(records []*models.Record) ([]byte, error) {
	if records == nil {
		records = []*models.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return buf.Bytes(), nil
}
