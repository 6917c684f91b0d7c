package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens (or creates) the database at path
func NewBadgerDB(path string, logger arbor.ILogger) (*BadgerDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Badger database initialized")

	return &BadgerDB{
		store:  store,
		logger: logger,
		path:   path,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
