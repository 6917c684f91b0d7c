package interfaces

import (
	"context"

	"github.com/ternarybob/harvester/internal/models"
)

// RecordStore is the durable ordered collection of harvest records
type RecordStore interface {
	// Load reads the full collection
	Load(ctx context.Context) ([]*models.Record, error)

	// Save rewrites the full collection; a failed save leaves the previous
	// checkpoint intact
	Save(ctx context.Context, records []*models.Record) error

	// Path identifies the backing location for logs and reports
	Path() string
}
