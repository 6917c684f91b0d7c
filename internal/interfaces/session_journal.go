package interfaces

import (
	"context"

	"github.com/ternarybob/harvester/internal/models"
)

// SessionJournal keeps a history of harvest session reports
type SessionJournal interface {
	// SaveSession inserts or replaces a report by ID
	SaveSession(ctx context.Context, report *models.SessionReport) error

	// GetSession returns a single report
	GetSession(ctx context.Context, id string) (*models.SessionReport, error)

	// ListSessions returns the most recent reports, newest first
	ListSessions(ctx context.Context, limit int) ([]*models.SessionReport, error)

	// Close releases the journal
	Close() error
}
