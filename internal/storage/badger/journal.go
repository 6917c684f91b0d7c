package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// ErrSessionNotFound is returned when no report exists for an id
var ErrSessionNotFound = errors.New("session not found")

// Journal stores harvest session reports in Badger
type Journal struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.SessionJournal = (*Journal)(nil)

// NewJournal creates a journal on an open database
func NewJournal(db *BadgerDB, logger arbor.ILogger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
	}
}

// OpenJournal opens the database at path and wraps it in a journal
func OpenJournal(path string, logger arbor.ILogger) (*Journal, error) {
	db, err := NewBadgerDB(path, logger)
	if err != nil {
		return nil, err
	}
	return NewJournal(db, logger), nil
}

func (j *Journal) SaveSession(ctx context.Context, report *models.SessionReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := j.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (j *Journal) GetSession(ctx context.Context, id string) (*models.SessionReport, error) {
	var report models.SessionReport
	if err := j.db.Store().Get(id, &report); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &report, nil
}

func (j *Journal) ListSessions(ctx context.Context, limit int) ([]*models.SessionReport, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reports []models.SessionReport
	if err := j.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	result := make([]*models.SessionReport, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
