package interfaces

import "github.com/ternarybob/harvester/internal/models"

// HarvestObserver receives engine events as they happen
type HarvestObserver interface {
	ObserveAttempt(outcome models.AttemptOutcome)
	ObserveRecord(decision models.RecordDecision)
	ObserveSession(report *models.SessionReport)
}
