package repositories

import (
	"context"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
)

// QueueRepository defines the durable storage of queue entries
type QueueRepository interface {
	// GetByID retrieves a queue entry by ID; unknown ids yield a NOT_FOUND AppError
	GetByID(ctx context.Context, id string) (*entities.QueueEntry, error)

	// ListWaiting retrieves every waiting entry of a facility, in no particular order
	ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error)

	// ListCompletedToday retrieves completed entries of a facility whose end time
	// falls on the calendar day of asOf
	ListCompletedToday(ctx context.Context, facilityID string, asOf time.Time) ([]*entities.QueueEntry, error)

	// ListActiveByPatients retrieves waiting and in-progress entries for the given patients
	ListActiveByPatients(ctx context.Context, patientIDs []string) ([]*entities.QueueEntry, error)

	// ListWaitingCheckedInBefore retrieves waiting entries of every facility
	// that checked in before cutoff
	ListWaitingCheckedInBefore(ctx context.Context, cutoff time.Time) ([]*entities.QueueEntry, error)

	// Create creates a new queue entry
	Create(ctx context.Context, entry *entities.QueueEntry) error

	// Update updates a queue entry
	Update(ctx context.Context, entry *entities.QueueEntry) error

	// BatchUpdate persists the position, estimated wait and timestamps of all
	// entries atomically: either every row is written or none is
	BatchUpdate(ctx context.Context, entries []*entities.QueueEntry) error

	// Delete hard-deletes a queue entry
	Delete(ctx context.Context, id string) error
}

// Transactor is implemented by repositories that can run several operations
// atomically. fn receives a repository bound to the transaction; returning an
// error rolls every write back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo QueueRepository) error) error
}
