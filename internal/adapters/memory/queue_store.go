package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
	apperrors "github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/errors"
)

// QueueStore is a process-local queue repository. Entries are cloned on the
// way in and out so callers never share memory with the store.
type QueueStore struct {
	mu      sync.RWMutex
	entries map[string]*entities.QueueEntry
}

// NewQueueStore creates an empty store
func NewQueueStore() *QueueStore {
	return &QueueStore{
		entries: make(map[string]*entities.QueueEntry),
	}
}

// GetByID retrieves a queue entry by ID
func (s *QueueStore) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", id))
	}
	return entry.Clone(), nil
}

// ListWaiting retrieves every waiting entry of a facility
func (s *QueueStore) ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	return s.filter(ctx, waitingIn(facilityID))
}

// ListCompletedToday retrieves completed entries whose end time falls on asOf's day
func (s *QueueStore) ListCompletedToday(ctx context.Context, facilityID string, asOf time.Time) ([]*entities.QueueEntry, error) {
	return s.filter(ctx, completedOn(facilityID, asOf))
}

// ListActiveByPatients retrieves waiting and in-progress entries for the given patients
func (s *QueueStore) ListActiveByPatients(ctx context.Context, patientIDs []string) ([]*entities.QueueEntry, error) {
	return s.filter(ctx, activeFor(patientIDs))
}

// ListWaitingCheckedInBefore retrieves waiting entries that checked in before cutoff
func (s *QueueStore) ListWaitingCheckedInBefore(ctx context.Context, cutoff time.Time) ([]*entities.QueueEntry, error) {
	return s.filter(ctx, waitingBefore(cutoff))
}

func (s *QueueStore) filter(ctx context.Context, keep func(*entities.QueueEntry) bool) ([]*entities.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entities.QueueEntry, 0)
	for _, entry := range s.entries {
		if keep(entry) {
			result = append(result, entry.Clone())
		}
	}
	return result, nil
}

func waitingIn(facilityID string) func(*entities.QueueEntry) bool {
	return func(e *entities.QueueEntry) bool {
		return e.FacilityID == facilityID && e.Status == entities.QueueStatusWaiting
	}
}

func completedOn(facilityID string, asOf time.Time) func(*entities.QueueEntry) bool {
	start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	end := start.AddDate(0, 0, 1)
	return func(e *entities.QueueEntry) bool {
		return e.FacilityID == facilityID &&
			e.Status == entities.QueueStatusCompleted &&
			e.EndTime != nil &&
			!e.EndTime.Before(start) && e.EndTime.Before(end)
	}
}

func activeFor(patientIDs []string) func(*entities.QueueEntry) bool {
	wanted := make(map[string]struct{}, len(patientIDs))
	for _, id := range patientIDs {
		wanted[id] = struct{}{}
	}
	return func(e *entities.QueueEntry) bool {
		if _, ok := wanted[e.PatientID]; !ok {
			return false
		}
		return e.Status == entities.QueueStatusWaiting || e.Status == entities.QueueStatusInProgress
	}
}

func waitingBefore(cutoff time.Time) func(*entities.QueueEntry) bool {
	return func(e *entities.QueueEntry) bool {
		return e.Status == entities.QueueStatusWaiting && e.CheckInTime.Before(cutoff)
	}
}

// Create creates a new queue entry
func (s *QueueStore) Create(ctx context.Context, entry *entities.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("queue entry already exists: %s", entry.ID), nil)
	}
	s.entries[entry.ID] = entry.Clone()
	return nil
}

// Update updates a queue entry
func (s *QueueStore) Update(ctx context.Context, entry *entities.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", entry.ID))
	}
	s.entries[entry.ID] = entry.Clone()
	return nil
}

// BatchUpdate writes all entries or none of them
func (s *QueueStore) BatchUpdate(ctx context.Context, entries []*entities.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if _, exists := s.entries[entry.ID]; !exists {
			return apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", entry.ID))
		}
	}
	for _, entry := range entries {
		s.entries[entry.ID] = entry.Clone()
	}
	return nil
}

// Delete hard-deletes a queue entry
func (s *QueueStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", id))
	}
	delete(s.entries, id)
	return nil
}

// Len returns the number of stored entries, whatever their status
func (s *QueueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// WithinTransaction runs fn against a private view of the store. Writes are
// staged and applied in one step when fn succeeds, so readers outside the
// transaction only ever observe committed state. A failed fn leaves the store
// untouched.
func (s *QueueStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.QueueRepository) error) error {
	tx := &txStore{
		base:    s,
		staged:  make(map[string]*entities.QueueEntry),
		deleted: make(map[string]struct{}),
		created: make(map[string]struct{}),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// txStore overlays staged writes on top of the committed entries
type txStore struct {
	base    *QueueStore
	staged  map[string]*entities.QueueEntry
	deleted map[string]struct{}
	created map[string]struct{}
}

func (t *txStore) lookup(id string) (*entities.QueueEntry, bool) {
	if _, gone := t.deleted[id]; gone {
		return nil, false
	}
	if entry, ok := t.staged[id]; ok {
		return entry, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	entry, ok := t.base.entries[id]
	return entry, ok
}

func (t *txStore) filter(ctx context.Context, keep func(*entities.QueueEntry) bool) ([]*entities.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]*entities.QueueEntry, 0)

	t.base.mu.RLock()
	for id, entry := range t.base.entries {
		if _, gone := t.deleted[id]; gone {
			continue
		}
		if _, shadowed := t.staged[id]; shadowed {
			continue
		}
		if keep(entry) {
			result = append(result, entry.Clone())
		}
	}
	t.base.mu.RUnlock()

	for _, entry := range t.staged {
		if keep(entry) {
			result = append(result, entry.Clone())
		}
	}
	return result, nil
}

func (t *txStore) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := t.lookup(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", id))
	}
	return entry.Clone(), nil
}

func (t *txStore) ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	return t.filter(ctx, waitingIn(facilityID))
}

func (t *txStore) ListCompletedToday(ctx context.Context, facilityID string, asOf time.Time) ([]*entities.QueueEntry, error) {
	return t.filter(ctx, completedOn(facilityID, asOf))
}

func (t *txStore) ListActiveByPatients(ctx context.Context, patientIDs []string) ([]*entities.QueueEntry, error) {
	return t.filter(ctx, activeFor(patientIDs))
}

func (t *txStore) ListWaitingCheckedInBefore(ctx context.Context, cutoff time.Time) ([]*entities.QueueEntry, error) {
	return t.filter(ctx, waitingBefore(cutoff))
}

func (t *txStore) Create(ctx context.Context, entry *entities.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := t.lookup(entry.ID); exists {
		return apperrors.NewConflictError(fmt.Sprintf("queue entry already exists: %s", entry.ID), nil)
	}
	if _, replaced := t.deleted[entry.ID]; replaced {
		delete(t.deleted, entry.ID)
	} else {
		t.created[entry.ID] = struct{}{}
	}
	t.staged[entry.ID] = entry.Clone()
	return nil
}

func (t *txStore) Update(ctx context.Context, entry *entities.QueueEntry) error {
	return t.BatchUpdate(ctx, []*entities.QueueEntry{entry})
}

func (t *txStore) BatchUpdate(ctx context.Context, entries []*entities.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, entry := range entries {
		if _, exists := t.lookup(entry.ID); !exists {
			return apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", entry.ID))
		}
	}
	for _, entry := range entries {
		t.staged[entry.ID] = entry.Clone()
	}
	return nil
}

func (t *txStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := t.lookup(id); !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", id))
	}
	delete(t.staged, id)
	delete(t.created, id)
	t.deleted[id] = struct{}{}
	return nil
}

// commit applies the staged writes atomically. An id created by a concurrent
// transaction in the meantime aborts the whole commit.
func (t *txStore) commit() error {
	t.base.mu.Lock()
	defer t.base.mu.Unlock()

	for id := range t.created {
		if _, exists := t.base.entries[id]; exists {
			return apperrors.NewConflictError(fmt.Sprintf("queue entry already exists: %s", id), nil)
		}
	}
	for id := range t.deleted {
		delete(t.base.entries, id)
	}
	for id, entry := range t.staged {
		t.base.entries[id] = entry
	}
	return nil
}
