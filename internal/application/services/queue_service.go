package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
	apperrors "github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/errors"
)

// errNothingToCall aborts a call-next transaction when no entry matches
var errNothingToCall = errors.New("no waiting entry matches")

// QueueServiceConfig holds the tuning knobs of the queue engine
type QueueServiceConfig struct {
	DefaultServiceMinutes float64
	StatsTTLSeconds       int
	StoreTimeout          time.Duration
}

// DefaultQueueServiceConfig returns the stock engine settings
func DefaultQueueServiceConfig() QueueServiceConfig {
	return QueueServiceConfig{
		DefaultServiceMinutes: DefaultServiceMinutes,
		StatsTTLSeconds:       60,
		StoreTimeout:          5 * time.Second,
	}
}

// QueueService orchestrates queue mutations: every change to a facility queue
// is committed together with a position recompute under the facility lock,
// then the stats cache is invalidated and subscribers are notified.
type QueueService struct {
	repo         repositories.QueueRepository
	cache        providers.CacheProvider
	broadcaster  providers.EventBroadcaster
	orderer      *PriorityOrderer
	sampler      *HistoricalServiceSampler
	recalculator *PositionRecalculator
	locker       *FacilityLocker
	metrics      *observability.Metrics

	statsTTLSeconds int
	storeTimeout    time.Duration
	clock           func() time.Time
}

// NewQueueService creates a new queue service. cache and broadcaster may be nil.
func NewQueueService(
	repo repositories.QueueRepository,
	cache providers.CacheProvider,
	broadcaster providers.EventBroadcaster,
	cfg QueueServiceConfig,
) *QueueService {
	defaults := DefaultQueueServiceConfig()
	if cfg.StatsTTLSeconds <= 0 {
		cfg.StatsTTLSeconds = defaults.StatsTTLSeconds
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}

	orderer := NewPriorityOrderer()
	sampler := NewHistoricalServiceSampler(repo, cfg.DefaultServiceMinutes)
	return &QueueService{
		repo:            repo,
		cache:           cache,
		broadcaster:     broadcaster,
		orderer:         orderer,
		sampler:         sampler,
		recalculator:    NewPositionRecalculator(orderer, sampler),
		locker:          NewFacilityLocker(),
		statsTTLSeconds: cfg.StatsTTLSeconds,
		storeTimeout:    cfg.StoreTimeout,
		clock:           time.Now,
	}
}

// SetMetrics attaches OpenTelemetry instruments
func (s *QueueService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// SetClock replaces the time source used for check-in, start/end stamps and sampling
func (s *QueueService) SetClock(clock func() time.Time) {
	s.clock = clock
	s.recalculator.clock = clock
}

// AddEntry checks a patient into a facility queue and returns the stored
// entry with its computed position and estimated wait
func (s *QueueService) AddEntry(ctx context.Context, entry *entities.QueueEntry) (*entities.QueueEntry, error) {
	if entry == nil {
		return nil, apperrors.NewValidationError("queue entry is required")
	}
	created := entry.Clone()
	if err := s.prepareNewEntry(created); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "QueueService.AddEntry")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("queue.facility_id", created.FacilityID))

	var result *entities.QueueEntry
	_, err := s.mutate(ctx, created.FacilityID, "add", func(ctx context.Context, repo repositories.QueueRepository) error {
		return repo.Create(ctx, created)
	}, func(changed []*entities.QueueEntry) {
		result = pick(changed, created)
		s.publishFacility(ctx, result.FacilityID, entities.QueueEventTypeEntryAdded, entities.EntryPayload(result))
		s.publishPatient(ctx, result, entities.QueueEventTypePosition)
		s.broadcastDeltas(ctx, changed, result.ID)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("facility_id", result.FacilityID).
		Str("entry_id", result.ID).
		Str("priority_tier", string(result.PriorityTier)).
		Int("position", result.Position).
		Msg("Queue entry added")
	return result, nil
}

func (s *QueueService) prepareNewEntry(entry *entities.QueueEntry) error {
	entry.FacilityID = strings.TrimSpace(entry.FacilityID)
	entry.PatientID = strings.TrimSpace(entry.PatientID)
	entry.Specialty = strings.TrimSpace(entry.Specialty)

	if entry.FacilityID == "" {
		return apperrors.NewValidationError("facility_id is required")
	}
	if entry.PatientID == "" {
		return apperrors.NewValidationError("patient_id is required")
	}
	if entry.PriorityTier == "" {
		return apperrors.NewValidationError("priority_tier is required")
	}
	if !entry.PriorityTier.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown priority_tier %q", entry.PriorityTier))
	}
	if entry.Status != "" && entry.Status != entities.QueueStatusWaiting {
		return apperrors.NewValidationError("new queue entries must be waiting")
	}

	now := s.clock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CheckInTime.IsZero() {
		entry.CheckInTime = now
	}
	entry.Status = entities.QueueStatusWaiting
	entry.StartTime = nil
	entry.EndTime = nil
	entry.Position = 0
	entry.EstimatedWaitMinutes = 0
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

// GetEntry retrieves a queue entry by ID
func (s *QueueService) GetEntry(ctx context.Context, id string) (*entities.QueueEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get queue entry", err)
	}
	return entry, nil
}

// ListWaiting returns the facility's waiting entries in serve order
func (s *QueueService) ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	waiting, err := s.repo.ListWaiting(ctx, facilityID)
	if err != nil {
		return nil, storeError("list waiting entries", err)
	}
	return s.orderer.Sort(waiting), nil
}

// UpdateEntry applies a staff edit to an entry and recomputes the facility queue
func (s *QueueService) UpdateEntry(ctx context.Context, id string, patch entities.QueueEntryPatch) (*entities.QueueEntry, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "QueueService.UpdateEntry")
	defer span.End()

	current, err := s.GetEntry(ctx, id)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSpanAttributes(span, attribute.String("queue.facility_id", current.FacilityID))

	var updated, result *entities.QueueEntry
	statusChanged := false
	_, err = s.mutate(ctx, current.FacilityID, "update", func(ctx context.Context, repo repositories.QueueRepository) error {
		entry, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status.IsTerminal() {
			return apperrors.NewInvalidTransitionError(fmt.Sprintf("queue entry %s is %s and can no longer change", entry.ID, entry.Status))
		}

		previous := entry.Status
		if err := s.applyPatch(entry, patch); err != nil {
			return err
		}
		statusChanged = entry.Status != previous
		updated = entry
		return repo.Update(ctx, entry)
	}, func(changed []*entities.QueueEntry) {
		result = pick(changed, updated)
		s.publishFacility(ctx, result.FacilityID, entities.QueueEventTypeEntryUpdated, entities.EntryPayload(result))
		if statusChanged {
			s.publishPatient(ctx, result, entities.QueueEventTypeStatus)
		} else {
			s.publishPatient(ctx, result, entities.QueueEventTypePosition)
		}
		s.broadcastDeltas(ctx, changed, result.ID)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func validatePatch(patch entities.QueueEntryPatch) error {
	if patch.IsEmpty() {
		return apperrors.NewValidationError("patch contains no changes")
	}
	if patch.PriorityTier != nil && !patch.PriorityTier.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown priority_tier %q", *patch.PriorityTier))
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown status %q", *patch.Status))
	}
	return nil
}

func (s *QueueService) applyPatch(entry *entities.QueueEntry, patch entities.QueueEntryPatch) error {
	now := s.clock()
	if patch.Status != nil {
		if err := transition(entry, *patch.Status, now); err != nil {
			return err
		}
	}
	if patch.PriorityTier != nil {
		entry.PriorityTier = *patch.PriorityTier
	}
	if patch.Specialty != nil {
		entry.Specialty = strings.TrimSpace(*patch.Specialty)
	}
	if patch.Notes != nil {
		entry.Notes = *patch.Notes
	}
	entry.UpdatedAt = now
	return nil
}

// transition moves entry to status to, stamping start/end times. Entries that
// leave the waiting state lose their position and estimated wait.
func transition(entry *entities.QueueEntry, to entities.QueueStatus, now time.Time) error {
	if entry.Status == to {
		return nil
	}
	if !entities.CanTransition(entry.Status, to) {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("cannot move queue entry %s from %s to %s", entry.ID, entry.Status, to))
	}

	switch {
	case to == entities.QueueStatusInProgress:
		entry.StartTime = &now
	case to.IsTerminal():
		entry.EndTime = &now
	}
	entry.Status = to
	entry.Position = 0
	entry.EstimatedWaitMinutes = 0
	return nil
}

// CompleteEntry marks an in-progress entry as completed
func (s *QueueService) CompleteEntry(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return s.setStatus(ctx, id, entities.QueueStatusCompleted)
}

// CancelEntry cancels a waiting or in-progress entry
func (s *QueueService) CancelEntry(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return s.setStatus(ctx, id, entities.QueueStatusCancelled)
}

// MarkNoShow records that the patient did not show up
func (s *QueueService) MarkNoShow(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return s.setStatus(ctx, id, entities.QueueStatusNoShow)
}

func (s *QueueService) setStatus(ctx context.Context, id string, status entities.QueueStatus) (*entities.QueueEntry, error) {
	return s.UpdateEntry(ctx, id, entities.QueueEntryPatch{Status: &status})
}

// RemoveEntry hard-deletes an entry, for administrative corrections. The
// facility is recomputed as if the entry never existed.
func (s *QueueService) RemoveEntry(ctx context.Context, id string) error {
	ctx, span := observability.StartSpan(ctx, "QueueService.RemoveEntry")
	defer span.End()

	current, err := s.GetEntry(ctx, id)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	var removed *entities.QueueEntry
	_, err = s.mutate(ctx, current.FacilityID, "remove", func(ctx context.Context, repo repositories.QueueRepository) error {
		entry, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		removed = entry
		return repo.Delete(ctx, id)
	}, func(changed []*entities.QueueEntry) {
		payload := map[string]interface{}{
			"entry_id":   removed.ID,
			"patient_id": removed.PatientID,
		}
		s.publishFacility(ctx, removed.FacilityID, entities.QueueEventTypeEntryRemoved, payload)
		s.publishPatientPayload(ctx, removed.FacilityID, removed.PatientID, entities.QueueEventTypeRemoved, payload)
		s.broadcastDeltas(ctx, changed, removed.ID)
	})
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("facility_id", removed.FacilityID).
		Str("entry_id", removed.ID).
		Msg("Queue entry removed")
	return nil
}

// CallNext moves the first-ranked waiting entry (restricted to specialty when
// given) into service. An empty queue yields (nil, nil).
func (s *QueueService) CallNext(ctx context.Context, facilityID, specialty string) (*entities.QueueEntry, error) {
	facilityID = strings.TrimSpace(facilityID)
	if facilityID == "" {
		return nil, apperrors.NewValidationError("facility_id is required")
	}
	specialty = strings.TrimSpace(specialty)

	ctx, span := observability.StartSpan(ctx, "QueueService.CallNext")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("queue.facility_id", facilityID),
		attribute.String("queue.specialty", specialty),
	)

	var called *entities.QueueEntry
	_, err := s.mutate(ctx, facilityID, "call_next", func(ctx context.Context, repo repositories.QueueRepository) error {
		waiting, err := repo.ListWaiting(ctx, facilityID)
		if err != nil {
			return err
		}
		next := s.orderer.First(waiting, matchSpecialty(specialty))
		if next == nil {
			return errNothingToCall
		}

		next = next.Clone()
		if err := transition(next, entities.QueueStatusInProgress, s.clock()); err != nil {
			return err
		}
		next.UpdatedAt = s.clock()
		called = next
		return repo.Update(ctx, next)
	}, func(changed []*entities.QueueEntry) {
		s.publishPatient(ctx, called, entities.QueueEventTypeCalled)
		s.publishFacility(ctx, facilityID, entities.QueueEventTypeQueueUpdate, map[string]interface{}{
			"called_entry_id": called.ID,
			"patient_id":      called.PatientID,
			"specialty":       called.Specialty,
			"changed":         len(changed),
		})
		s.broadcastDeltas(ctx, changed, called.ID)
	})
	if errors.Is(err, errNothingToCall) {
		observability.RecordCallNext(ctx, s.metrics, "empty")
		return nil, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordCallNext(ctx, s.metrics, "called")

	observability.LoggerFromContext(ctx).Info().
		Str("facility_id", facilityID).
		Str("entry_id", called.ID).
		Str("specialty", specialty).
		Msg("Called next patient")
	return called, nil
}

func matchSpecialty(specialty string) func(*entities.QueueEntry) bool {
	if specialty == "" {
		return nil
	}
	return func(entry *entities.QueueEntry) bool {
		return strings.EqualFold(strings.TrimSpace(entry.Specialty), specialty)
	}
}

// Recalculate recomputes a facility queue without mutating membership, for
// administrative repair. It returns the entries whose position or wait changed.
func (s *QueueService) Recalculate(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.Recalculate")
	defer span.End()

	changed, err := s.mutate(ctx, facilityID, "recalculate", nil, func(changed []*entities.QueueEntry) {
		if len(changed) == 0 {
			return
		}
		s.publishFacility(ctx, facilityID, entities.QueueEventTypeQueueUpdate, map[string]interface{}{
			"changed": len(changed),
		})
		s.broadcastDeltas(ctx, changed, "")
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return changed, nil
}

// GetStats returns aggregate statistics over the facility's waiting entries,
// served from cache when fresh
func (s *QueueService) GetStats(ctx context.Context, facilityID string) (*entities.QueueStats, error) {
	key := providers.StatsCacheKey(facilityID)
	if stats, ok := s.cachedStats(ctx, key); ok {
		return stats, nil
	}

	// Computing under the facility lock keeps a stats snapshot from straddling
	// a mutation and being cached after that mutation's invalidation.
	unlock, err := s.lockFacility(ctx, facilityID, "get stats")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if stats, ok := s.cachedStats(ctx, key); ok {
		return stats, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	waiting, err := s.repo.ListWaiting(readCtx, facilityID)
	if err != nil {
		return nil, storeError("list waiting entries", err)
	}

	stats := BuildQueueStats(facilityID, waiting, s.clock())
	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, data, s.statsTTLSeconds); err != nil {
				observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Failed to cache queue stats")
			}
		}
	}
	return stats, nil
}

func (s *QueueService) cachedStats(ctx context.Context, key string) (*entities.QueueStats, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Stats cache read failed")
		}
		observability.RecordCacheMiss(ctx, s.metrics, "stats")
		return nil, false
	}

	var stats entities.QueueStats
	if err := json.Unmarshal(data, &stats); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Discarding malformed cached stats")
		return nil, false
	}
	observability.RecordCacheHit(ctx, s.metrics, "stats")
	return &stats, true
}

// BuildQueueStats aggregates the waiting entries of one facility
func BuildQueueStats(facilityID string, waiting []*entities.QueueEntry, now time.Time) *entities.QueueStats {
	stats := &entities.QueueStats{
		FacilityID:     facilityID,
		ByPriorityTier: make(map[string]int),
		BySpecialty:    make(map[string]int),
		GeneratedAt:    now,
	}

	totalWait := 0
	for _, entry := range waiting {
		if !entry.IsWaiting() {
			continue
		}
		stats.TotalWaiting++
		stats.ByPriorityTier[string(entry.PriorityTier)]++
		specialty := entry.Specialty
		if specialty == "" {
			specialty = entities.UnassignedSpecialty
		}
		stats.BySpecialty[specialty]++
		totalWait += entry.EstimatedWaitMinutes
	}

	if stats.TotalWaiting > 0 {
		avg := float64(totalWait) / float64(stats.TotalWaiting)
		stats.AverageWaitMinutes = math.Round(avg*10) / 10
	}
	return stats
}

// mutate runs fn followed by a facility recompute as one unit under the
// facility lock. A caller that gives up while waiting for the lock abandons
// the operation; once the lock is held the work runs to completion, bounded
// by the store timeout. When the repository supports transactions the unit is
// atomic.
func (s *QueueService) mutate(
	ctx context.Context,
	facilityID, operation string,
	fn func(ctx context.Context, repo repositories.QueueRepository) error,
	emit func(changed []*entities.QueueEntry),
) ([]*entities.QueueEntry, error) {
	unlock, err := s.lockFacility(ctx, facilityID, operation)
	if err != nil {
		return nil, err
	}
	defer unlock()

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	var changed []*entities.QueueEntry
	unit := func(ctx context.Context, repo repositories.QueueRepository) error {
		if fn != nil {
			if err := fn(ctx, repo); err != nil {
				return err
			}
		}
		start := time.Now()
		var err error
		changed, err = s.recalculator.Recompute(ctx, repo, facilityID)
		observability.RecordRecompute(ctx, s.metrics, time.Since(start), len(changed))
		return err
	}

	if tx, ok := s.repo.(repositories.Transactor); ok {
		err = tx.WithinTransaction(opCtx, unit)
	} else {
		err = unit(opCtx, s.repo)
	}
	if errors.Is(err, errNothingToCall) {
		return nil, err
	}
	if err != nil {
		return nil, storeError(operation, err)
	}

	s.invalidateStats(opCtx, facilityID)
	observability.RecordQueueMutation(ctx, s.metrics, operation)

	// Events are queued before the lock is released so subscribers observe
	// one facility's mutations in commit order.
	if emit != nil {
		emit(changed)
	}
	return changed, nil
}

// lockFacility acquires the facility lock. A caller deadline that expires while
// another mutation holds the facility surfaces as the store being unavailable;
// a cancelled caller gets its own context error back.
func (s *QueueService) lockFacility(ctx context.Context, facilityID, operation string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, facilityID)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apperrors.NewStoreUnavailableError(operation+": facility queue busy", err)
	}
	return unlock, err
}

func (s *QueueService) invalidateStats(ctx context.Context, facilityID string) {
	if s.cache == nil {
		return
	}
	key := providers.StatsCacheKey(facilityID)
	if err := s.cache.Delete(ctx, key); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Str("key", key).Msg("Failed to invalidate queue stats")
	}
}

// storeError keeps domain errors intact and classifies everything else as the
// store being unavailable
func storeError(operation string, err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Type {
		case apperrors.ErrorTypeNotFound,
			apperrors.ErrorTypeValidation,
			apperrors.ErrorTypeConflict,
			apperrors.ErrorTypeInvalidTransition,
			apperrors.ErrorTypeStoreUnavailable:
			return appErr
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStoreUnavailableError(operation+": queue store timed out", err)
	}
	return apperrors.NewStoreUnavailableError(operation+": queue store failed", err)
}

// pick returns the recomputed copy of target when the recompute touched it
func pick(changed []*entities.QueueEntry, target *entities.QueueEntry) *entities.QueueEntry {
	for _, entry := range changed {
		if entry.ID == target.ID {
			return entry
		}
	}
	return target
}

func (s *QueueService) broadcastDeltas(ctx context.Context, changed []*entities.QueueEntry, skipID string) {
	for _, entry := range changed {
		if entry.ID == skipID {
			continue
		}
		s.publishPatient(ctx, entry, entities.QueueEventTypePosition)
	}
}

func (s *QueueService) publishFacility(ctx context.Context, facilityID string, eventType entities.QueueEventType, payload map[string]interface{}) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.PublishToFacility(ctx, facilityID, eventType, payload); err != nil {
		observability.RecordBroadcastFailure(ctx, s.metrics, string(eventType))
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("facility_id", facilityID).
			Str("event_type", string(eventType)).
			Msg("Failed to broadcast facility event")
	}
}

func (s *QueueService) publishPatient(ctx context.Context, entry *entities.QueueEntry, eventType entities.QueueEventType) {
	s.publishPatientPayload(ctx, entry.FacilityID, entry.PatientID, eventType, entities.EntryPayload(entry))
}

func (s *QueueService) publishPatientPayload(ctx context.Context, facilityID, patientID string, eventType entities.QueueEventType, payload map[string]interface{}) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.PublishToPatient(ctx, facilityID, patientID, eventType, payload); err != nil {
		observability.RecordBroadcastFailure(ctx, s.metrics, string(eventType))
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("patient_id", patientID).
			Str("event_type", string(eventType)).
			Msg("Failed to broadcast patient event")
	}
}
