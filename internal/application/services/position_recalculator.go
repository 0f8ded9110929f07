package services

import (
	"context"
	"math"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
)

// PositionRecalculator re-derives position and estimated wait for every
// waiting entry of a facility. Callers must hold the facility lock.
type PositionRecalculator struct {
	orderer *PriorityOrderer
	sampler *HistoricalServiceSampler
	clock   func() time.Time
}

// NewPositionRecalculator creates a new position recalculator
func NewPositionRecalculator(orderer *PriorityOrderer, sampler *HistoricalServiceSampler) *PositionRecalculator {
	return &PositionRecalculator{
		orderer: orderer,
		sampler: sampler,
		clock:   time.Now,
	}
}

// Recompute ranks the facility's waiting entries, persists the ones whose
// position or estimated wait changed in a single batch, and returns them.
// An empty queue is a no-op.
func (r *PositionRecalculator) Recompute(ctx context.Context, repo repositories.QueueRepository, facilityID string) ([]*entities.QueueEntry, error) {
	waiting, err := repo.ListWaiting(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return []*entities.QueueEntry{}, nil
	}

	avg, err := r.sampler.averageFrom(ctx, repo, facilityID, r.clock())
	if err != nil {
		return nil, err
	}

	ordered := r.orderer.Sort(waiting)
	changed := make([]*entities.QueueEntry, 0, len(ordered))
	for i, entry := range ordered {
		position := i + 1
		wait := EstimateWaitMinutes(position, avg)
		if entry.Position == position && entry.EstimatedWaitMinutes == wait {
			continue
		}
		updated := entry.Clone()
		updated.Position = position
		updated.EstimatedWaitMinutes = wait
		changed = append(changed, updated)
	}

	if len(changed) == 0 {
		return changed, nil
	}
	if err := repo.BatchUpdate(ctx, changed); err != nil {
		return nil, err
	}
	return changed, nil
}

// EstimateWaitMinutes returns (position-1) x average, rounded to the nearest minute
func EstimateWaitMinutes(position int, averageServiceMinutes float64) int {
	if position <= 1 {
		return 0
	}
	return int(math.Round(float64(position-1) * averageServiceMinutes))
}
