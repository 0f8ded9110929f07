package services

import (
	"context"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
)

// DefaultServiceMinutes is the average service duration assumed for a
// facility that has completed nobody yet today
const DefaultServiceMinutes = 15.0

// HistoricalServiceSampler derives a facility's average service duration from
// the entries it completed on the same calendar day. Nothing is cached here.
type HistoricalServiceSampler struct {
	repo           repositories.QueueRepository
	defaultMinutes float64
}

// NewHistoricalServiceSampler creates a new sampler; a non-positive default
// falls back to DefaultServiceMinutes
func NewHistoricalServiceSampler(repo repositories.QueueRepository, defaultMinutes float64) *HistoricalServiceSampler {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultServiceMinutes
	}
	return &HistoricalServiceSampler{
		repo:           repo,
		defaultMinutes: defaultMinutes,
	}
}

// DefaultMinutes returns the fallback average
func (s *HistoricalServiceSampler) DefaultMinutes() float64 {
	return s.defaultMinutes
}

// AverageServiceMinutes returns the mean of end-start over the facility's
// entries completed on asOf's calendar day, or the default when there are none
func (s *HistoricalServiceSampler) AverageServiceMinutes(ctx context.Context, facilityID string, asOf time.Time) (float64, error) {
	return s.averageFrom(ctx, s.repo, facilityID, asOf)
}

func (s *HistoricalServiceSampler) averageFrom(ctx context.Context, repo repositories.QueueRepository, facilityID string, asOf time.Time) (float64, error) {
	completed, err := repo.ListCompletedToday(ctx, facilityID, asOf)
	if err != nil {
		return 0, err
	}

	var total time.Duration
	samples := 0
	for _, entry := range completed {
		if entry.StartTime == nil || entry.EndTime == nil {
			continue
		}
		if !sameDay(*entry.EndTime, asOf) {
			continue
		}
		d := entry.EndTime.Sub(*entry.StartTime)
		if d < 0 {
			continue
		}
		total += d
		samples++
	}

	if samples == 0 {
		return s.defaultMinutes, nil
	}
	return total.Minutes() / float64(samples), nil
}

// sameDay compares calendar days in asOf's location
func sameDay(t, asOf time.Time) bool {
	y1, m1, d1 := t.In(asOf.Location()).Date()
	y2, m2, d2 := asOf.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
