package services

import (
	"context"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
	apperrors "github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/errors"
)

// NoShowSweeper periodically marks waiting entries as no-show once they have
// been checked in for longer than the configured timeout
type NoShowSweeper struct {
	repo     repositories.QueueRepository
	queue    *QueueService
	after    time.Duration
	interval time.Duration
	clock    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNoShowSweeper creates a new sweeper. after must be positive for sweeps to
// do anything.
func NewNoShowSweeper(repo repositories.QueueRepository, queue *QueueService, after, interval time.Duration) *NoShowSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NoShowSweeper{
		repo:     repo,
		queue:    queue,
		after:    after,
		interval: interval,
		clock:    time.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins sweeping on a ticker until Stop is called
func (s *NoShowSweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(s.ctx); err != nil {
					observability.GetLogger().Error().Err(err).Msg("No-show sweep failed")
				}
			}
		}
	}()
	observability.GetLogger().Info().
		Dur("after", s.after).
		Dur("interval", s.interval).
		Msg("No-show sweeper started")
}

// Stop stops the sweeper and waits for an in-flight sweep to finish
func (s *NoShowSweeper) Stop() {
	s.cancel()
	<-s.done
	observability.GetLogger().Info().Msg("No-show sweeper stopped")
}

// SweepOnce marks every overdue waiting entry as no-show and returns how many
// were marked. Entries that changed state concurrently are skipped.
func (s *NoShowSweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.after <= 0 {
		return 0, nil
	}

	cutoff := s.clock().Add(-s.after)
	overdue, err := s.repo.ListWaitingCheckedInBefore(ctx, cutoff)
	if err != nil {
		return 0, storeError("list overdue entries", err)
	}

	marked := 0
	for _, entry := range overdue {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}
		if _, err := s.queue.MarkNoShow(ctx, entry.ID); err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeNotFound) || apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition) {
				continue
			}
			observability.GetLogger().Warn().Err(err).
				Str("entry_id", entry.ID).
				Str("facility_id", entry.FacilityID).
				Msg("Failed to mark entry as no-show")
			continue
		}
		marked++
	}

	if marked > 0 {
		observability.GetLogger().Info().Int("marked", marked).Time("cutoff", cutoff).Msg("Marked overdue entries as no-show")
	}
	return marked, nil
}
