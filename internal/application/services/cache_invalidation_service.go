package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

// CacheInvalidationService drops cached facility stats when queue events
// arrive from the bus, so instances with a process-local cache observe
// mutations made by their peers
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelQueueUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to queue updates: %w", err)
	}

	go s.processEvents(eventChan)
	observability.GetLogger().Info().Msg("Cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	observability.GetLogger().Info().Msg("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.QueueEvent) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *CacheInvalidationService) handleEvent(event *entities.QueueEvent) {
	if event.FacilityID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.InvalidateFacilityStats(ctx, event.FacilityID); err != nil {
		observability.GetLogger().Warn().Err(err).
			Str("facility_id", event.FacilityID).
			Str("event_type", string(event.EventType)).
			Msg("Failed to invalidate facility stats")
	}
}

// InvalidateFacilityStats drops the cached stats of one facility
func (s *CacheInvalidationService) InvalidateFacilityStats(ctx context.Context, facilityID string) error {
	if err := s.cache.Delete(ctx, providers.StatsCacheKey(facilityID)); err != nil {
		return fmt.Errorf("failed to invalidate stats for facility %s: %w", facilityID, err)
	}
	return nil
}
