package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/memory"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
)

var baseTime = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newEntry(id string, tier entities.PriorityTier, checkIn time.Time) *entities.QueueEntry {
	return &entities.QueueEntry{
		ID:           id,
		FacilityID:   "fac-1",
		PatientID:    "patient-" + id,
		PriorityTier: tier,
		Status:       entities.QueueStatusWaiting,
		CheckInTime:  checkIn,
	}
}

// MockCacheProvider is an in-memory cache that records deletions
type MockCacheProvider struct {
	mu        sync.RWMutex
	data      map[string][]byte
	deleted   []string
	deleteErr error
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{
		data:    make(map[string][]byte),
		deleted: make([]string, 0),
	}
}

func (m *MockCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.data, key)
	return nil
}

func (m *MockCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MockCacheProvider) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

type publishedEvent struct {
	FacilityID string
	PatientID  string
	EventType  entities.QueueEventType
	Payload    map[string]interface{}
}

// RecordingBroadcaster captures every event it is asked to publish
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (b *RecordingBroadcaster) PublishToFacility(ctx context.Context, facilityID string, eventType entities.QueueEventType, payload map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{FacilityID: facilityID, EventType: eventType, Payload: payload})
	return b.err
}

func (b *RecordingBroadcaster) PublishToPatient(ctx context.Context, facilityID, patientID string, eventType entities.QueueEventType, payload map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{FacilityID: facilityID, PatientID: patientID, EventType: eventType, Payload: payload})
	return b.err
}

func (b *RecordingBroadcaster) Events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedEvent(nil), b.events...)
}

func (b *RecordingBroadcaster) Count(eventType entities.QueueEventType) int {
	n := 0
	for _, e := range b.Events() {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// MockEventBus delivers published events to in-process subscribers
type MockEventBus struct {
	mu          sync.Mutex
	subscribers map[string][]chan *entities.QueueEvent
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{subscribers: make(map[string][]chan *entities.QueueEvent)}
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.QueueEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers[channel] {
		ch <- event
	}
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *entities.QueueEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	return nil
}

func (m *MockEventBus) Close() error {
	return nil
}

var errStoreDown = errors.New("connection refused")

// gatedBroadcaster holds the first "called" publish until release is closed
type gatedBroadcaster struct {
	*RecordingBroadcaster
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func newGatedBroadcaster() *gatedBroadcaster {
	return &gatedBroadcaster{
		RecordingBroadcaster: &RecordingBroadcaster{},
		parked:               make(chan struct{}),
		release:              make(chan struct{}),
	}
}

func (b *gatedBroadcaster) PublishToPatient(ctx context.Context, facilityID, patientID string, eventType entities.QueueEventType, payload map[string]interface{}) error {
	if eventType == entities.QueueEventTypeCalled {
		b.once.Do(func() {
			close(b.parked)
			<-b.release
		})
	}
	return b.RecordingBroadcaster.PublishToPatient(ctx, facilityID, patientID, eventType, payload)
}

// slowStore is a transactional memory store whose transactions can stall on
// ListWaiting or fail BatchUpdate
type slowStore struct {
	*memory.QueueStore
	listDelay time.Duration
	listing   chan struct{}
	batchErr  error
}

func (s *slowStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.QueueRepository) error) error {
	return s.QueueStore.WithinTransaction(ctx, func(ctx context.Context, repo repositories.QueueRepository) error {
		return fn(ctx, &slowTx{QueueRepository: repo, store: s})
	})
}

type slowTx struct {
	repositories.QueueRepository
	store *slowStore
}

func (t *slowTx) ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	if t.store.listing != nil {
		select {
		case t.store.listing <- struct{}{}:
		default:
		}
	}
	if t.store.listDelay > 0 {
		select {
		case <-time.After(t.store.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.QueueRepository.ListWaiting(ctx, facilityID)
}

func (t *slowTx) BatchUpdate(ctx context.Context, entries []*entities.QueueEntry) error {
	if t.store.batchErr != nil {
		return t.store.batchErr
	}
	return t.QueueRepository.BatchUpdate(ctx, entries)
}

// lastPositions returns the position carried by each patient's latest position event
func lastPositions(events []publishedEvent) map[string]int {
	last := make(map[string]int)
	for _, e := range events {
		if e.EventType != entities.QueueEventTypePosition {
			continue
		}
		if position, ok := e.Payload["position"].(int); ok {
			last[e.PatientID] = position
		}
	}
	return last
}
