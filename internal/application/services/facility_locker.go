package services

import (
	"context"
	"sync"
)

// FacilityLocker hands out one mutual-exclusion scope per facility. Different
// facilities never contend; idle facilities are forgotten.
type FacilityLocker struct {
	mu    sync.Mutex
	locks map[string]*facilityLock
}

type facilityLock struct {
	sem  chan struct{}
	refs int
}

// NewFacilityLocker creates a new facility locker
func NewFacilityLocker() *FacilityLocker {
	return &FacilityLocker{
		locks: make(map[string]*facilityLock),
	}
}

// Lock blocks until the facility is free or ctx is done. The returned
// function releases the lock and is safe to call more than once.
func (l *FacilityLocker) Lock(ctx context.Context, facilityID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	fl, ok := l.locks[facilityID]
	if !ok {
		fl = &facilityLock{sem: make(chan struct{}, 1)}
		l.locks[facilityID] = fl
	}
	fl.refs++
	l.mu.Unlock()

	select {
	case fl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(facilityID, fl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-fl.sem
			l.release(facilityID, fl)
		})
	}, nil
}

func (l *FacilityLocker) release(facilityID string, fl *facilityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl.refs--
	if fl.refs == 0 {
		delete(l.locks, facilityID)
	}
}

// Len returns the number of facilities currently locked or awaited
func (l *FacilityLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
