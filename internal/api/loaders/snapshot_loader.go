package loaders

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
)

// DefaultBatchWait is how long the loader collects keys before querying
const DefaultBatchWait = 10 * time.Millisecond

// SnapshotLoader batches the active-entry lookups of patients reconnecting to
// their streams. Results are never cached: every load observes the store.
type SnapshotLoader struct {
	loader *dataloader.Loader[string, []*entities.QueueEntry]
}

// NewSnapshotLoader creates a new snapshot loader
func NewSnapshotLoader(repo repositories.QueueRepository, wait time.Duration) *SnapshotLoader {
	if wait <= 0 {
		wait = DefaultBatchWait
	}

	batch := func(ctx context.Context, patientIDs []string) []*dataloader.Result[[]*entities.QueueEntry] {
		results := make([]*dataloader.Result[[]*entities.QueueEntry], len(patientIDs))
		entries, err := repo.ListActiveByPatients(ctx, patientIDs)

		byPatient := make(map[string][]*entities.QueueEntry, len(patientIDs))
		if err == nil {
			for _, e := range entries {
				byPatient[e.PatientID] = append(byPatient[e.PatientID], e)
			}
		}

		for i, patientID := range patientIDs {
			if err != nil {
				results[i] = &dataloader.Result[[]*entities.QueueEntry]{Error: err}
				continue
			}
			active := byPatient[patientID]
			if active == nil {
				active = []*entities.QueueEntry{}
			}
			results[i] = &dataloader.Result[[]*entities.QueueEntry]{Data: active}
		}
		return results
	}

	return &SnapshotLoader{
		loader: dataloader.NewBatchedLoader(batch,
			dataloader.WithCache[string, []*entities.QueueEntry](&dataloader.NoCache[string, []*entities.QueueEntry]{}),
			dataloader.WithWait[string, []*entities.QueueEntry](wait),
		),
	}
}

// ActiveEntries returns the waiting and in-progress entries of a patient
func (l *SnapshotLoader) ActiveEntries(ctx context.Context, patientID string) ([]*entities.QueueEntry, error) {
	return l.loader.Load(ctx, patientID)()
}
