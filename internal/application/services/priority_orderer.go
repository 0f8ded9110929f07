package services

import (
	"cmp"
	"slices"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
)

// PriorityOrderer defines the serve order of waiting entries: priority tier,
// then check-in time, then entry id so that equal timestamps stay deterministic.
type PriorityOrderer struct{}

// NewPriorityOrderer creates a new priority orderer
func NewPriorityOrderer() *PriorityOrderer {
	return &PriorityOrderer{}
}

// Compare returns a negative number when a is served before b, positive when
// after, and zero only for entries with the same id.
func (o *PriorityOrderer) Compare(a, b *entities.QueueEntry) int {
	if c := cmp.Compare(a.PriorityTier.Rank(), b.PriorityTier.Rank()); c != 0 {
		return c
	}
	if c := a.CheckInTime.Compare(b.CheckInTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort returns the entries in serve order. The input slice is left untouched.
func (o *PriorityOrderer) Sort(entries []*entities.QueueEntry) []*entities.QueueEntry {
	ordered := slices.Clone(entries)
	slices.SortFunc(ordered, o.Compare)
	return ordered
}

// Rank returns the 1-based position of entry within set, or 0 when the entry
// is not part of the set. An entry's rank is one plus the number of entries
// ordered before it.
func (o *PriorityOrderer) Rank(entry *entities.QueueEntry, set []*entities.QueueEntry) int {
	found := false
	rank := 1
	for _, other := range set {
		if other.ID == entry.ID {
			found = true
			continue
		}
		if o.Compare(other, entry) < 0 {
			rank++
		}
	}
	if !found {
		return 0
	}
	return rank
}

// First returns the entry ranked first among those accepted by keep, or nil
func (o *PriorityOrderer) First(entries []*entities.QueueEntry, keep func(*entities.QueueEntry) bool) *entities.QueueEntry {
	var best *entities.QueueEntry
	for _, entry := range entries {
		if keep != nil && !keep(entry) {
			continue
		}
		if best == nil || o.Compare(entry, best) < 0 {
			best = entry
		}
	}
	return best
}
