package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/application/services"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
)

func ids(entries []*entities.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestPriorityOrderer_Sort_TierThenCheckIn(t *testing.T) {
	orderer := services.NewPriorityOrderer()
	entries := []*entities.QueueEntry{
		newEntry("normal-1000", entities.PriorityTierNormal, at(10, 0)),
		newEntry("urgent-1005", entities.PriorityTierUrgent, at(10, 5)),
		newEntry("normal-0955", entities.PriorityTierNormal, at(9, 55)),
	}

	sorted := orderer.Sort(entries)

	assert.Equal(t, []string{"urgent-1005", "normal-0955", "normal-1000"}, ids(sorted))
	assert.Equal(t, "normal-1000", entries[0].ID, "input must not be reordered")
}

func TestPriorityOrderer_Sort_AllTiers(t *testing.T) {
	orderer := services.NewPriorityOrderer()
	entries := []*entities.QueueEntry{
		newEntry("low", entities.PriorityTierLow, at(8, 0)),
		newEntry("normal", entities.PriorityTierNormal, at(8, 0)),
		newEntry("semi", entities.PriorityTierSemiUrgent, at(8, 0)),
		newEntry("urgent", entities.PriorityTierUrgent, at(8, 0)),
		newEntry("emergency", entities.PriorityTierEmergency, at(11, 0)),
	}

	assert.Equal(t, []string{"emergency", "urgent", "semi", "normal", "low"}, ids(orderer.Sort(entries)))
}

func TestPriorityOrderer_Compare_TieBreaksOnID(t *testing.T) {
	orderer := services.NewPriorityOrderer()
	a := newEntry("a", entities.PriorityTierNormal, at(9, 0))
	b := newEntry("b", entities.PriorityTierNormal, at(9, 0))

	assert.Negative(t, orderer.Compare(a, b))
	assert.Positive(t, orderer.Compare(b, a))
	assert.Zero(t, orderer.Compare(a, a))
}

func TestPriorityOrderer_Rank(t *testing.T) {
	orderer := services.NewPriorityOrderer()
	set := []*entities.QueueEntry{
		newEntry("n1", entities.PriorityTierNormal, at(10, 0)),
		newEntry("u1", entities.PriorityTierUrgent, at(10, 5)),
		newEntry("n0", entities.PriorityTierNormal, at(9, 55)),
	}

	assert.Equal(t, 1, orderer.Rank(set[1], set))
	assert.Equal(t, 2, orderer.Rank(set[2], set))
	assert.Equal(t, 3, orderer.Rank(set[0], set))
	assert.Equal(t, 0, orderer.Rank(newEntry("absent", entities.PriorityTierLow, at(9, 0)), set))
}

func TestPriorityOrderer_First(t *testing.T) {
	orderer := services.NewPriorityOrderer()
	cardio := newEntry("cardio", entities.PriorityTierLow, at(9, 0))
	cardio.Specialty = "Cardiologia"
	set := []*entities.QueueEntry{
		newEntry("urgent", entities.PriorityTierUrgent, at(10, 0)),
		cardio,
	}

	assert.Equal(t, "urgent", orderer.First(set, nil).ID)
	assert.Equal(t, "cardio", orderer.First(set, func(e *entities.QueueEntry) bool {
		return e.Specialty == "Cardiologia"
	}).ID)
	assert.Nil(t, orderer.First(set, func(*entities.QueueEntry) bool { return false }))
	assert.Nil(t, orderer.First(nil, nil))
}
