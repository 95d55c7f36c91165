package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

func TestFindSlots_SlicesIntoStandardDurations(t *testing.T) {
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	slots := FindSlots("w1", []Interval{{Start: start, End: end}}, Criteria{
		Earliest: start, Latest: end, Urgency: domain.UrgencyNormal,
	}, 10)
	require.Len(t, slots, 4) // 2h / 30min
	assert.Equal(t, start, slots[0].Start)
}

func TestFindSlots_EmergencyEmitsOneContiguousSlot(t *testing.T) {
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	slots := FindSlots("w1", []Interval{{Start: start, End: end}}, Criteria{
		Earliest: start, Latest: end, Urgency: domain.UrgencyEmergency,
	}, 10)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Emergency)
	assert.Equal(t, end, slots[0].End)
}

func TestFindSlots_PreferredSortedFirstWithinDay(t *testing.T) {
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC) // Monday
	end := start.Add(4 * time.Hour)
	pref := &domain.TimeWindow{Weekday: time.Monday, StartHour: 12, EndHour: 13}
	slots := FindSlots("w1", []Interval{{Start: start, End: end}}, Criteria{
		Earliest: start, Latest: end, Urgency: domain.UrgencyNormal, PreferredWindow: pref,
	}, 10)
	require.NotEmpty(t, slots)
	assert.True(t, slots[0].Preferred)
}

func TestSubtractBusy_RemovesOverlap(t *testing.T) {
	open := []Interval{{Start: time.Unix(0, 0), End: time.Unix(1000, 0)}}
	busy := []Interval{{Start: time.Unix(400, 0), End: time.Unix(600, 0)}}
	result := SubtractBusy(open, busy)
	require.Len(t, result, 2)
	assert.Equal(t, time.Unix(0, 0), result[0].Start)
	assert.Equal(t, time.Unix(400, 0), result[0].End)
	assert.Equal(t, time.Unix(600, 0), result[1].Start)
	assert.Equal(t, time.Unix(1000, 0), result[1].End)
}

type fakeBookStore struct {
	bookedOnce bool
}

func (f *fakeBookStore) BookSlot(ctx context.Context, tenantID, jobID, workerID string, start, end time.Time, actor string) error {
	if f.bookedOnce {
		return apperr.Wrap(apperr.KindConflict, "slot_unavailable", "slot taken", apperr.ErrSlotUnavailable)
	}
	f.bookedOnce = true
	return nil
}

func TestBooker_SecondBookingConflicts(t *testing.T) {
	store := &fakeBookStore{}
	booker := NewBooker(store)
	slot := Slot{WorkerID: "w1", Start: time.Now(), End: time.Now().Add(30 * time.Minute)}

	err := booker.Book(context.Background(), "tenant-a", "job-1", slot, "system")
	require.NoError(t, err)

	err = booker.Book(context.Background(), "tenant-a", "job-2", slot, "system")
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
}
