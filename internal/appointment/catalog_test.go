package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

func catalogSlot(t *testing.T, date, start, end string, dur int, c slot.Capacity) AppointmentSlot {
	return AppointmentSlot{
		ID:                  uuid.New(),
		Date:                mustDate(t, date),
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: dur,
		Capacity:            c,
		Occupants:           map[string][]uuid.UUID{},
		IsActive:            true,
	}
}

func TestBookableTimePointsSkipsFull(t *testing.T) {
	s := catalogSlot(t, "2025-03-01", "09:00", "11:00", 30, slot.Exclusive())
	s.Occupants["09:30"] = []uuid.UUID{uuid.New()}

	points := NewSlotCatalog(uuid.New(), []AppointmentSlot{s}).BookableTimePointsFor(mustDate(t, "2025-03-01"))

	times := make([]string, len(points))
	for i, p := range points {
		times[i] = p.Time
		assert.Equal(t, 1, p.SeatsRemaining)
		assert.Equal(t, slot.KindExclusive, p.CapacityKind)
	}
	assert.Equal(t, []string{"09:00", "10:00", "10:30"}, times)
}

func TestBookableTimePointsMergesOverlaps(t *testing.T) {
	a := catalogSlot(t, "2025-03-01", "09:00", "10:00", 30, slot.Shared(3))
	a.Occupants["09:00"] = []uuid.UUID{uuid.New()}
	b := catalogSlot(t, "2025-03-01", "09:00", "09:30", 30, slot.Exclusive())
	other := catalogSlot(t, "2025-03-02", "09:00", "10:00", 30, slot.Exclusive())
	off := catalogSlot(t, "2025-03-01", "12:00", "13:00", 30, slot.Exclusive())
	off.IsActive = false

	points := NewSlotCatalog(uuid.New(), []AppointmentSlot{a, b, other, off}).
		BookableTimePointsFor(mustDate(t, "2025-03-01"))

	require.Len(t, points, 2)
	assert.Equal(t, TimePointAvailability{Time: "09:00", SeatsRemaining: 3, CapacityKind: slot.KindShared}, points[0])
	assert.Equal(t, TimePointAvailability{Time: "09:30", SeatsRemaining: 3, CapacityKind: slot.KindShared}, points[1])
}

func TestOffGridOccupantsDoNotConsumeGridSeats(t *testing.T) {
	// after a duration edit an old 09:30 booking sits off the 60 minute grid
	s := catalogSlot(t, "2025-03-01", "09:00", "11:00", 60, slot.Shared(2))
	s.Occupants["09:30"] = []uuid.UUID{uuid.New()}

	points := NewSlotCatalog(uuid.New(), []AppointmentSlot{s}).BookableTimePointsFor(mustDate(t, "2025-03-01"))
	require.Len(t, points, 2)
	assert.Equal(t, "09:00", points[0].Time)
	assert.Equal(t, 2, points[0].SeatsRemaining)
	assert.Equal(t, []string{"09:30"}, s.OffGridTimePoints())
}

func TestBookableDates(t *testing.T) {
	full := catalogSlot(t, "2025-03-03", "09:00", "09:30", 30, slot.Exclusive())
	full.Occupants["09:00"] = []uuid.UUID{uuid.New()}
	inactive := catalogSlot(t, "2025-03-04", "09:00", "10:00", 30, slot.Exclusive())
	inactive.IsActive = false
	open1 := catalogSlot(t, "2025-03-05", "09:00", "10:00", 30, slot.Exclusive())
	open2 := catalogSlot(t, "2025-03-01", "09:00", "10:00", 30, slot.Exclusive())
	dup := catalogSlot(t, "2025-03-05", "14:00", "15:00", 30, slot.Exclusive())

	dates := NewSlotCatalog(uuid.New(), []AppointmentSlot{full, inactive, open1, open2, dup}).BookableDates()
	got := make([]string, len(dates))
	for i, d := range dates {
		got[i] = FormatDate(d)
	}
	assert.Equal(t, []string{"2025-03-01", "2025-03-05"}, got)

	empty := NewSlotCatalog(uuid.New(), nil).BookableDates()
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestResolve(t *testing.T) {
	date := mustDate(t, "2025-03-01")
	mover := uuid.New()
	a := catalogSlot(t, "2025-03-01", "09:00", "10:00", 30, slot.Exclusive())
	a.Occupants["09:00"] = []uuid.UUID{mover}
	b := catalogSlot(t, "2025-03-01", "09:00", "10:00", 30, slot.Exclusive())
	cat := NewSlotCatalog(uuid.New(), []AppointmentSlot{a, b})

	got, err := cat.Resolve(date, "09:00", uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	got, err = cat.Resolve(date, "09:00", mover)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = cat.Resolve(date, "09:15", uuid.Nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = cat.Resolve(date.Add(24*time.Hour), "09:00", uuid.Nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	single := NewSlotCatalog(uuid.New(), []AppointmentSlot{a})
	_, err = single.Resolve(date, "09:00", uuid.Nil)
	assert.ErrorIs(t, err, ErrSlotFull)
}
