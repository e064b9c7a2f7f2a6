package appointment

import (
	"time"

	"github.com/google/uuid"
)

// MaxRecurrenceWeeks caps one generation batch at two years of weekly slots.
const MaxRecurrenceWeeks = 104

// RecurrenceExpander clones a base slot onto the same weekday in later weeks.
type RecurrenceExpander struct {
	now func() time.Time
}

func NewRecurrenceExpander(now func() time.Time) *RecurrenceExpander {
	return &RecurrenceExpander{now: now}
}

// NextOccurrenceOf returns the first day on or after from that falls on dow,
// moved weekOffset further weeks ahead.
func NextOccurrenceOf(from time.Time, dow time.Weekday, weekOffset int) time.Time {
	from = DateOf(from)
	delta := (int(dow) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta+7*weekOffset)
}

// Expand produces weeks 1..weekCount-1 after the base slot, each a fresh slot
// with no occupants. Week 0 is the base itself and is never produced. Weeks
// count from today, or from the base date when the base lies in the future,
// so no generated date can collide with the base.
func (e *RecurrenceExpander) Expand(base AppointmentSlot, weekCount int) ([]AppointmentSlot, error) {
	if weekCount < 1 || weekCount > MaxRecurrenceWeeks {
		return nil, ErrInvalidWeekCount
	}
	dow, err := base.Weekday()
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	anchor := DateOf(e.now())
	if base.Date.After(anchor) {
		anchor = DateOf(base.Date)
	}

	out := make([]AppointmentSlot, 0, weekCount-1)
	for week := 1; week < weekCount; week++ {
		out = append(out, AppointmentSlot{
			ID:                  uuid.New(),
			ProviderID:          base.ProviderID,
			Date:                NextOccurrenceOf(anchor, dow, week),
			StartTime:           base.StartTime,
			EndTime:             base.EndTime,
			SlotDurationMinutes: base.SlotDurationMinutes,
			Capacity:            base.Capacity,
			Occupants:           make(map[string][]uuid.UUID),
			IsActive:            true,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}
	return out, nil
}
