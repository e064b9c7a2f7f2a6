package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

// TimePointAvailability is one bookable time-point as shown to patients.
type TimePointAvailability struct {
	Time           string    `json:"time"`
	SeatsRemaining int       `json:"seats_remaining"`
	CapacityKind   slot.Kind `json:"capacity_kind"`
}

// SlotCatalog answers "what can be booked" for one provider. It is a read
// model over a snapshot of slots; it never mutates them.
type SlotCatalog struct {
	providerID uuid.UUID
	slots      []AppointmentSlot
}

func NewSlotCatalog(providerID uuid.UUID, slots []AppointmentSlot) *SlotCatalog {
	return &SlotCatalog{providerID: providerID, slots: slots}
}

func (c *SlotCatalog) ProviderID() uuid.UUID { return c.providerID }

// occupantCount counts seats taken at tp, ignoring exclude.
func occupantCount(s *AppointmentSlot, tp string, exclude uuid.UUID) int {
	n := 0
	for _, id := range s.Occupants[tp] {
		if id != exclude {
			n++
		}
	}
	return n
}

// BookableTimePointsFor unions the open time-points of every active slot on
// date. Overlapping windows yield one entry per distinct time with their
// remaining seats summed.
func (c *SlotCatalog) BookableTimePointsFor(date time.Time) []TimePointAvailability {
	byTime := make(map[string]*TimePointAvailability)
	for i := range c.slots {
		s := &c.slots[i]
		if !s.IsActive || !sameDate(s.Date, date) {
			continue
		}
		for _, tp := range s.TimePoints() {
			left := s.Capacity.RemainingSeats(occupantCount(s, tp, uuid.Nil))
			if left == 0 {
				continue
			}
			if cur, ok := byTime[tp]; ok {
				cur.SeatsRemaining += left
				continue
			}
			byTime[tp] = &TimePointAvailability{Time: tp, SeatsRemaining: left, CapacityKind: s.Capacity.Kind}
		}
	}

	result := make([]TimePointAvailability, 0, len(byTime))
	for _, v := range byTime {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result
}

// BookableDates lists, ascending, every date with at least one open time-point.
func (c *SlotCatalog) BookableDates() []time.Time {
	seen := make(map[string]bool)
	var dates []time.Time
	for i := range c.slots {
		s := &c.slots[i]
		key := FormatDate(s.Date)
		if !s.IsActive || seen[key] {
			continue
		}
		if c.hasOpenPoint(s) {
			seen[key] = true
			dates = append(dates, DateOf(s.Date))
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if dates == nil {
		return []time.Time{}
	}
	return dates
}

func (c *SlotCatalog) hasOpenPoint(s *AppointmentSlot) bool {
	for _, tp := range s.TimePoints() {
		if !s.Capacity.IsFull(occupantCount(s, tp, uuid.Nil)) {
			return true
		}
	}
	return false
}

// Resolve picks the active slot on date whose grid holds tp and still has a
// seat once exclude is left out. It fails with ErrSlotNotFound when no active
// slot offers tp and ErrSlotFull when every such slot is full.
func (c *SlotCatalog) Resolve(date time.Time, tp string, exclude uuid.UUID) (*AppointmentSlot, error) {
	found := false
	for i := range c.slots {
		s := &c.slots[i]
		if !s.IsActive || !sameDate(s.Date, date) || !s.HasTimePoint(tp) {
			continue
		}
		found = true
		if !s.Capacity.IsFull(occupantCount(s, tp, exclude)) {
			return s, nil
		}
	}
	if !found {
		return nil, ErrSlotNotFound
	}
	return nil, ErrSlotFull
}
