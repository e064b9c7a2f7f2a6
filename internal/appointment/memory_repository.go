package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process. It backs STORE=memory and the
// tests; InTx offers no rollback.
type MemoryRepository struct {
	mu           sync.RWMutex
	slots        map[uuid.UUID]*AppointmentSlot
	appointments map[uuid.UUID]*Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:        make(map[uuid.UUID]*AppointmentSlot),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) LoadSlots(_ context.Context, providerID uuid.UUID) ([]AppointmentSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectSlots(func(s *AppointmentSlot) bool {
		return s.ProviderID == providerID
	}), nil
}

func (r *MemoryRepository) LoadSlotsForDate(_ context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectSlots(func(s *AppointmentSlot) bool {
		return s.ProviderID == providerID && sameDate(s.Date, date)
	}), nil
}

func (r *MemoryRepository) collectSlots(keep func(*AppointmentSlot) bool) []AppointmentSlot {
	result := []AppointmentSlot{}
	for _, s := range r.slots {
		if keep(s) {
			result = append(result, r.withLiveOccupants(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].StartTime != result[j].StartTime {
			return result[i].StartTime < result[j].StartTime
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (r *MemoryRepository) withLiveOccupants(s *AppointmentSlot) AppointmentSlot {
	c := s.clone()
	c.Occupants = make(map[string][]uuid.UUID)
	for tp, ids := range s.Occupants {
		for _, id := range ids {
			if a, ok := r.appointments[id]; ok && !a.Status.Occupies() {
				continue
			}
			c.Occupants[tp] = append(c.Occupants[tp], id)
		}
	}
	return c
}

func (r *MemoryRepository) GetSlot(_ context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	c := r.withLiveOccupants(s)
	return &c, nil
}

func (r *MemoryRepository) SaveSlot(_ context.Context, s *AppointmentSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := s.clone()
	if existing, ok := r.slots[s.ID]; ok {
		c.Occupants = existing.clone().Occupants
	} else {
		c.Occupants = make(map[string][]uuid.UUID)
	}
	r.slots[s.ID] = &c
	return nil
}

func (r *MemoryRepository) DeleteSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(r.slots, id)
	for _, a := range r.appointments {
		if a.SlotID == id {
			a.SlotID = uuid.Nil
		}
	}
	return nil
}

func (r *MemoryRepository) AddOccupant(_ context.Context, slotID uuid.UUID, timePoint string, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	s.addOccupant(timePoint, appointmentID)
	return nil
}

func (r *MemoryRepository) RemoveOccupant(_ context.Context, slotID, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[slotID]; ok {
		s.removeOccupant(appointmentID)
	}
	return nil
}

func (r *MemoryRepository) LoadAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	c := a.clone()
	return &c, nil
}

func (r *MemoryRepository) SaveAppointment(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := appt.clone()
	r.appointments[appt.ID] = &c
	return nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	for _, s := range r.slots {
		s.removeOccupant(id)
	}
	return nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			all = append(all, a.clone())
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []Appointment{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *MemoryRepository) FindExpiredPending(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusPending && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			result = append(result, a.clone())
		}
	}
	return result, nil
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return fn(ctx, r)
}
