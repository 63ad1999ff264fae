// Package memory holds process-local implementations of the appointment
// store and its change feed. The service falls back to them when
// CockroachDB or Redis is unavailable, and tests use them directly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mediconnect-backend/internal/domain"
)

// AppointmentRepository is an in-memory appointment store
type AppointmentRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Appointment
	now   func() time.Time
}

// NewAppointmentRepository creates an empty store
func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		items: make(map[string]*domain.Appointment),
		now:   time.Now,
	}
}

// Create stores a copy of appt, or returns domain.ErrSlotTaken when the
// doctor already has a live appointment in that slot
func (r *AppointmentRepository) Create(ctx context.Context, appt *domain.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotTakenLocked(appt.DoctorID, appt.Date, appt.Time) {
		return domain.ErrSlotTaken
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = r.now()
	}
	r.items[appt.ID] = appt.Clone()
	return nil
}

// GetByID returns a copy of the stored appointment or domain.ErrNotFound
func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return appt.Clone(), nil
}

// ListByDoctor returns the doctor's appointments ordered by date and time
func (r *AppointmentRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*domain.Appointment, error) {
	return r.list(func(a *domain.Appointment) bool { return a.DoctorID == doctorID }), nil
}

// ListByPatient returns the patient's appointments ordered by date and time
func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error) {
	return r.list(func(a *domain.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *AppointmentRepository) list(match func(*domain.Appointment) bool) []*domain.Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Appointment, 0)
	for _, a := range r.items {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// SlotTaken reports whether the doctor has a non-cancelled booking at date/time
func (r *AppointmentRepository) SlotTaken(ctx context.Context, doctorID, date, slot string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slotTakenLocked(doctorID, date, slot), nil
}

func (r *AppointmentRepository) slotTakenLocked(doctorID, date, slot string) bool {
	for _, a := range r.items {
		if a.DoctorID == doctorID && a.Date == date && a.Time == slot && a.Status != domain.StatusCancelled {
			return true
		}
	}
	return false
}

// TransitionStatus moves id from one status to another only if it is
// currently in from. It reports whether the write happened.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.AppointmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if appt.Status != from {
		return false, nil
	}
	now := r.now()
	appt.Status = to
	appt.UpdatedAt = &now
	return true, nil
}

// UpdateMailbox applies a partial update of the offer/answer fields
func (r *AppointmentRepository) UpdateMailbox(ctx context.Context, id string, upd domain.MailboxUpdate) (*domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	at := upd.At
	if at.IsZero() {
		at = r.now()
	}
	switch {
	case upd.Clear:
		appt.Offer, appt.Answer = nil, nil
	case upd.Field == domain.FieldOffer:
		d := upd.Descriptor
		appt.Offer = &d
		appt.CallInitiatedAt = &at
	case upd.Field == domain.FieldAnswer:
		d := upd.Descriptor
		appt.Answer = &d
		appt.CallAnsweredAt = &at
	}
	appt.UpdatedAt = &at
	return appt.Clone(), nil
}
