package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type AppointmentRepo struct {
	s *Store
}

func (r *AppointmentRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *AppointmentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range r.s.appointments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Time().After(out[j].Date.Time())
		}
		return out[i].StartTime > out[j].StartTime
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AppointmentRepo) ListForProviderDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := r.s.dayLocked(providerID, date)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *AppointmentRepo) ActiveOccupancy(ctx context.Context, providerID uuid.UUID, date scheduling.Date, now time.Time) ([]scheduling.Occupancy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	occupied := []scheduling.Occupancy{}
	for _, a := range r.s.dayLocked(providerID, date) {
		if a.Status.IsActive() && !a.Stale(now) {
			occupied = append(occupied, occupancyOf(a))
		}
	}
	return occupied, nil
}

// WithinDay holds the store's write lock for the whole callback and only
// publishes the callback's writes when it returns nil.
func (r *AppointmentRepo) WithinDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date, fn func(tx appointment.DayTx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx := &dayTx{s: r.s, providerID: providerID, date: date, staged: map[uuid.UUID]appointment.Appointment{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, a := range tx.staged {
		r.s.appointments[id] = a
	}
	return nil
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, change appointment.StatusChange) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok || a.Status != change.From || a.PaymentStatus != change.Payment {
		return nil, appointment.ErrConcurrentModification
	}
	a.Status = change.To
	if change.CancelledBy != nil {
		a.CancelledBy = change.CancelledBy
	}
	if change.CancelReason != nil {
		a.CancelReason = change.CancelReason
	}
	a.UpdatedAt = time.Now().UTC()
	r.s.appointments[id] = a
	return &a, nil
}

func (r *AppointmentRepo) FindExpiredPending(ctx context.Context, now time.Time) ([]appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range r.s.appointments {
		if a.Stale(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (s *Store) dayLocked(providerID uuid.UUID, date scheduling.Date) []appointment.Appointment {
	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.ProviderID == providerID && a.Date == date {
			out = append(out, a)
		}
	}
	return out
}

func occupancyOf(a appointment.Appointment) scheduling.Occupancy {
	return scheduling.Occupancy{
		AppointmentID: a.ID.String(),
		StartTime:     a.StartTime.String(),
		EndTime:       a.EndTime.String(),
	}
}

type dayTx struct {
	s          *Store
	providerID uuid.UUID
	date       scheduling.Date
	staged     map[uuid.UUID]appointment.Appointment
}

// day merges staged writes over the committed rows of the locked day.
func (t *dayTx) day() []appointment.Appointment {
	merged := make(map[uuid.UUID]appointment.Appointment)
	for _, a := range t.s.dayLocked(t.providerID, t.date) {
		merged[a.ID] = a
	}
	for id, a := range t.staged {
		merged[id] = a
	}
	out := make([]appointment.Appointment, 0, len(merged))
	for _, a := range merged {
		if a.ProviderID == t.providerID && a.Date == t.date {
			out = append(out, a)
		}
	}
	return out
}

func (t *dayTx) ExpirePending(ctx context.Context, now time.Time) ([]appointment.Appointment, error) {
	by := appointment.InitiatorSystem
	reason := appointment.ReasonExpired

	var expired []appointment.Appointment
	for _, a := range t.day() {
		if !a.Stale(now) {
			continue
		}
		a.Status = appointment.StatusCancelled
		a.CancelledBy = &by
		a.CancelReason = &reason
		a.UpdatedAt = now
		t.staged[a.ID] = a
		expired = append(expired, a)
	}
	return expired, nil
}

func (t *dayTx) ActiveOccupancy(ctx context.Context) ([]scheduling.Occupancy, error) {
	occupied := []scheduling.Occupancy{}
	for _, a := range t.day() {
		if a.Status.IsActive() {
			occupied = append(occupied, occupancyOf(a))
		}
	}
	return occupied, nil
}

func (t *dayTx) Insert(ctx context.Context, a *appointment.Appointment) error {
	if a.ProviderID != t.providerID || a.Date != t.date {
		return fmt.Errorf("insert outside locked day %s/%s", t.providerID, t.date)
	}
	for _, other := range t.day() {
		if other.Status.IsActive() && other.StartTime == a.StartTime {
			return fmt.Errorf("%w: slot taken concurrently", scheduling.ErrSlotUnavailable)
		}
	}
	t.staged[a.ID] = *a
	return nil
}

func (t *dayTx) Move(ctx context.Context, m appointment.Move) (*appointment.Appointment, error) {
	a, ok := t.staged[m.ID]
	if !ok {
		if a, ok = t.s.appointments[m.ID]; !ok {
			return nil, appointment.ErrConcurrentModification
		}
	}
	if a.Status != m.Status || a.RescheduleCount != m.RescheduleCount {
		return nil, appointment.ErrConcurrentModification
	}
	if m.Date != t.date {
		return nil, fmt.Errorf("move outside locked day %s/%s", t.providerID, t.date)
	}
	for _, other := range t.day() {
		if other.ID != a.ID && other.Status.IsActive() && other.StartTime == m.StartTime {
			return nil, fmt.Errorf("%w: slot taken concurrently", scheduling.ErrSlotUnavailable)
		}
	}
	a.Date = m.Date
	a.StartTime = m.StartTime
	a.EndTime = m.EndTime
	a.RescheduleCount++
	a.UpdatedAt = time.Now().UTC()
	t.staged[a.ID] = a
	return &a, nil
}
