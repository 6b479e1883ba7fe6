package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/payment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type PaymentStore struct {
	s *Store
}

func (p *PaymentStore) Apply(ctx context.Context, appointmentID uuid.UUID, change payment.Change) (*appointment.Appointment, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	a, ok := p.s.appointments[appointmentID]
	if !ok || a.State() != change.Expected {
		return nil, appointment.ErrConcurrentModification
	}
	a.Status = change.Next.Status
	a.PaymentStatus = change.Next.Payment
	a.ServicePaymentStatus = change.Next.Service
	a.PaymentAmount = change.PaymentAmount
	a.ServicePaymentAmount = change.ServicePaymentAmount
	a.RefundedAmount = change.RefundedAmount
	if change.CancelledBy != nil {
		a.CancelledBy = change.CancelledBy
	}
	if change.CancelReason != nil {
		a.CancelReason = change.CancelReason
	}
	a.UpdatedAt = time.Now().UTC()

	p.s.appointments[appointmentID] = a
	p.s.records = append(p.s.records, change.Record)
	return &a, nil
}

func (p *PaymentStore) ListRecords(ctx context.Context, appointmentID uuid.UUID) ([]payment.Record, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	out := []payment.Record{}
	for _, r := range p.s.records {
		if r.AppointmentID == appointmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *PaymentStore) RecordsForDate(ctx context.Context, date scheduling.Date) ([]payment.Record, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	out := []payment.Record{}
	for _, r := range p.s.records {
		if a, ok := p.s.appointments[r.AppointmentID]; ok && a.Date == date {
			out = append(out, r)
		}
	}
	return out, nil
}
