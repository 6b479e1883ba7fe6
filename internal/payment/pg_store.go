package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/db"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

const recordColumns = `id, appointment_id, axis, kind, amount, method, note, created_at`

type PgStore struct {
	db db.DBTX
}

func NewPgStore(conn db.DBTX) *PgStore {
	return &PgStore{db: conn}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		r            Record
		axis, kind   string
		method, note *string
	)
	if err := row.Scan(&r.ID, &r.AppointmentID, &axis, &kind, &r.Amount, &method, &note, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Axis = Axis(axis)
	r.Kind = Kind(kind)
	if method != nil {
		r.Method = *method
	}
	if note != nil {
		r.Note = *note
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	result := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) Apply(ctx context.Context, appointmentID uuid.UUID, change Change) (*appointment.Appointment, error) {
	var updated *appointment.Appointment

	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var cancelledBy *string
		if change.CancelledBy != nil {
			v := string(*change.CancelledBy)
			cancelledBy = &v
		}
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
			    payment_status = $3,
			    service_payment_status = $4,
			    payment_amount = $5,
			    service_payment_amount = $6,
			    refunded_amount = $7,
			    cancelled_by = COALESCE($8, cancelled_by),
			    cancel_reason = COALESCE($9, cancel_reason),
			    updated_at = now()
			WHERE id = $1
			  AND status = $10
			  AND payment_status = $11
			  AND service_payment_status = $12
			RETURNING `+appointment.Columns,
			appointmentID,
			string(change.Next.Status), string(change.Next.Payment), string(change.Next.Service),
			change.PaymentAmount, change.ServicePaymentAmount, change.RefundedAmount,
			cancelledBy, change.CancelReason,
			string(change.Expected.Status), string(change.Expected.Payment), string(change.Expected.Service),
		)
		a, err := appointment.ScanAppointment(row)
		if err != nil {
			if errors.Is(err, appointment.ErrAppointmentNotFound) {
				return appointment.ErrConcurrentModification
			}
			return fmt.Errorf("update payment state: %w", err)
		}

		rec := change.Record
		_, err = tx.Exec(ctx, `
			INSERT INTO payment_records (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, rec.ID, appointmentID, string(rec.Axis), string(rec.Kind), rec.Amount, rec.Method, rec.Note, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert payment record: %w", err)
		}

		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PgStore) ListRecords(ctx context.Context, appointmentID uuid.UUID) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM payment_records
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (s *PgStore) RecordsForDate(ctx context.Context, date scheduling.Date) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.appointment_id, r.axis, r.kind, r.amount, r.method, r.note, r.created_at
		FROM payment_records r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE a.date = $1
		ORDER BY r.created_at
	`, date.Time())
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}
