package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-booking-engine/internal/db"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

// Columns is the select list ScanAppointment expects.
const Columns = `id, provider_id, service_id, user_id, date, start_time, end_time,
	status, payment_status, service_payment_status,
	payment_amount, service_payment_amount, refunded_amount,
	confirmation_number, reschedule_count, max_reschedules,
	cancelled_by, cancel_reason, expires_at, created_at, updated_at`

// unpaidStale matches pending rows whose hold lapsed without a reservation payment.
const unpaidStale = `status = 'pending' AND payment_status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $%d`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

// ScanAppointment reads one row selected with the appointment column list.
// Other packages that update appointments in their own transactions reuse it.
func ScanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                               Appointment
		date                            time.Time
		start, end                      string
		status, payment, servicePay     string
		rescheduleCount, maxReschedules int32
		cancelledBy                     *string
	)

	err := row.Scan(
		&a.ID, &a.ProviderID, &a.ServiceID, &a.UserID,
		&date, &start, &end,
		&status, &payment, &servicePay,
		&a.PaymentAmount, &a.ServicePaymentAmount, &a.RefundedAmount,
		&a.ConfirmationNumber, &rescheduleCount, &maxReschedules,
		&cancelledBy, &a.CancelReason, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = scheduling.DateOf(date)
	if a.StartTime, err = scheduling.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("appointment %s start_time: %w", a.ID, err)
	}
	if a.EndTime, err = scheduling.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("appointment %s end_time: %w", a.ID, err)
	}
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(payment)
	a.ServicePaymentStatus = ServicePaymentStatus(servicePay)
	a.RescheduleCount = int(rescheduleCount)
	a.MaxReschedules = int(maxReschedules)
	if cancelledBy != nil {
		by := Initiator(*cancelledBy)
		a.CancelledBy = &by
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := ScanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectOccupancy(rows pgx.Rows) ([]scheduling.Occupancy, error) {
	defer rows.Close()

	result := []scheduling.Occupancy{}
	for rows.Next() {
		var (
			id         uuid.UUID
			start, end *string
		)
		if err := rows.Scan(&id, &start, &end); err != nil {
			return nil, err
		}
		result = append(result, scheduling.Occupancy{
			AppointmentID: id.String(),
			StartTime:     deref(start),
			EndTime:       deref(end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func initiatorText(i *Initiator) *string {
	if i == nil {
		return nil
	}
	s := string(*i)
	return &s
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+Columns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return ScanAppointment(row)
}

func (r *PgRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+Columns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY date DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by user: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListForProviderDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+Columns+`
		FROM appointments
		WHERE provider_id = $1 AND date = $2
		ORDER BY start_time
	`, providerID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("list appointments for provider day: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ActiveOccupancy(ctx context.Context, providerID uuid.UUID, date scheduling.Date, now time.Time) ([]scheduling.Occupancy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE provider_id = $1 AND date = $2
		  AND status IN ('pending', 'confirmed')
		  AND NOT (`+fmt.Sprintf(unpaidStale, 3)+`)
	`, providerID, date.Time(), now)
	if err != nil {
		return nil, fmt.Errorf("read occupancy: %w", err)
	}
	return collectOccupancy(rows)
}

func (r *PgRepository) WithinDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date, fn func(tx DayTx) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, dayLockKey(providerID, date)); err != nil {
			return fmt.Errorf("lock provider day: %w", err)
		}
		return fn(&pgDayTx{tx: tx, providerID: providerID, date: date})
	})
}

func dayLockKey(providerID uuid.UUID, date scheduling.Date) string {
	return "appointments:" + providerID.String() + ":" + date.String()
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_by = COALESCE($5, cancelled_by),
		    cancel_reason = COALESCE($6, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		  AND payment_status = $4
		RETURNING `+Columns,
		id, string(change.To), string(change.From), string(change.Payment),
		initiatorText(change.CancelledBy), change.CancelReason)

	a, err := ScanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrConcurrentModification
	}
	return a, err
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+Columns+`
		FROM appointments
		WHERE `+fmt.Sprintf(unpaidStale, 1)+`
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("find expired pending: %w", err)
	}
	return collectAppointments(rows)
}

type pgDayTx struct {
	tx         pgx.Tx
	providerID uuid.UUID
	date       scheduling.Date
}

func (t *pgDayTx) ExpirePending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_by = 'system',
		    cancel_reason = $4,
		    updated_at = now()
		WHERE provider_id = $1 AND date = $2
		  AND `+fmt.Sprintf(unpaidStale, 3)+`
		RETURNING `+Columns,
		t.providerID, t.date.Time(), now, ReasonExpired)
	if err != nil {
		return nil, fmt.Errorf("expire stale pending: %w", err)
	}
	return collectAppointments(rows)
}

func (t *pgDayTx) ActiveOccupancy(ctx context.Context) ([]scheduling.Occupancy, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE provider_id = $1 AND date = $2
		  AND status IN ('pending', 'confirmed')
	`, t.providerID, t.date.Time())
	if err != nil {
		return nil, fmt.Errorf("read occupancy: %w", err)
	}
	return collectOccupancy(rows)
}

func (t *pgDayTx) Insert(ctx context.Context, a *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (`+Columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		a.ID, a.ProviderID, a.ServiceID, a.UserID,
		a.Date.Time(), a.StartTime.String(), a.EndTime.String(),
		string(a.Status), string(a.PaymentStatus), string(a.ServicePaymentStatus),
		a.PaymentAmount, a.ServicePaymentAmount, a.RefundedAmount,
		a.ConfirmationNumber, int32(a.RescheduleCount), int32(a.MaxReschedules),
		initiatorText(a.CancelledBy), a.CancelReason, a.ExpiresAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: slot taken concurrently", scheduling.ErrSlotUnavailable)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgDayTx) Move(ctx context.Context, m Move) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    reschedule_count = reschedule_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		  AND reschedule_count = $6
		RETURNING `+Columns,
		m.ID, m.Date.Time(), m.StartTime.String(), m.EndTime.String(), string(m.Status), int32(m.RescheduleCount))

	a, err := ScanAppointment(row)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, ErrConcurrentModification
	case db.IsUniqueViolation(err):
		return nil, fmt.Errorf("%w: slot taken concurrently", scheduling.ErrSlotUnavailable)
	}
	return a, err
}
