package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var columnNames = []string{
	"id", "provider_id", "service_id", "user_id", "date", "start_time", "end_time",
	"status", "payment_status", "service_payment_status",
	"payment_amount", "service_payment_amount", "refunded_amount",
	"confirmation_number", "reschedule_count", "max_reschedules",
	"cancelled_by", "cancel_reason", "expires_at", "created_at", "updated_at",
}

func appointmentRow(rows *pgxmock.Rows, id uuid.UUID, status string) *pgxmock.Rows {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, uuid.New(), uuid.New(), uuid.New(),
		time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), "10:00", "10:30",
		status, "pending", "pending",
		int64(0), int64(0), int64(0),
		"DC-20261019-ABC123", int32(0), int32(2),
		(*string)(nil), (*string)(nil), (*time.Time)(nil), now, now,
	)
}

func TestPgRepositoryGetAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()
	mock.ExpectQuery("FROM appointments").WithArgs(id).
		WillReturnRows(appointmentRow(pgxmock.NewRows(columnNames), id, "confirmed"))

	a, err := repo.GetAppointmentByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
	assert.Equal(t, "2026-10-19", a.Date.String())
	assert.Equal(t, 30, a.DurationMinutes())
	assert.Equal(t, 2, a.MaxReschedules)
	assert.Nil(t, a.CancelledBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetAppointmentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM appointments").WithArgs(id).WillReturnRows(pgxmock.NewRows(columnNames))

	_, err = NewPgRepository(mock).GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryUpdateStatusStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "confirmed", "pending", "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(columnNames))

	_, err = NewPgRepository(mock).UpdateStatus(context.Background(), id, StatusChange{
		From: StatusPending, To: StatusConfirmed, Payment: PaymentPending,
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryWithinDayLocksAndCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	provider := uuid.New()
	date := scheduling.MustDate("2026-10-19")

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("appointments:" + provider.String() + ":2026-10-19").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT id, start_time, end_time").
		WithArgs(provider, date.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_time", "end_time"}).
			AddRow(uuid.New(), strPtr("09:00"), strPtr("09:30")).
			AddRow(uuid.New(), (*string)(nil), strPtr("11:00")))
	mock.ExpectCommit()

	var occupied []scheduling.Occupancy
	err = NewPgRepository(mock).WithinDay(context.Background(), provider, date, func(tx DayTx) error {
		var err error
		occupied, err = tx.ActiveOccupancy(context.Background())
		return err
	})
	require.NoError(t, err)
	require.Len(t, occupied, 2)
	assert.Equal(t, "09:00", occupied[0].StartTime)
	assert.Equal(t, "", occupied[1].StartTime, "null times reach the detector as empty")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryInsertUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	provider := uuid.New()
	date := scheduling.MustDate("2026-10-19")
	appt := &Appointment{
		ID: uuid.New(), ProviderID: provider, ServiceID: uuid.New(), UserID: uuid.New(),
		Date: date, StartTime: scheduling.MustTimeOfDay("10:00"), EndTime: scheduling.MustTimeOfDay("10:30"),
		Status: StatusPending, PaymentStatus: PaymentPending, ServicePaymentStatus: ServicePaymentPending,
	}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_idx"})
	mock.ExpectRollback()

	err = NewPgRepository(mock).WithinDay(context.Background(), provider, date, func(tx DayTx) error {
		return tx.Insert(context.Background(), appt)
	})
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryWithinDayRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = NewPgRepository(mock).WithinDay(context.Background(), uuid.New(), scheduling.MustDate("2026-10-19"), func(tx DayTx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
