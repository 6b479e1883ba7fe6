package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

func pendingAt(provider uuid.UUID, date scheduling.Date, start string, expires time.Time) *appointment.Appointment {
	st := scheduling.MustTimeOfDay(start)
	return &appointment.Appointment{
		ID: uuid.New(), ProviderID: provider, ServiceID: uuid.New(), UserID: uuid.New(),
		Date: date, StartTime: st, EndTime: st.Add(30),
		Status: appointment.StatusPending, PaymentStatus: appointment.PaymentPending,
		ServicePaymentStatus: appointment.ServicePaymentPending,
		MaxReschedules:       2,
		ExpiresAt:            &expires,
	}
}

func TestWithinDayDiscardsWritesOnError(t *testing.T) {
	repo := New().Appointments()
	ctx := context.Background()
	provider := uuid.New()
	date := scheduling.MustDate("2026-10-19")
	appt := pendingAt(provider, date, "10:00", time.Now().Add(time.Hour))

	boom := errors.New("boom")
	err := repo.WithinDay(ctx, provider, date, func(tx appointment.DayTx) error {
		require.NoError(t, tx.Insert(ctx, appt))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetAppointmentByID(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestInsertRejectsTakenStart(t *testing.T) {
	repo := New().Appointments()
	ctx := context.Background()
	provider := uuid.New()
	date := scheduling.MustDate("2026-10-19")
	later := time.Now().Add(time.Hour)

	err := repo.WithinDay(ctx, provider, date, func(tx appointment.DayTx) error {
		if err := tx.Insert(ctx, pendingAt(provider, date, "10:00", later)); err != nil {
			return err
		}
		return tx.Insert(ctx, pendingAt(provider, date, "10:00", later))
	})
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)

	err = repo.WithinDay(ctx, provider, date, func(tx appointment.DayTx) error {
		return tx.Insert(ctx, pendingAt(uuid.New(), date, "11:00", later))
	})
	assert.Error(t, err, "writes are confined to the locked day")
}

func TestStalePendingLeavesOccupancy(t *testing.T) {
	repo := New().Appointments()
	ctx := context.Background()
	provider := uuid.New()
	date := scheduling.MustDate("2026-10-19")
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	stale := pendingAt(provider, date, "10:00", now.Add(-time.Minute))
	fresh := pendingAt(provider, date, "11:00", now.Add(time.Minute))
	require.NoError(t, repo.WithinDay(ctx, provider, date, func(tx appointment.DayTx) error {
		if err := tx.Insert(ctx, stale); err != nil {
			return err
		}
		return tx.Insert(ctx, fresh)
	}))

	occupied, err := repo.ActiveOccupancy(ctx, provider, date, now)
	require.NoError(t, err)
	require.Len(t, occupied, 1)
	assert.Equal(t, "11:00", occupied[0].StartTime)

	expired, err := repo.FindExpiredPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	require.NoError(t, repo.WithinDay(ctx, provider, date, func(tx appointment.DayTx) error {
		swept, err := tx.ExpirePending(ctx, now)
		require.NoError(t, err)
		assert.Len(t, swept, 1)
		return nil
	}))
	got, err := repo.GetAppointmentByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, appointment.InitiatorSystem, *got.CancelledBy)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	repo := New().Appointments()
	ctx := context.Background()
	provider := uuid.New()
	date := scheduling.MustDate("2026-10-19")
	appt := pendingAt(provider, date, "10:00", time.Now().Add(time.Hour))
	require.NoError(t, repo.WithinDay(ctx, provider, date, func(tx appointment.DayTx) error {
		return tx.Insert(ctx, appt)
	}))

	change := appointment.StatusChange{From: appointment.StatusPending, To: appointment.StatusConfirmed, Payment: appointment.PaymentPending}
	updated, err := repo.UpdateStatus(ctx, appt.ID, change)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, updated.Status)

	_, err = repo.UpdateStatus(ctx, appt.ID, change)
	assert.ErrorIs(t, err, appointment.ErrConcurrentModification)
}

func TestLockerSerializesPerKey(t *testing.T) {
	locker := NewLocker()
	var (
		wg      sync.WaitGroup
		running int32
		maxSeen int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "slot", func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, locker.locks)
}
