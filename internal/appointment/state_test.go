package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusNoShow, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusNoShow, StatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.CanReschedule(), s)
	}
	assert.True(t, StatusPending.CanReschedule())
	assert.True(t, StatusConfirmed.CanReschedule())
}

func TestPaymentAxesAreIndependent(t *testing.T) {
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentReservationPaid))
	assert.True(t, CanTransitionPayment(PaymentReservationPaid, PaymentFullyPaid))
	assert.True(t, CanTransitionPayment(PaymentReservationPaid, PaymentRefunded))
	assert.True(t, CanTransitionPayment(PaymentFullyPaid, PaymentRefunded))
	assert.False(t, CanTransitionPayment(PaymentPending, PaymentRefunded))
	assert.False(t, CanTransitionPayment(PaymentRefunded, PaymentReservationPaid))

	assert.True(t, CanTransitionServicePayment(ServicePaymentPending, ServicePaymentPaid))
	assert.True(t, CanTransitionServicePayment(ServicePaymentPending, ServicePaymentWaived))
	assert.False(t, CanTransitionServicePayment(ServicePaymentPaid, ServicePaymentWaived))
	assert.False(t, CanTransitionServicePayment(ServicePaymentWaived, ServicePaymentPaid))
}

func TestStateValidate(t *testing.T) {
	ok := []State{
		{StatusPending, PaymentPending, ServicePaymentPending},
		{StatusConfirmed, PaymentReservationPaid, ServicePaymentPending},
		{StatusCompleted, PaymentFullyPaid, ServicePaymentPaid},
		{StatusCancelled, PaymentReservationPaid, ServicePaymentPending},
		{StatusCancelled, PaymentRefunded, ServicePaymentPending},
		{StatusNoShow, PaymentReservationPaid, ServicePaymentWaived},
	}
	for _, s := range ok {
		assert.NoError(t, s.Validate(), "%+v", s)
	}

	bad := []State{
		{StatusConfirmed, PaymentRefunded, ServicePaymentPending},
		{StatusCompleted, PaymentRefunded, ServicePaymentPaid},
		{StatusCancelled, PaymentFullyPaid, ServicePaymentPending},
		{Status("archived"), PaymentPending, ServicePaymentPending},
		{StatusPending, PaymentStatus("partial"), ServicePaymentPending},
	}
	for _, s := range bad {
		assert.ErrorIs(t, s.Validate(), ErrIllegalState, "%+v", s)
	}
}

func TestAppointmentValidate(t *testing.T) {
	a := &Appointment{
		Status:               StatusConfirmed,
		PaymentStatus:        PaymentPending,
		ServicePaymentStatus: ServicePaymentPending,
		StartTime:            scheduling.MustTimeOfDay("10:00"),
		EndTime:              scheduling.MustTimeOfDay("10:30"),
		MaxReschedules:       2,
	}
	require.NoError(t, a.Validate(30))
	assert.ErrorIs(t, a.Validate(45), ErrIllegalState)

	a.RescheduleCount = 3
	assert.ErrorIs(t, a.Validate(30), ErrIllegalState)
	a.RescheduleCount = 0

	a.EndTime = a.StartTime
	assert.ErrorIs(t, a.Validate(0), ErrIllegalState)
}

func TestStaleAndExpiredHold(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	a := &Appointment{Status: StatusPending, PaymentStatus: PaymentPending, ExpiresAt: &past}
	assert.True(t, a.Stale(now))

	a.PaymentStatus = PaymentReservationPaid
	assert.False(t, a.Stale(now), "a paid reservation holds the slot")

	a.PaymentStatus = PaymentPending
	a.Status = StatusConfirmed
	assert.False(t, a.Stale(now))

	by, reason := InitiatorSystem, ReasonExpired
	a.Status = StatusCancelled
	a.CancelledBy, a.CancelReason = &by, &reason
	assert.True(t, a.ExpiredHold())

	staff := InitiatorStaff
	a.CancelledBy = &staff
	assert.False(t, a.ExpiredHold())
}

func TestConfirmationNumberFormat(t *testing.T) {
	n := newConfirmationNumber(scheduling.MustDate("2026-10-19"))
	assert.Regexp(t, `^DC-20261019-[0-9A-F]{6}$`, n)
}
