package appointment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/internal/memstore"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingListener struct {
	mu     sync.Mutex
	freed  []appointment.Slot
	booked []uuid.UUID
}

func (l *recordingListener) SlotFreed(ctx context.Context, slot appointment.Slot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.freed = append(l.freed, slot)
	return nil
}

func (l *recordingListener) SlotBooked(ctx context.Context, appt appointment.Appointment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.booked = append(l.booked, appt.ID)
	return nil
}

type fixture struct {
	store    *memstore.Store
	svc      *appointment.Service
	clock    *testClock
	listener *recordingListener
	provider uuid.UUID
	cleaning uuid.UUID // 30 minutes
	crown    uuid.UUID // 60 minutes
	monday   scheduling.Date
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    memstore.New(),
		clock:    &testClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
		listener: &recordingListener{},
		provider: uuid.New(),
		cleaning: uuid.New(),
		crown:    uuid.New(),
		monday:   scheduling.MustDate("2026-10-19"),
	}

	cat := f.store.Catalog()
	breakStart, breakEnd := scheduling.MustTimeOfDay("12:00"), scheduling.MustTimeOfDay("13:00")
	require.NoError(t, cat.UpsertRule(ctx, scheduling.Rule{
		ProviderID:  f.provider,
		DayOfWeek:   time.Monday,
		StartTime:   scheduling.MustTimeOfDay("09:00"),
		EndTime:     scheduling.MustTimeOfDay("17:00"),
		BreakStart:  &breakStart,
		BreakEnd:    &breakEnd,
		IsAvailable: true,
	}))
	require.NoError(t, cat.UpsertService(ctx, catalog.Service{ID: f.cleaning, Name: "Cleaning", DurationMinutes: 30, Price: 500}))
	require.NoError(t, cat.UpsertService(ctx, catalog.Service{ID: f.crown, Name: "Crown", DurationMinutes: 60, Price: 2500}))

	cfg := config.Config{PendingTTL: 10 * time.Minute, MaxReschedules: 2}
	f.svc = appointment.NewService(f.store.Appointments(), cat, cfg, appointment.Deps{
		Recorder: audit.NewRecorder(f.store.Audit(), nil),
		Listener: f.listener,
		Clock:    f.clock.Now,
	})
	return f
}

func (f *fixture) book(t *testing.T, service uuid.UUID, start string) *appointment.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), appointment.BookRequest{
		ProviderID: f.provider,
		ServiceID:  service,
		UserID:     uuid.New(),
		Date:       f.monday,
		StartTime:  scheduling.MustTimeOfDay(start),
	})
	require.NoError(t, err)
	return appt
}

func slotStrings(slots []scheduling.TimeOfDay) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

func TestAvailableSlotsExcludeBreakAndBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.svc.AvailableSlots(ctx, f.provider, f.monday, f.cleaning)
	require.NoError(t, err)
	assert.Len(t, slots, 14)
	assert.NotContains(t, slotStrings(slots), "12:00")
	assert.NotContains(t, slotStrings(slots), "12:30")

	f.book(t, f.cleaning, "10:00")

	slots, err = f.svc.AvailableSlots(ctx, f.provider, f.monday, f.cleaning)
	require.NoError(t, err)
	assert.Len(t, slots, 13)
	assert.NotContains(t, slotStrings(slots), "10:00")

	// a 60 minute service cannot start at 09:30 either
	slots, err = f.svc.AvailableSlots(ctx, f.provider, f.monday, f.crown)
	require.NoError(t, err)
	assert.NotContains(t, slotStrings(slots), "09:30")
	assert.Contains(t, slotStrings(slots), "09:00")
}

func TestAvailableSlotsWithoutRuleIsEmpty(t *testing.T) {
	f := newFixture(t)
	slots, err := f.svc.AvailableSlots(context.Background(), f.provider, scheduling.MustDate("2026-10-20"), f.cleaning)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := func(date scheduling.Date, service uuid.UUID, start string) appointment.Slot {
		return appointment.Slot{ProviderID: f.provider, ServiceID: service, Date: date, StartTime: scheduling.MustTimeOfDay(start)}
	}

	open, err := f.svc.SlotOpen(ctx, slot(f.monday, f.cleaning, "10:00"))
	require.NoError(t, err)
	assert.True(t, open)

	held := f.book(t, f.cleaning, "10:00")
	open, err = f.svc.SlotOpen(ctx, slot(f.monday, f.cleaning, "10:00"))
	require.NoError(t, err)
	assert.False(t, open, "booked")

	// the crown would run into the 10:00 booking
	open, err = f.svc.SlotOpen(ctx, slot(f.monday, f.crown, "09:30"))
	require.NoError(t, err)
	assert.False(t, open)

	for name, s := range map[string]appointment.Slot{
		"break":     slot(f.monday, f.cleaning, "12:00"),
		"after end": slot(f.monday, f.cleaning, "17:00"),
		"day off":   slot(scheduling.MustDate("2026-10-20"), f.cleaning, "10:00"),
	} {
		open, err := f.svc.SlotOpen(ctx, s)
		require.NoError(t, err, name)
		assert.False(t, open, name)
	}

	_, err = f.svc.SlotOpen(ctx, slot(f.monday, uuid.New(), "10:00"))
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)

	_, err = f.svc.Cancel(ctx, held.ID, appointment.InitiatorPatient, "")
	require.NoError(t, err)
	open, err = f.svc.SlotOpen(ctx, slot(f.monday, f.cleaning, "10:00"))
	require.NoError(t, err)
	assert.True(t, open, "cancelled bookings release the slot")
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.cleaning, "10:00")

	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, appointment.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, appointment.ServicePaymentPending, appt.ServicePaymentStatus)
	assert.Equal(t, "10:30", appt.EndTime.String())
	assert.Equal(t, 2, appt.MaxReschedules)
	require.NotNil(t, appt.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), *appt.ExpiresAt)
	assert.Regexp(t, `^DC-20261019-`, appt.ConfirmationNumber)
	assert.Equal(t, []uuid.UUID{appt.ID}, f.listener.booked)
	assert.Equal(t, []string{audit.EventAppointmentCreated}, f.store.Audit().EventTypes())
}

func TestBookRejectsUnbookableStarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		date  scheduling.Date
		start string
	}{
		"inside break":   {f.monday, "12:00"},
		"off grid":       {f.monday, "10:15"},
		"after closing":  {f.monday, "17:00"},
		"before opening": {f.monday, "08:30"},
		"day off":        {scheduling.MustDate("2026-10-20"), "10:00"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, appointment.BookRequest{
				ProviderID: f.provider, ServiceID: f.cleaning, UserID: uuid.New(),
				Date: tc.date, StartTime: scheduling.MustTimeOfDay(tc.start),
			})
			assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)
		})
	}

	_, err := f.svc.Book(ctx, appointment.BookRequest{
		ProviderID: f.provider, ServiceID: f.cleaning, UserID: uuid.New(),
		Date: scheduling.MustDate("2026-10-20"), StartTime: scheduling.MustTimeOfDay("10:00"),
	})
	assert.ErrorIs(t, err, scheduling.ErrScheduleNotFound)

	_, err = f.svc.Book(ctx, appointment.BookRequest{
		ProviderID: f.provider, ServiceID: uuid.New(), UserID: uuid.New(),
		Date: f.monday, StartTime: scheduling.MustTimeOfDay("10:00"),
	})
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestBookRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.crown, "10:00")

	_, err := f.svc.Book(context.Background(), appointment.BookRequest{
		ProviderID: f.provider, ServiceID: f.cleaning, UserID: uuid.New(),
		Date: f.monday, StartTime: scheduling.MustTimeOfDay("10:30"),
	})
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)

	// adjacent intervals do not overlap
	f.book(t, f.cleaning, "11:00")
}

func TestConcurrentBookingsForOneSlot(t *testing.T) {
	f := newFixture(t)
	const attempts = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), appointment.BookRequest{
				ProviderID: f.provider, ServiceID: f.cleaning, UserID: uuid.New(),
				Date: f.monday, StartTime: scheduling.MustTimeOfDay("10:00"),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, refused)

	appts, err := f.svc.ListForProviderDay(context.Background(), f.provider, f.monday)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.cleaning, "10:00")

	_, err := f.svc.MarkCompleted(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition, "completion needs confirmation first")

	confirmed, err := f.svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, confirmed.Status)

	_, err = f.svc.Confirm(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	done, err := f.svc.MarkCompleted(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)

	_, err = f.svc.Cancel(ctx, appt.ID, appointment.InitiatorPatient, "")
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
	_, err = f.svc.Reschedule(ctx, appt.ID, f.monday, scheduling.MustTimeOfDay("14:00"))
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	assert.Equal(t, []string{
		audit.EventAppointmentCreated,
		audit.EventAppointmentConfirmed,
		audit.EventAppointmentCompleted,
	}, f.store.Audit().EventTypes())
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.cleaning, "10:00")

	_, err := f.svc.MarkNoShow(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	_, err = f.svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	noShow, err := f.svc.MarkNoShow(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, noShow.Status)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.cleaning, "10:00")

	_, err := f.svc.Cancel(ctx, appt.ID, appointment.Initiator("robot"), "")
	assert.ErrorIs(t, err, appointment.ErrInvalidInitiator)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, appointment.InitiatorPatient, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, appointment.InitiatorPatient, *cancelled.CancelledBy)
	assert.Equal(t, "feeling better", *cancelled.CancelReason)

	require.Len(t, f.listener.freed, 1)
	assert.Equal(t, appt.Slot(), f.listener.freed[0])

	slots, err := f.svc.AvailableSlots(ctx, f.provider, f.monday, f.cleaning)
	require.NoError(t, err)
	assert.Contains(t, slotStrings(slots), "10:00")

	_, err = f.svc.Cancel(ctx, appt.ID, appointment.InitiatorStaff, "")
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestRescheduleKeepsStatusAndEnforcesLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.cleaning, "10:00")
	_, err := f.svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(ctx, appt.ID, f.monday, scheduling.MustTimeOfDay("14:00"))
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, moved.Status)
	assert.Equal(t, "14:00", moved.StartTime.String())
	assert.Equal(t, "14:30", moved.EndTime.String())
	assert.Equal(t, 1, moved.RescheduleCount)

	moved, err = f.svc.Reschedule(ctx, appt.ID, f.monday, scheduling.MustTimeOfDay("15:00"))
	require.NoError(t, err)
	assert.Equal(t, 2, moved.RescheduleCount)

	_, err = f.svc.Reschedule(ctx, appt.ID, f.monday, scheduling.MustTimeOfDay("16:00"))
	assert.ErrorIs(t, err, appointment.ErrRescheduleLimitExceeded)

	assert.Len(t, f.listener.freed, 2, "each move frees the previous slot")
}

func TestRescheduleChecksTargetSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	crown := f.book(t, f.crown, "10:00")
	f.book(t, f.cleaning, "14:00")

	_, err := f.svc.Reschedule(ctx, crown.ID, f.monday, scheduling.MustTimeOfDay("13:30"))
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)

	_, err = f.svc.Reschedule(ctx, crown.ID, f.monday, scheduling.MustTimeOfDay("11:30"))
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable, "would run into the break")

	moved, err := f.svc.Reschedule(ctx, crown.ID, f.monday, scheduling.MustTimeOfDay("10:30"))
	require.NoError(t, err, "overlapping only its own booking is allowed")
	assert.Equal(t, "11:30", moved.EndTime.String())

	got, err := f.svc.Get(ctx, crown.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RescheduleCount)
}

func TestPendingBookingExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.cleaning, "10:00")

	f.clock.Advance(11 * time.Minute)

	_, err := f.svc.Confirm(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentExpired)

	got, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.True(t, got.ExpiredHold())

	_, err = f.svc.Confirm(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentExpired)
	assert.Contains(t, f.store.Audit().EventTypes(), audit.EventAppointmentExpired)
	assert.Len(t, f.listener.freed, 1)
}

func TestStalePendingDoesNotBlockNewBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, f.cleaning, "10:00")

	f.clock.Advance(10 * time.Minute)

	slots, err := f.svc.AvailableSlots(ctx, f.provider, f.monday, f.cleaning)
	require.NoError(t, err)
	assert.Contains(t, slotStrings(slots), "10:00")

	second := f.book(t, f.cleaning, "10:00")
	assert.NotEqual(t, first.ID, second.ID)

	old, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, old.ExpiredHold())
}

func TestExpirePendingAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, f.cleaning, "10:00")
	f.book(t, f.cleaning, "11:00")
	keep := f.book(t, f.cleaning, "14:00")
	_, err := f.svc.Confirm(ctx, keep.ID)
	require.NoError(t, err)

	n, err := f.svc.ExpirePendingAppointments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Hour)
	n, err = f.svc.ExpirePendingAppointments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.svc.Get(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	for _, start := range []string{"09:00", "15:00"} {
		_, err := f.svc.Book(ctx, appointment.BookRequest{
			ProviderID: f.provider, ServiceID: f.cleaning, UserID: user,
			Date: f.monday, StartTime: scheduling.MustTimeOfDay(start),
		})
		require.NoError(t, err)
	}
	f.book(t, f.cleaning, "10:00")

	appts, err := f.svc.ListByUser(ctx, user, 0, 0)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, "15:00", appts[0].StartTime.String())

	_, err = f.svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}
