package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking-engine/internal/api"
	"github.com/hackgods/dental-booking-engine/internal/app"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

func nextMonday() scheduling.Date {
	d := time.Now().UTC().AddDate(0, 0, 7)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return scheduling.DateOf(d)
}

func newClinic(t *testing.T) (*httptest.Server, simConfig) {
	t.Helper()
	a, err := app.Build(context.Background(), config.Config{
		Env:             "test",
		StoreBackend:    config.StoreMemory,
		RedisAddr:       "127.0.0.1:1",
		PendingTTL:      10 * time.Minute,
		LockTTL:         time.Second,
		CatalogCacheTTL: time.Minute,
		WaitlistWindow:  30 * time.Minute,
		MaxReschedules:  2,
	}, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(api.NewRouter(a.RouterConfig("test")))
	t.Cleanup(srv.Close)

	cfg := simConfig{
		BaseURL:      srv.URL,
		ProviderID:   uuid.New(),
		ServiceID:    uuid.New(),
		Date:         nextMonday(),
		Workers:      3,
		Racers:       6,
		BookingRatio: 1, ConfirmRatio: 1, CancelRatio: 1, ReadRatio: 1,
	}
	require.NoError(t, cfg.normalize())

	sim := newSimulator(cfg, srv.Client(), nil)
	status, err := sim.do(context.Background(), http.MethodPut, "/providers/"+cfg.ProviderID.String()+"/schedule/1", map[string]any{
		"start_time": "09:00", "end_time": "12:00", "is_available": true,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	status, err = sim.do(context.Background(), http.MethodPut, "/services/"+cfg.ServiceID.String(), map[string]any{
		"name": "Cleaning", "duration_minutes": 30, "price": 2000,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	return srv, cfg
}

func TestRaceBooksEachSlotOnce(t *testing.T) {
	srv, cfg := newClinic(t)
	sim := newSimulator(cfg, srv.Client(), nil)

	report, err := sim.Race(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Slots)
	assert.Equal(t, 36, report.Attempts)
	assert.Equal(t, 6, report.Created)
	assert.Equal(t, 30, report.Conflicts)
	assert.Zero(t, report.Errors)
	assert.Empty(t, report.DoubleBooked)

	left, err := sim.openSlots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "Double bookings: none")
}

func TestLoadRunsMixedWorkload(t *testing.T) {
	srv, cfg := newClinic(t)
	cfg.Racers = 1
	cfg.Duration = 200 * time.Millisecond
	sim := newSimulator(cfg, srv.Client(), nil)

	_, err := sim.Race(context.Background())
	require.NoError(t, err)
	sim.Load(context.Background())

	assert.Equal(t, int64(2000), sim.price)
	ran := sim.stats.Confirm.Total + sim.stats.Cancel.Total + sim.stats.Read.Total + sim.stats.DayView.Total
	assert.Positive(t, ran)

	var out bytes.Buffer
	sim.PrintReport(&out)
	assert.Contains(t, out.String(), "LOAD REPORT")
}

func TestNormalizeRatios(t *testing.T) {
	cfg := simConfig{Workers: 1, Racers: 1, BookingRatio: 2, ReadRatio: 2}
	require.NoError(t, cfg.normalize())
	assert.InDelta(t, 0.5, cfg.BookingRatio, 1e-9)
	assert.InDelta(t, 0.5, cfg.ReadRatio, 1e-9)

	assert.Error(t, (&simConfig{Workers: 1, Racers: 1}).normalize())
	assert.Error(t, (&simConfig{Racers: 1, ReadRatio: 1}).normalize())
}
