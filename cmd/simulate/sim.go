package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type simConfig struct {
	BaseURL    string
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Date       scheduling.Date

	Duration time.Duration
	Workers  int
	// Racers is how many patients fire at every slot at once in the race phase.
	Racers int

	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
}

func (c *simConfig) normalize() error {
	if c.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if c.Racers <= 0 {
		return fmt.Errorf("SIM_RACERS must be > 0")
	}
	if c.Duration < 0 {
		return fmt.Errorf("SIM_DURATION must not be negative")
	}
	total := c.BookingRatio + c.ConfirmRatio + c.CancelRatio + c.ReadRatio
	if total <= 0 {
		return fmt.Errorf("operation ratios sum to zero")
	}
	c.BookingRatio /= total
	c.ConfirmRatio /= total
	c.CancelRatio /= total
	c.ReadRatio /= total
	return nil
}

// bookings tracks appointments the simulator created.
type bookings struct {
	mu  sync.RWMutex
	ids []uuid.UUID
}

func (b *bookings) add(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, id)
}

func (b *bookings) random(rng *rand.Rand) (uuid.UUID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ids) == 0 {
		return uuid.Nil, false
	}
	return b.ids[rng.Intn(len(b.ids))], true
}

type opStats struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (o *opStats) record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&o.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&o.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&o.Success, 1)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&o.Conflict, 1)
	default:
		atomic.AddInt64(&o.Error, 1)
	}

	o.mu.Lock()
	o.latencies = append(o.latencies, latency)
	o.mu.Unlock()
}

func (o *opStats) percentiles() (avg, p50, p95, max time.Duration) {
	o.mu.Lock()
	latencies := append([]time.Duration(nil), o.latencies...)
	o.mu.Unlock()
	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type loadStats struct {
	Book    opStats
	Confirm opStats
	Pay     opStats
	Cancel  opStats
	Read    opStats
	DayView opStats
}

type Simulator struct {
	cfg    simConfig
	client *http.Client
	logger *zap.Logger

	booked bookings
	stats  loadStats
	// price of the simulated service, read once before the load phase
	price int64
}

func newSimulator(cfg simConfig, client *http.Client, logger *zap.Logger) *Simulator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, client: client, logger: logger}
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil and the call succeeded.
func (s *Simulator) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) openSlots(ctx context.Context) ([]scheduling.TimeOfDay, error) {
	var out struct {
		Slots []scheduling.TimeOfDay `json:"slots"`
	}
	path := fmt.Sprintf("/providers/%s/slots?service_id=%s&date=%s", s.cfg.ProviderID, s.cfg.ServiceID, s.cfg.Date)
	status, err := s.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list slots: status %d", status)
	}
	return out.Slots, nil
}

func (s *Simulator) book(ctx context.Context, start scheduling.TimeOfDay) (uuid.UUID, int, error) {
	var out struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.do(ctx, http.MethodPost, "/appointments", map[string]any{
		"provider_id": s.cfg.ProviderID,
		"service_id":  s.cfg.ServiceID,
		"user_id":     uuid.New(),
		"date":        s.cfg.Date,
		"start_time":  start,
	}, &out)
	return out.ID, status, err
}

// RaceReport summarizes the race phase. A correct engine creates exactly one
// booking per slot and turns every other attempt away with 409.
type RaceReport struct {
	Slots        int
	Attempts     int
	Created      int
	Conflicts    int
	Errors       int
	DoubleBooked []scheduling.TimeOfDay
	Took         time.Duration
}

// Race lists the day's open slots and sends Racers concurrent booking
// requests at each of them, all released at the same instant.
func (s *Simulator) Race(ctx context.Context) (*RaceReport, error) {
	slots, err := s.openSlots(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("racing for slots", zap.Int("slots", len(slots)), zap.Int("racers_per_slot", s.cfg.Racers))

	type result struct {
		slot   scheduling.TimeOfDay
		id     uuid.UUID
		status int
		err    error
	}
	results := make(chan result, len(slots)*s.cfg.Racers)
	startGun := make(chan struct{})

	var wg sync.WaitGroup
	for _, slot := range slots {
		for i := 0; i < s.cfg.Racers; i++ {
			wg.Add(1)
			go func(slot scheduling.TimeOfDay) {
				defer wg.Done()
				<-startGun
				id, status, err := s.book(ctx, slot)
				results <- result{slot: slot, id: id, status: status, err: err}
			}(slot)
		}
	}

	begin := time.Now()
	close(startGun)
	wg.Wait()
	close(results)

	report := &RaceReport{Slots: len(slots), Took: time.Since(begin)}
	winners := make(map[scheduling.TimeOfDay]int, len(slots))
	for r := range results {
		report.Attempts++
		switch {
		case r.err != nil:
			report.Errors++
			s.logger.Debug("booking request failed", zap.Stringer("slot", r.slot), zap.Error(r.err))
		case r.status == http.StatusCreated:
			report.Created++
			winners[r.slot]++
			s.booked.add(r.id)
		case r.status == http.StatusConflict:
			report.Conflicts++
		default:
			report.Errors++
		}
	}
	for slot, n := range winners {
		if n > 1 {
			report.DoubleBooked = append(report.DoubleBooked, slot)
		}
	}
	sort.Slice(report.DoubleBooked, func(i, j int) bool { return report.DoubleBooked[i] < report.DoubleBooked[j] })
	return report, nil
}

func (r *RaceReport) Print(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "SLOT RACE")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Slots: %d  Attempts: %d  Took: %s\n", r.Slots, r.Attempts, r.Took.Round(time.Millisecond))
	fmt.Fprintf(w, "Created: %d  Conflicts: %d  Errors: %d\n", r.Created, r.Conflicts, r.Errors)
	if len(r.DoubleBooked) == 0 {
		fmt.Fprintln(w, "Double bookings: none")
	} else {
		fmt.Fprintf(w, "Double bookings: %v\n", r.DoubleBooked)
	}
	fmt.Fprintln(w)
}

// Load runs a mixed workload for the configured duration: bookings into
// whatever is still free, confirmations, reservation payments, patient
// cancellations and reads.
func (s *Simulator) Load(ctx context.Context) {
	if s.cfg.Duration == 0 {
		return
	}
	var svc struct {
		Price int64 `json:"price"`
	}
	if _, err := s.do(ctx, http.MethodGet, "/services/"+s.cfg.ServiceID.String(), nil, &svc); err != nil {
		s.logger.Warn("could not read service price", zap.Error(err))
	}
	s.price = svc.Price
	if s.price <= 0 {
		s.price = 1000
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Duration)
	defer cancel()
	s.logger.Info("starting load", zap.Duration("duration", s.cfg.Duration), zap.Int("workers", s.cfg.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(runCtx, rand.New(rand.NewSource(time.Now().UnixNano()+int64(workerID))))
		}(i)
	}
	wg.Wait()
	s.logger.Info("load complete")
}

func (s *Simulator) worker(ctx context.Context, rng *rand.Rand) {
	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.cfg.BookingRatio:
			s.doBook(ctx, rng)
		case r < s.cfg.BookingRatio+s.cfg.ConfirmRatio:
			s.doConfirmAndPay(ctx, rng)
		case r < s.cfg.BookingRatio+s.cfg.ConfirmRatio+s.cfg.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) timed(stats *opStats, fn func() (int, error)) int {
	start := time.Now()
	status, err := fn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// the run ended mid-request
		return status
	}
	stats.record(time.Since(start), status, err)
	return status
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	slots, err := s.openSlots(ctx)
	if err != nil || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(len(slots))]
	s.timed(&s.stats.Book, func() (int, error) {
		id, status, err := s.book(ctx, slot)
		if status == http.StatusCreated {
			s.booked.add(id)
		}
		return status, err
	})
}

func (s *Simulator) doConfirmAndPay(ctx context.Context, rng *rand.Rand) {
	id, ok := s.booked.random(rng)
	if !ok {
		return
	}
	status := s.timed(&s.stats.Confirm, func() (int, error) {
		return s.do(ctx, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil, nil)
	})
	if status != http.StatusOK {
		return
	}
	s.timed(&s.stats.Pay, func() (int, error) {
		return s.do(ctx, http.MethodPost, "/appointments/"+id.String()+"/payments", map[string]any{
			"axis":   "reservation",
			"amount": s.price,
			"method": "card",
		}, nil)
	})
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.booked.random(rng)
	if !ok {
		return
	}
	s.timed(&s.stats.Cancel, func() (int, error) {
		return s.do(ctx, http.MethodPost, "/appointments/"+id.String()+"/cancel", map[string]any{
			"cancelled_by": "patient",
			"reason":       "simulated change of plans",
		}, nil)
	})
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	if rng.Intn(2) == 0 {
		id, ok := s.booked.random(rng)
		if !ok {
			return
		}
		s.timed(&s.stats.Read, func() (int, error) {
			return s.do(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
		})
		return
	}
	path := fmt.Sprintf("/providers/%s/appointments?date=%s", s.cfg.ProviderID, s.cfg.Date)
	s.timed(&s.stats.DayView, func() (int, error) {
		return s.do(ctx, http.MethodGet, path, nil, nil)
	})
}

func (s *Simulator) PrintReport(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "LOAD REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Duration: %s  Workers: %d\n\n", s.cfg.Duration, s.cfg.Workers)

	printOp(w, "Book", &s.stats.Book)
	printOp(w, "Confirm", &s.stats.Confirm)
	printOp(w, "Reservation payment", &s.stats.Pay)
	printOp(w, "Cancel", &s.stats.Cancel)
	printOp(w, "Read by ID", &s.stats.Read)
	printOp(w, "Provider day view", &s.stats.DayView)
}

func printOp(w io.Writer, name string, o *opStats) {
	total := atomic.LoadInt64(&o.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&o.Success)
	conflict := atomic.LoadInt64(&o.Conflict)
	failed := atomic.LoadInt64(&o.Error)
	avg, p50, p95, max := o.percentiles()

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d  Success: %d (%.1f%%)  Conflicts: %d (%.1f%%)  Errors: %d (%.1f%%)\n",
		total, success, pct(success), conflict, pct(conflict), failed, pct(failed))
	fmt.Fprintf(w, "  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}
