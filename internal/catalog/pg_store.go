package catalog

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

type PgStore struct {
	db db.DBTX
}

func NewPgStore(conn db.DBTX) *PgStore {
	return &PgStore{db: conn}
}

// Helpers

func scanRule(row pgx.Row) (*scheduling.Rule, error) {
	var (
		r                    scheduling.Rule
		day                  int16
		start, end           string
		breakStart, breakEnd *string
	)

	err := row.Scan(&r.ProviderID, &day, &start, &end, &breakStart, &breakEnd, &r.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	r.DayOfWeek = time.Weekday(day)
	if r.StartTime, err = scheduling.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("rule %s/%d start: %w", r.ProviderID, day, err)
	}
	if r.EndTime, err = scheduling.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("rule %s/%d end: %w", r.ProviderID, day, err)
	}
	r.BreakStart = parseOptional(breakStart)
	r.BreakEnd = parseOptional(breakEnd)
	return &r, nil
}

// parseOptional drops unparsable break bounds; the rule then has no break.
func parseOptional(s *string) *scheduling.TimeOfDay {
	if s == nil || *s == "" {
		return nil
	}
	t, err := scheduling.ParseTimeOfDay(*s)
	if err != nil {
		return nil
	}
	return &t
}

func formatOptional(t *scheduling.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	var duration int32
	err := row.Scan(&s.ID, &s.Name, &duration, &s.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	s.DurationMinutes = int(duration)
	return &s, nil
}

// Interface methods

func (s *PgStore) GetRule(ctx context.Context, providerID uuid.UUID, day time.Weekday) (*scheduling.Rule, error) {
	row := s.db.QueryRow(ctx, `
		SELECT provider_id, day_of_week, start_time, end_time, break_start, break_end, is_available
		FROM provider_schedule_rules
		WHERE provider_id = $1 AND day_of_week = $2
	`, providerID, int16(day))
	return scanRule(row)
}

func (s *PgStore) ListRules(ctx context.Context, providerID uuid.UUID) ([]scheduling.Rule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT provider_id, day_of_week, start_time, end_time, break_start, break_end, is_available
		FROM provider_schedule_rules
		WHERE provider_id = $1
		ORDER BY day_of_week
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var result []scheduling.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (s *PgStore) UpsertRule(ctx context.Context, rule scheduling.Rule) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO provider_schedule_rules
			(provider_id, day_of_week, start_time, end_time, break_start, break_end, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (provider_id, day_of_week) DO UPDATE
		SET start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    break_start = EXCLUDED.break_start,
		    break_end = EXCLUDED.break_end,
		    is_available = EXCLUDED.is_available,
		    updated_at = now()
	`, rule.ProviderID, int16(rule.DayOfWeek), rule.StartTime.String(), rule.EndTime.String(),
		formatOptional(rule.BreakStart), formatOptional(rule.BreakEnd), rule.IsAvailable)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

func (s *PgStore) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (s *PgStore) UpsertService(ctx context.Context, svc Service) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    duration_minutes = EXCLUDED.duration_minutes,
		    price = EXCLUDED.price,
		    updated_at = now()
	`, svc.ID, svc.Name, int32(svc.DurationMinutes), svc.Price)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}
