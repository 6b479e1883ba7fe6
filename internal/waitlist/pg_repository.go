package waitlist

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

const entryColumns = `id, user_id, provider_id, service_id, date, preferred_time, status,
	offered_time, notified_at, expires_at, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e                  Entry
		date               time.Time
		preferred, offered *string
		status             string
	)
	err := row.Scan(
		&e.ID, &e.UserID, &e.ProviderID, &e.ServiceID,
		&date, &preferred, &status,
		&offered, &e.NotifiedAt, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.Date = scheduling.DateOf(date)
	e.Status = Status(status)
	if e.PreferredTime, err = parseTime(preferred); err != nil {
		return nil, fmt.Errorf("waitlist entry %s preferred_time: %w", e.ID, err)
	}
	if e.OfferedTime, err = parseTime(offered); err != nil {
		return nil, fmt.Errorf("waitlist entry %s offered_time: %w", e.ID, err)
	}
	return &e, nil
}

func parseTime(s *string) (*scheduling.TimeOfDay, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := scheduling.ParseTimeOfDay(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTime(t *scheduling.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	result := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, e *Entry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO waitlist_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		e.ID, e.UserID, e.ProviderID, e.ServiceID,
		e.Date.Time(), formatTime(e.PreferredTime), string(e.Status),
		formatTime(e.OfferedTime), e.NotifiedAt, e.ExpiresAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadyWaitlisted
		}
		return err
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListForDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE provider_id = $1 AND date = $2
		ORDER BY created_at
	`, providerID, date.Time())
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *PgRepository) FindOpenForUser(ctx context.Context, userID, providerID, serviceID uuid.UUID, date scheduling.Date) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE user_id = $1 AND provider_id = $2 AND service_id = $3 AND date = $4
		  AND status IN ('active', 'notified')
		ORDER BY created_at
		LIMIT 1
	`, userID, providerID, serviceID, date.Time())
	return scanEntry(row)
}

func (r *PgRepository) FindOffer(ctx context.Context, key SlotKey, now time.Time) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE provider_id = $1 AND service_id = $2 AND date = $3 AND offered_time = $4
		  AND status = 'notified'
		  AND expires_at > $5
		ORDER BY notified_at
		LIMIT 1
	`, key.ProviderID, key.ServiceID, key.Date.Time(), key.Time.String(), now)
	return scanEntry(row)
}

func (r *PgRepository) NextActive(ctx context.Context, key SlotKey) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE provider_id = $1 AND service_id = $2 AND date = $3
		  AND status = 'active'
		  AND (preferred_time IS NULL OR preferred_time = $4)
		ORDER BY created_at, id
		LIMIT 1
	`, key.ProviderID, key.ServiceID, key.Date.Time(), key.Time.String())
	return scanEntry(row)
}

func (r *PgRepository) FindExpiredOffers(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'notified'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, u Update) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    offered_time = COALESCE($4, offered_time),
		    notified_at = COALESCE($5, notified_at),
		    expires_at = COALESCE($6, expires_at),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns,
		id, string(u.To), string(u.From), formatTime(u.OfferedTime), u.NotifiedAt, u.ExpiresAt)

	e, err := scanEntry(row)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, ErrConcurrentModification
	}
	return e, err
}
