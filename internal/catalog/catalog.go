// Package catalog is the read model of providers' weekly schedule rules and
// the clinic's service list. The booking core treats both as read-only.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrRuleNotFound    = errors.New("schedule rule not found")
)

// Service is a bookable treatment. Price is in minor currency units.
type Service struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           int64     `json:"price"`
}

// Store is the persistent catalog.
type Store interface {
	GetRule(ctx context.Context, providerID uuid.UUID, day time.Weekday) (*scheduling.Rule, error)
	ListRules(ctx context.Context, providerID uuid.UUID) ([]scheduling.Rule, error)
	UpsertRule(ctx context.Context, rule scheduling.Rule) error

	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	UpsertService(ctx context.Context, svc Service) error
}

// RuleFor returns the rule for the weekday of date, or nil when the provider
// has none. Missing rules are an ordinary "not working" answer.
func RuleFor(ctx context.Context, store Store, providerID uuid.UUID, date scheduling.Date) (*scheduling.Rule, error) {
	rule, err := store.GetRule(ctx, providerID, date.Weekday())
	if errors.Is(err, ErrRuleNotFound) {
		return nil, nil
	}
	return rule, err
}
