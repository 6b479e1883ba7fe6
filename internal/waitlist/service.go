package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type JoinRequest struct {
	UserID        uuid.UUID
	ProviderID    uuid.UUID
	ServiceID     uuid.UUID
	Date          scheduling.Date
	PreferredTime *scheduling.TimeOfDay
}

// Offerer hands a slot to the next waiting patient. *Promoter implements it.
type Offerer interface {
	Promote(ctx context.Context, key SlotKey) (*Entry, error)
}

// Service handles patient-driven waitlist actions.
type Service struct {
	repo     Repository
	offers   Offerer
	recorder *audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, recorder *audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, recorder: recorder, logger: logger, now: time.Now}
}

// SetOfferer lets Cancel pass a declined offer on to the next entry.
func (s *Service) SetOfferer(o Offerer) {
	s.offers = o
}

func (s *Service) Join(ctx context.Context, req JoinRequest) (*Entry, error) {
	switch {
	case req.UserID == uuid.Nil, req.ProviderID == uuid.Nil, req.ServiceID == uuid.Nil:
		return nil, fmt.Errorf("%w: user, provider and service are required", ErrInvalidEntry)
	case req.Date.IsZero():
		return nil, fmt.Errorf("%w: date is required", ErrInvalidEntry)
	case req.PreferredTime != nil && !req.PreferredTime.Valid():
		return nil, fmt.Errorf("%w: preferred time out of range", ErrInvalidEntry)
	}

	existing, err := s.repo.FindOpenForUser(ctx, req.UserID, req.ProviderID, req.ServiceID, req.Date)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return nil, fmt.Errorf("check existing entry: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyWaitlisted
	}

	now := s.now().UTC()
	entry := &Entry{
		ID:            uuid.New(),
		UserID:        req.UserID,
		ProviderID:    req.ProviderID,
		ServiceID:     req.ServiceID,
		Date:          req.Date,
		PreferredTime: req.PreferredTime,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		if errors.Is(err, ErrAlreadyWaitlisted) {
			return nil, err
		}
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}

	payload := map[string]any{
		"user_id":     entry.UserID.String(),
		"provider_id": entry.ProviderID.String(),
		"service_id":  entry.ServiceID.String(),
		"date":        entry.Date.String(),
	}
	if entry.PreferredTime != nil {
		payload["preferred_time"] = entry.PreferredTime.String()
	}
	s.recorder.Waitlist(ctx, entry.ID, audit.EventWaitlistJoined, payload)
	return entry, nil
}

// Cancel withdraws an open entry. A withdrawn offer goes to the next
// entry in line.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(entry.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, entry.Status, StatusCancelled)
	}
	updated, err := s.repo.UpdateStatus(ctx, id, Update{From: entry.Status, To: StatusCancelled})
	if err != nil {
		return nil, err
	}
	s.recorder.Waitlist(ctx, id, audit.EventWaitlistCancelled, map[string]any{"from_status": string(entry.Status)})

	if key, ok := entry.OfferKey(); ok && s.offers != nil {
		if _, err := s.offers.Promote(ctx, key); err != nil {
			s.logger.Warn("failed to pass declined offer on", zap.String("slot", key.String()), zap.Error(err))
		}
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	return entry, nil
}

func (s *Service) ListForDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]Entry, error) {
	entries, err := s.repo.ListForDay(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list waitlist entries: %w", err)
	}
	return entries, nil
}
