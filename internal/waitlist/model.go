// Package waitlist keeps patients queued for full slots and offers freed
// slots to them in arrival order.
package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var (
	ErrEntryNotFound           = errors.New("waitlist entry not found")
	ErrAlreadyWaitlisted       = errors.New("user already waitlisted for this day")
	ErrInvalidStatusTransition = errors.New("invalid waitlist status transition")
	ErrConcurrentModification  = errors.New("waitlist entry was modified concurrently")
	ErrInvalidEntry            = errors.New("invalid waitlist entry")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusNotified  Status = "notified"
	StatusBooked    Status = "booked"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusActive:   {StatusNotified, StatusBooked, StatusCancelled},
	StatusNotified: {StatusBooked, StatusExpired, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the entry still waits for a slot.
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusNotified
}

type Entry struct {
	ID            uuid.UUID             `json:"id"`
	UserID        uuid.UUID             `json:"user_id"`
	ProviderID    uuid.UUID             `json:"provider_id"`
	ServiceID     uuid.UUID             `json:"service_id"`
	Date          scheduling.Date       `json:"date"`
	PreferredTime *scheduling.TimeOfDay `json:"preferred_time,omitempty"`
	Status        Status                `json:"status"`
	OfferedTime   *scheduling.TimeOfDay `json:"offered_time,omitempty"`
	NotifiedAt    *time.Time            `json:"notified_at,omitempty"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Matches reports whether the entry would accept a slot starting at t.
// Entries without a preferred time accept any slot of the day.
func (e *Entry) Matches(t scheduling.TimeOfDay) bool {
	return e.PreferredTime == nil || *e.PreferredTime == t
}

// OfferKey returns the slot a notified entry was offered.
func (e *Entry) OfferKey() (SlotKey, bool) {
	if e.Status != StatusNotified || e.OfferedTime == nil {
		return SlotKey{}, false
	}
	return SlotKey{ProviderID: e.ProviderID, ServiceID: e.ServiceID, Date: e.Date, Time: *e.OfferedTime}, true
}

// SlotKey identifies one offerable slot.
type SlotKey struct {
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Date       scheduling.Date
	Time       scheduling.TimeOfDay
}

func (k SlotKey) String() string {
	return k.ProviderID.String() + ":" + k.ServiceID.String() + ":" + k.Date.String() + ":" + k.Time.String()
}

// Update is a conditional status change. Non-nil fields are written too.
type Update struct {
	From        Status
	To          Status
	OfferedTime *scheduling.TimeOfDay
	NotifiedAt  *time.Time
	ExpiresAt   *time.Time
}

type Repository interface {
	// Create returns ErrAlreadyWaitlisted when the user holds an open entry
	// for the same provider, service and date.
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListForDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]Entry, error)

	FindOpenForUser(ctx context.Context, userID, providerID, serviceID uuid.UUID, date scheduling.Date) (*Entry, error)
	// FindOffer returns the notified entry holding an unexpired offer for key.
	FindOffer(ctx context.Context, key SlotKey, now time.Time) (*Entry, error)
	// NextActive returns the oldest active entry that matches key.
	NextActive(ctx context.Context, key SlotKey) (*Entry, error)
	FindExpiredOffers(ctx context.Context, now time.Time) ([]Entry, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, u Update) (*Entry, error)
}
