package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
	"github.com/hackgods/dental-booking-engine/internal/waitlist"
)

type WaitlistRepo struct {
	s *Store
}

func (w *WaitlistRepo) Create(ctx context.Context, e *waitlist.Entry) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.s.openEntryLocked(e.UserID, e.ProviderID, e.ServiceID, e.Date) != nil {
		return waitlist.ErrAlreadyWaitlisted
	}
	w.s.entries[e.ID] = *e
	return nil
}

func (w *WaitlistRepo) Get(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	e, ok := w.s.entries[id]
	if !ok {
		return nil, waitlist.ErrEntryNotFound
	}
	return &e, nil
}

func (w *WaitlistRepo) ListForDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]waitlist.Entry, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	return w.s.filterEntriesLocked(func(e waitlist.Entry) bool {
		return e.ProviderID == providerID && e.Date == date
	}), nil
}

func (w *WaitlistRepo) FindOpenForUser(ctx context.Context, userID, providerID, serviceID uuid.UUID, date scheduling.Date) (*waitlist.Entry, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	if e := w.s.openEntryLocked(userID, providerID, serviceID, date); e != nil {
		return e, nil
	}
	return nil, waitlist.ErrEntryNotFound
}

func (w *WaitlistRepo) FindOffer(ctx context.Context, key waitlist.SlotKey, now time.Time) (*waitlist.Entry, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	offers := w.s.filterEntriesLocked(func(e waitlist.Entry) bool {
		return inSlot(e, key) &&
			e.Status == waitlist.StatusNotified &&
			e.OfferedTime != nil && *e.OfferedTime == key.Time &&
			e.ExpiresAt != nil && e.ExpiresAt.After(now)
	})
	if len(offers) == 0 {
		return nil, waitlist.ErrEntryNotFound
	}
	return &offers[0], nil
}

func (w *WaitlistRepo) NextActive(ctx context.Context, key waitlist.SlotKey) (*waitlist.Entry, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	candidates := w.s.filterEntriesLocked(func(e waitlist.Entry) bool {
		return inSlot(e, key) && e.Status == waitlist.StatusActive && e.Matches(key.Time)
	})
	if len(candidates) == 0 {
		return nil, waitlist.ErrEntryNotFound
	}
	return &candidates[0], nil
}

func (w *WaitlistRepo) FindExpiredOffers(ctx context.Context, now time.Time) ([]waitlist.Entry, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	return w.s.filterEntriesLocked(func(e waitlist.Entry) bool {
		return e.Status == waitlist.StatusNotified && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
	}), nil
}

func (w *WaitlistRepo) UpdateStatus(ctx context.Context, id uuid.UUID, u waitlist.Update) (*waitlist.Entry, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	e, ok := w.s.entries[id]
	if !ok || e.Status != u.From {
		return nil, waitlist.ErrConcurrentModification
	}
	e.Status = u.To
	if u.OfferedTime != nil {
		e.OfferedTime = u.OfferedTime
	}
	if u.NotifiedAt != nil {
		e.NotifiedAt = u.NotifiedAt
	}
	if u.ExpiresAt != nil {
		e.ExpiresAt = u.ExpiresAt
	}
	e.UpdatedAt = time.Now().UTC()
	w.s.entries[id] = e
	return &e, nil
}

func inSlot(e waitlist.Entry, key waitlist.SlotKey) bool {
	return e.ProviderID == key.ProviderID && e.ServiceID == key.ServiceID && e.Date == key.Date
}

func (s *Store) openEntryLocked(userID, providerID, serviceID uuid.UUID, date scheduling.Date) *waitlist.Entry {
	open := s.filterEntriesLocked(func(e waitlist.Entry) bool {
		return e.UserID == userID && e.ProviderID == providerID && e.ServiceID == serviceID &&
			e.Date == date && e.Status.IsOpen()
	})
	if len(open) == 0 {
		return nil
	}
	return &open[0]
}

// filterEntriesLocked returns matching entries oldest first.
func (s *Store) filterEntriesLocked(keep func(waitlist.Entry) bool) []waitlist.Entry {
	out := []waitlist.Entry{}
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
