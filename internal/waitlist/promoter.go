package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/notify"
	"github.com/hackgods/dental-booking-engine/internal/observability/metrics"
	redisclient "github.com/hackgods/dental-booking-engine/internal/redis"
)

var tracer = otel.Tracer("dental.internal.waitlist")

// SlotChecker reports whether a slot can still be booked.
// *appointment.Service implements it.
type SlotChecker interface {
	SlotOpen(ctx context.Context, slot appointment.Slot) (bool, error)
}

// Slot is the appointment slot the key offers.
func (k SlotKey) Slot() appointment.Slot {
	return appointment.Slot{ProviderID: k.ProviderID, ServiceID: k.ServiceID, Date: k.Date, StartTime: k.Time}
}

// Promoter offers freed slots to waitlisted patients. Promotion for one
// (provider, service, date, time) is serialized through the locker, so at
// most one entry holds an offer for a slot at a time.
type Promoter struct {
	repo     Repository
	slots    SlotChecker
	locker   redisclient.Locker
	notifier notify.Gateway
	recorder *audit.Recorder
	metrics  *metrics.BookingMetrics
	logger   *zap.Logger
	window   time.Duration
	now      func() time.Time
}

func NewPromoter(repo Repository, locker redisclient.Locker, notifier notify.Gateway, recorder *audit.Recorder, m *metrics.BookingMetrics, window time.Duration, logger *zap.Logger) *Promoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogGateway(logger)
	}
	return &Promoter{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		window:   window,
		now:      time.Now,
	}
}

// SetSlotChecker makes Promote skip slots that were booked since they
// were freed. Without one every promoted slot is assumed open.
func (p *Promoter) SetSlotChecker(c SlotChecker) {
	p.slots = c
}

// Promote notifies the next eligible entry for the slot. It returns the
// entry holding the offer, which is the existing one if an unexpired offer
// is already out, or nil when nobody is waiting.
func (p *Promoter) Promote(ctx context.Context, key SlotKey) (*Entry, error) {
	ctx, span := tracer.Start(ctx, "waitlist.Promote")
	defer span.End()
	span.SetAttributes(attribute.String("slot", key.String()))

	var (
		result  *Entry
		outcome = "none"
	)
	err := p.locker.WithLock(ctx, "waitlist:"+key.String(), func(ctx context.Context) error {
		now := p.now().UTC()

		offer, err := p.repo.FindOffer(ctx, key, now)
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			return fmt.Errorf("find open offer: %w", err)
		}
		if offer != nil {
			result = offer
			outcome = "already_notified"
			return nil
		}

		if p.slots != nil {
			open, err := p.slots.SlotOpen(ctx, key.Slot())
			if err != nil {
				return fmt.Errorf("check slot: %w", err)
			}
			if !open {
				outcome = "slot_taken"
				return nil
			}
		}

		next, err := p.repo.NextActive(ctx, key)
		if errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find next waitlist entry: %w", err)
		}

		expiresAt := now.Add(p.window)
		offered := key.Time
		updated, err := p.repo.UpdateStatus(ctx, next.ID, Update{
			From:        StatusActive,
			To:          StatusNotified,
			OfferedTime: &offered,
			NotifiedAt:  &now,
			ExpiresAt:   &expiresAt,
		})
		if err != nil {
			return fmt.Errorf("notify waitlist entry: %w", err)
		}

		if err := p.notifier.Notify(ctx, updated.UserID, notify.TemplateWaitlistSlotAvailable, map[string]any{
			"waitlist_entry_id": updated.ID.String(),
			"provider_id":       key.ProviderID.String(),
			"service_id":        key.ServiceID.String(),
			"date":              key.Date.String(),
			"start_time":        key.Time.String(),
			"expires_at":        expiresAt,
		}); err != nil {
			p.logger.Warn("failed to send waitlist notification", zap.String("waitlist_entry_id", updated.ID.String()), zap.Error(err))
		}
		p.recorder.Waitlist(ctx, updated.ID, audit.EventWaitlistNotified, map[string]any{
			"date":       key.Date.String(),
			"start_time": key.Time.String(),
			"expires_at": expiresAt,
		})

		result = updated
		outcome = "notified"
		return nil
	})
	if err != nil {
		p.metrics.ObservePromotion("error")
		return nil, err
	}
	p.metrics.ObservePromotion(outcome)
	return result, nil
}

// SlotFreed promotes the waitlist for a released appointment slot.
func (p *Promoter) SlotFreed(ctx context.Context, slot appointment.Slot) error {
	entry, err := p.Promote(ctx, SlotKey{
		ProviderID: slot.ProviderID,
		ServiceID:  slot.ServiceID,
		Date:       slot.Date,
		Time:       slot.StartTime,
	})
	if err != nil {
		return err
	}
	if entry != nil {
		p.logger.Info("waitlist entry offered freed slot",
			zap.String("waitlist_entry_id", entry.ID.String()),
			zap.String("date", slot.Date.String()),
			zap.String("start_time", slot.StartTime.String()),
		)
	}
	return nil
}

// SlotBooked closes the booking user's open entry for the same day and
// withdraws other offers on that day the new booking made unbookable.
func (p *Promoter) SlotBooked(ctx context.Context, appt appointment.Appointment) error {
	entry, err := p.repo.FindOpenForUser(ctx, appt.UserID, appt.ProviderID, appt.ServiceID, appt.Date)
	switch {
	case errors.Is(err, ErrEntryNotFound):
	case err != nil:
		return fmt.Errorf("find waitlist entry for booking: %w", err)
	default:
		if _, err := p.repo.UpdateStatus(ctx, entry.ID, Update{From: entry.Status, To: StatusBooked}); err != nil {
			return fmt.Errorf("mark waitlist entry booked: %w", err)
		}
		p.recorder.Waitlist(ctx, entry.ID, audit.EventWaitlistBooked, map[string]any{
			"appointment_id": appt.ID.String(),
		})
	}
	return p.withdrawTakenOffers(ctx, appt)
}

func (p *Promoter) withdrawTakenOffers(ctx context.Context, appt appointment.Appointment) error {
	entries, err := p.repo.ListForDay(ctx, appt.ProviderID, appt.Date)
	if err != nil {
		return fmt.Errorf("list waitlist for booked day: %w", err)
	}
	for _, e := range entries {
		key, ok := e.OfferKey()
		if !ok {
			continue
		}
		taken, err := p.slotTaken(ctx, key, appt)
		if err != nil {
			p.logger.Warn("failed to check offered slot", zap.String("slot", key.String()), zap.Error(err))
			continue
		}
		if !taken {
			continue
		}
		if _, err := p.repo.UpdateStatus(ctx, e.ID, Update{From: StatusNotified, To: StatusExpired}); err != nil {
			if !errors.Is(err, ErrConcurrentModification) {
				p.logger.Error("failed to withdraw waitlist offer", zap.String("waitlist_entry_id", e.ID.String()), zap.Error(err))
			}
			continue
		}
		p.recorder.Waitlist(ctx, e.ID, audit.EventWaitlistExpired, map[string]any{
			"reason":         "slot_taken",
			"appointment_id": appt.ID.String(),
		})
	}
	return nil
}

func (p *Promoter) slotTaken(ctx context.Context, key SlotKey, appt appointment.Appointment) (bool, error) {
	if p.slots == nil {
		return key.ServiceID == appt.ServiceID && key.Time == appt.StartTime, nil
	}
	open, err := p.slots.SlotOpen(ctx, key.Slot())
	return !open, err
}

// ExpireOffers expires notified entries whose response window has passed
// and offers each slot to the next entry in line. It returns how many
// offers expired.
func (p *Promoter) ExpireOffers(ctx context.Context) (int, error) {
	stale, err := p.repo.FindExpiredOffers(ctx, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("find expired offers: %w", err)
	}

	expired := 0
	for _, e := range stale {
		if _, err := p.repo.UpdateStatus(ctx, e.ID, Update{From: StatusNotified, To: StatusExpired}); err != nil {
			if !errors.Is(err, ErrConcurrentModification) {
				p.logger.Error("failed to expire waitlist offer", zap.String("waitlist_entry_id", e.ID.String()), zap.Error(err))
			}
			continue
		}
		expired++
		p.recorder.Waitlist(ctx, e.ID, audit.EventWaitlistExpired, nil)

		if e.OfferedTime == nil {
			continue
		}
		key := SlotKey{ProviderID: e.ProviderID, ServiceID: e.ServiceID, Date: e.Date, Time: *e.OfferedTime}
		if _, err := p.Promote(ctx, key); err != nil {
			p.logger.Warn("failed to promote after offer expiry", zap.String("slot", key.String()), zap.Error(err))
		}
	}
	return expired, nil
}
