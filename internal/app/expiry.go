package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpireOnce expires stale pending bookings, which frees their slots to the
// waitlist, then expires unanswered waitlist offers.
func (a *App) ExpireOnce(ctx context.Context) (appointments, offers int) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	appointments, err := a.Appointments.ExpirePendingAppointments(runCtx)
	if err != nil {
		a.Logger.Error("appointment expiry run failed", zap.Error(err))
	}
	offers, err = a.Promoter.ExpireOffers(runCtx)
	if err != nil {
		a.Logger.Error("waitlist offer expiry run failed", zap.Error(err))
	}
	a.Logger.Info("expiry run complete",
		zap.Int("appointments_expired", appointments),
		zap.Int("offers_expired", offers),
		zap.Duration("took", time.Since(start)),
	)
	return appointments, offers
}

// RunExpiry calls ExpireOnce immediately and then every interval until ctx
// is done.
func (a *App) RunExpiry(ctx context.Context, interval time.Duration) {
	a.ExpireOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.ExpireOnce(ctx)
		}
	}
}
