package escalation

import (
	"context"
	"time"

	"ResQMob/internal/models"
	"ResQMob/internal/notify"
	"ResQMob/internal/store"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/metrics"
	"ResQMob/pkg/scheduler"

	"go.uber.org/zap"
)

// Sweeper auto-resolves active alerts whose owner never resolved them.
// Replaces the client-side 24h timestamp heuristic with authoritative
// server-side expiry.
type Sweeper struct {
	alerts     store.AlertStore
	escalator  *Escalator
	dispatcher *notify.Dispatcher
	maxAge     time.Duration

	// OnResolved, when set, is invoked for each expired alert.
	OnResolved func(alert *models.Alert)
}

func NewSweeper(alerts store.AlertStore, escalator *Escalator, dispatcher *notify.Dispatcher, maxAge time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Sweeper{alerts: alerts, escalator: escalator, dispatcher: dispatcher, maxAge: maxAge}
}

// Schedule registers the sweep on the shared cron.
func (s *Sweeper) Schedule(cr *scheduler.Cron, spec string) error {
	_, err := cr.Add(spec, scheduler.FuncJob(s.Run))
	return err
}

// Run expires every overdue active alert.
func (s *Sweeper) Run(ctx context.Context) {
	alerts, err := s.alerts.ListActive(ctx)
	if err != nil {
		logger.Warn("stale alert sweep failed", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	expired := 0
	for i := range alerts {
		alert := &alerts[i]
		if alert.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.expire(ctx, alert); err != nil {
			logger.Warn("expire alert failed", zap.String("alert_id", alert.ID), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		logger.Info("stale alert sweep finished", zap.Int("expired", expired))
	}
}

func (s *Sweeper) expire(ctx context.Context, alert *models.Alert) error {
	// Resolve as the owner: expiry acts on the owner's behalf.
	resolved, err := s.alerts.Resolve(ctx, alert.ID, alert.UserID, models.AlertResolved)
	if err != nil {
		return err
	}
	s.escalator.Deregister(alert.ID)
	if m := metrics.Global(); m != nil {
		m.AlertResolved(string(models.AlertResolved))
	}

	responders, err := s.alerts.ListResponders(ctx, alert.ID)
	if err == nil {
		s.dispatcher.NotifyResponders(ctx, resolved, responders, models.AlertResolved)
	}

	logger.Info("alert auto-resolved after expiry",
		zap.String("alert_id", alert.ID),
		zap.Duration("age", time.Since(alert.CreatedAt)),
	)
	if s.OnResolved != nil {
		s.OnResolved(resolved)
	}
	return nil
}
