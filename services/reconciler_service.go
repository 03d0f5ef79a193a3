package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/models"
)

// ReservationReconciler sweeps pending reservations whose checkout never
// completed and releases their stock. It is the only corrective path for the
// reserve-then-crash window: checkout itself performs no compensating
// release.
type ReservationReconciler struct {
	db       *gorm.DB
	engine   ReservationEngine
	log      *logrus.Logger
	maxAge   time.Duration
	interval time.Duration
}

// NewReservationReconciler creates the reconciler. maxAge is how long a
// reservation may stay pending before it is considered orphaned.
func NewReservationReconciler(db *gorm.DB, engine ReservationEngine, log *logrus.Logger, maxAge, interval time.Duration) *ReservationReconciler {
	return &ReservationReconciler{db: db, engine: engine, log: log, maxAge: maxAge, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *ReservationReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithField("interval", r.interval).Info("reservation reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reservation reconciler stopped")
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.WithError(err).Error("reservation sweep failed")
			} else if n > 0 {
				r.log.WithField("released", n).Warn("released orphaned reservations")
			}
		}
	}
}

// Sweep releases every reservation pending longer than maxAge and marks it
// EXPIRED. A row whose release fails stays pending for the next sweep.
func (r *ReservationReconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.maxAge)

	var stale []models.PendingReservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.ReservationPending, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	released := 0
	for _, pending := range stale {
		var items []StockItem
		if err := json.Unmarshal([]byte(pending.Items), &items); err != nil {
			r.log.WithError(err).WithField("reservation", pending.Key).Error("unreadable pending reservation, skipping")
			continue
		}

		if err := r.engine.Release(ctx, items); err != nil {
			r.log.WithError(err).WithField("reservation", pending.Key).Error("failed to release orphaned reservation")
			continue
		}

		if err := r.db.WithContext(ctx).Model(&models.PendingReservation{}).
			Where("id = ? AND status = ?", pending.ID, models.ReservationPending).
			Update("status", models.ReservationExpired).Error; err != nil {
			r.log.WithError(err).WithField("reservation", pending.Key).Error("failed to expire pending reservation")
			continue
		}
		released++
	}
	return released, nil
}
