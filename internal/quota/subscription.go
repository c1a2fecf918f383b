package quota

import (
	"context"
	"time"

	"github.com/aiorreal/quota-service/internal/logger"
	"github.com/aiorreal/quota-service/internal/models"
)

// GetSubscription loads a user's subscription projection, nil when absent.
func (c *Core) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	found, err := c.store.Get(ctx, models.CollectionSubscriptions, userID, &sub)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &sub, nil
}

// periodBounds computes the synthetic billing period for a plan sync:
// monthly runs to the first day of the next UTC month, yearly to the same
// UTC month and day one year ahead.
func periodBounds(cycle string, now time.Time) (start, end time.Time) {
	now = now.UTC()
	if cycle == models.CycleYearly {
		return now, now.AddDate(1, 0, 0)
	}
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return now, firstOfNext
}

// SyncFromPlan materializes subscription state from a premium-status plan
// candidate. Unresolvable candidates log and no-op. Free is represented by
// absence of active premium: the free subscription is written inactive, but
// still backed by a rolling free-tier wallet.
func (c *Core) SyncFromPlan(ctx context.Context, userID, candidate string) error {
	p, ok := c.catalog.Resolve(candidate)
	if !ok {
		logger.Warn("Plan sync skipped: unresolvable candidate",
			"user_id", userID,
			"candidate", candidate,
		)
		return nil
	}

	now := time.Now().UTC()
	start, end := periodBounds(p.Cycle, now)

	isActive := !p.Free()
	status := models.SubStatusActive
	if !isActive {
		status = models.SubStatusExpired
	}

	existing, err := c.GetSubscription(ctx, userID)
	if err != nil {
		return err
	}

	sub := models.Subscription{
		UserID:             userID,
		ProductID:          candidate,
		PlanID:             p.ID,
		PlanKey:            p.Key,
		Cycle:              p.Cycle,
		IsActive:           isActive,
		WillRenew:          isActive,
		Status:             status,
		CurrentPeriodStart: models.FormatISO(start),
		CurrentPeriodEnd:   models.FormatISO(end),
		UpdatedAt:          models.FormatISO(now),
	}
	if existing == nil {
		sub.CreatedAt = models.FormatISO(now)
	}

	if err := c.store.Set(ctx, models.CollectionSubscriptions, userID, sub, true); err != nil {
		return err
	}

	logger.Info("Subscription synced from plan",
		"user_id", userID,
		"plan_id", p.ID,
		"status", status,
	)

	if isActive {
		_, err = c.EnsureActiveWallet(ctx, userID, &sub)
		return err
	}
	_, err = c.ensureFreeWallet(ctx, userID)
	return err
}
