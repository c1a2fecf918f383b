package quota

import (
	"context"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/plan"
)

// GetSnapshot composes the read-only quota view from the subscription and
// the active wallet. Nil when the user has no subscription record at all.
func (c *Core) GetSnapshot(ctx context.Context, userID string) (*models.Snapshot, error) {
	if userID == "" {
		return nil, apperrors.ValidationError{Field: "userId", Message: "required"}
	}

	sub, err := c.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	snap := models.Snapshot{
		PlanID:      sub.PlanID,
		PlanKey:     sub.PlanKey,
		Cycle:       sub.Cycle,
		IsActive:    sub.IsActive,
		WillRenew:   sub.WillRenew,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
	}

	w, err := c.GetActiveWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		snap.WalletID = w.ID
		snap.QuotaTotal = w.QuotaTotal
		snap.QuotaUsed = w.QuotaUsed
		snap.QuotaRemaining = w.Remaining()
		if w.PlanID != "" {
			snap.PlanID = w.PlanID
		}
		if w.PeriodStart != "" {
			snap.PeriodStart = w.PeriodStart
		}
		if w.PeriodEnd != "" {
			snap.PeriodEnd = w.PeriodEnd
		}
	} else if p, ok := c.catalog.GetByID(sub.PlanID); ok {
		// No active wallet (closed after a refund, or between close and
		// reopen): the plan still defines the total, with nothing usable.
		snap.QuotaTotal = p.Quota
	}
	return &snap, nil
}

// EnsureQuota is the session entry point: it guarantees the user exists,
// reconciles subscription state against the optional premium hint, and
// returns the resulting snapshot. New users land on the free plan.
func (c *Core) EnsureQuota(ctx context.Context, userID, email string, hint *models.PremiumHint) (*models.Snapshot, error) {
	if err := c.EnsureUser(ctx, userID, email); err != nil {
		return nil, err
	}

	sub, err := c.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case hint != nil && hint.Premium:
		candidate := hint.EntitlementProductID
		if candidate == "" {
			candidate = plan.PlanPremiumMonthly
		}
		resolved, ok := c.catalog.Resolve(candidate)
		stale := sub == nil || !sub.IsActive || (ok && resolved.ID != sub.PlanID)
		if stale {
			if err := c.SyncFromPlan(ctx, userID, candidate); err != nil {
				return nil, err
			}
		}
	case sub == nil:
		if err := c.SyncFromPlan(ctx, userID, plan.PlanFree); err != nil {
			return nil, err
		}
	}

	return c.GetSnapshot(ctx, userID)
}
