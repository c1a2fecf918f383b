package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aiorreal/quota-service/internal/logger"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/plan"
	"github.com/aiorreal/quota-service/internal/store"
)

// GetActiveWallet returns the user's single active wallet: the active wallet
// with the latest periodEnd. If indexing ever returns more than one the most
// recent wins; the stragglers are closed by the next write path.
func (c *Core) GetActiveWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallets []models.Wallet
	err := c.store.Query(ctx, models.CollectionWallets,
		[]store.Filter{
			store.Eq("userId", userID),
			store.Eq("status", models.WalletStatusActive),
		},
		&store.Order{Field: "periodEnd", Desc: true}, 0, &wallets)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	if len(wallets) > 1 {
		logger.Warn("Multiple active wallets; most recent by periodEnd wins",
			"user_id", userID,
			"count", len(wallets),
		)
	}
	return &wallets[0], nil
}

// EnsureActiveWallet returns the wallet reservations draw from, rolling the
// period over when the current wallet has run out. Returns nil for inactive
// subscriptions. When the subscription lacks a period the existing wallet is
// returned unchanged, stale or not, and the condition is logged.
func (c *Core) EnsureActiveWallet(ctx context.Context, userID string, sub *models.Subscription) (*models.Wallet, error) {
	if sub == nil || !sub.IsActive {
		return nil, nil
	}

	w, err := c.GetActiveWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	// A wallet left over from a different plan (free wallet after an
	// upgrade) is replaced regardless of its period.
	planMismatch := w != nil && w.PlanID != "" && sub.PlanID != "" && w.PlanID != sub.PlanID

	now := time.Now().UTC()
	if w != nil && !planMismatch {
		effectiveEnd := w.PeriodEnd
		if effectiveEnd == "" {
			effectiveEnd = sub.CurrentPeriodEnd
		}
		if t, ok := models.ParseISO(effectiveEnd); ok && t.After(now) {
			return w, nil
		}
	}

	// Never close before a replacement can open: without a period anchor
	// the existing wallet, stale or mismatched, is all the user has.
	if sub.CurrentPeriodStart == "" || sub.CurrentPeriodEnd == "" {
		logger.Warn("Subscription lacks a period; keeping existing wallet",
			"user_id", userID,
			"wallet_present", w != nil,
		)
		return w, nil
	}

	reason := models.CloseReasonPeriodReset
	if planMismatch {
		reason = models.CloseReasonPlanChange
	}
	if err := c.CloseAllActiveWallets(ctx, userID, reason, false); err != nil {
		return nil, err
	}
	return c.OpenWallet(ctx, sub, false)
}

// OpenWallet opens a fresh wallet for the subscription's plan, optionally
// closing active wallets first with reason plan_change. Requires a
// resolvable plan; otherwise logs and returns nil.
func (c *Core) OpenWallet(ctx context.Context, sub *models.Subscription, closeExisting bool) (*models.Wallet, error) {
	p, ok := c.catalog.GetByID(sub.PlanID)
	if !ok {
		logger.Warn("Cannot open wallet: plan not in catalog",
			"user_id", sub.UserID,
			"plan_id", sub.PlanID,
		)
		return nil, nil
	}

	if closeExisting {
		if err := c.CloseAllActiveWallets(ctx, sub.UserID, models.CloseReasonPlanChange, false); err != nil {
			return nil, err
		}
	}

	now := models.NowISO()
	w := models.Wallet{
		ID:             uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: sub.UserID,
		PlanID:         p.ID,
		Scope:          p.Cycle,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		QuotaTotal:     p.Quota,
		QuotaUsed:      0,
		Status:         models.WalletStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.Set(ctx, models.CollectionWallets, w.ID, w, false); err != nil {
		return nil, err
	}

	logger.Info("Wallet opened",
		"user_id", sub.UserID,
		"wallet_id", w.ID,
		"plan_id", p.ID,
		"quota_total", p.Quota,
	)
	return &w, nil
}

// CloseAllActiveWallets closes every active wallet for the user. With
// setRemainingToZero the remaining allowance is forfeited (refunds, billing
// failures); without it the remainder is merely historical (rollover, plan
// change).
func (c *Core) CloseAllActiveWallets(ctx context.Context, userID, reason string, setRemainingToZero bool) error {
	var wallets []models.Wallet
	err := c.store.Query(ctx, models.CollectionWallets,
		[]store.Filter{
			store.Eq("userId", userID),
			store.Eq("status", models.WalletStatusActive),
		}, nil, 0, &wallets)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return nil
	}

	now := models.NowISO()
	batch := c.store.Batch()
	for _, w := range wallets {
		w.Status = models.WalletStatusClosed
		w.ClosedReason = reason
		if setRemainingToZero {
			w.QuotaUsed = w.QuotaTotal
		}
		w.UpdatedAt = now
		batch.Set(models.CollectionWallets, w.ID, w, false)
	}
	if err := batch.Commit(ctx); err != nil {
		return err
	}

	logger.Info("Wallets closed",
		"user_id", userID,
		"count", len(wallets),
		"reason", reason,
		"remaining_forfeited", setRemainingToZero,
	)
	return nil
}

// ensureFreeWallet keeps a rolling monthly wallet for users without active
// premium. The free tier has no active subscription to anchor a period, so
// the wallet period is the current UTC month.
func (c *Core) ensureFreeWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	p, ok := c.catalog.GetByID(plan.PlanFree)
	if !ok {
		return nil, nil
	}

	w, err := c.GetActiveWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	if w != nil && w.PlanID != p.ID {
		if err := c.CloseAllActiveWallets(ctx, userID, models.CloseReasonPlanChange, false); err != nil {
			return nil, err
		}
		w = nil
	}

	now := time.Now().UTC()
	if w != nil {
		if t, ok := models.ParseISO(w.PeriodEnd); ok && t.After(now) {
			return w, nil
		}
		if err := c.CloseAllActiveWallets(ctx, userID, models.CloseReasonPeriodReset, false); err != nil {
			return nil, err
		}
	}

	start, end := periodBounds(models.CycleMonthly, now)
	nowISO := models.FormatISO(now)
	fresh := models.Wallet{
		ID:          uuid.NewString(),
		UserID:      userID,
		PlanID:      p.ID,
		Scope:       p.Cycle,
		PeriodStart: models.FormatISO(start),
		PeriodEnd:   models.FormatISO(end),
		QuotaTotal:  p.Quota,
		QuotaUsed:   0,
		Status:      models.WalletStatusActive,
		CreatedAt:   nowISO,
		UpdatedAt:   nowISO,
	}
	if err := c.store.Set(ctx, models.CollectionWallets, fresh.ID, fresh, false); err != nil {
		return nil, err
	}
	return &fresh, nil
}
