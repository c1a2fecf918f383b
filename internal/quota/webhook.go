package quota

import (
	"context"
	"strings"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/logger"
	"github.com/aiorreal/quota-service/internal/metrics"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/store"
	"github.com/aiorreal/quota-service/pkg/utils"
)

// eventDocID derives the dedup key for a billing event. Provider event ids
// are preferred; events without one fall back to a content hash so replays
// of the same logical event still collide.
func eventDocID(ev *models.BillingEvent) string {
	if ev.EventID != "" {
		return "rc_" + ev.EventID
	}
	return "rc_" + utils.HashKey(ev.UserID+":"+ev.EventType+":"+ev.PeriodStart+":"+ev.PeriodEnd)
}

// classify maps a provider event type to the subscription status it implies.
// Order matters: refund and expiration outrank cancellation, since providers
// reuse overlapping vocabulary across event families. isPurchase flags the
// events that should (re)open a wallet.
func classify(eventType, existingStatus string) (status string, isPurchase bool) {
	et := strings.ToUpper(eventType)
	switch {
	case utils.ContainsAny(et, []string{"REFUND", "CHARGEBACK"}):
		return models.SubStatusRefunded, false
	case utils.ContainsAny(et, []string{"EXPIRATION", "EXPIRE"}):
		return models.SubStatusExpired, false
	case utils.ContainsAny(et, []string{"BILLING_ISSUE", "PAUSE", "GRACE_PERIOD"}):
		return models.SubStatusBillingIssue, false
	// UNCANCELLATION contains CANCELLATION, so the purchase family must be
	// checked before the cancellation family.
	case utils.ContainsAny(et, []string{"INITIAL_PURCHASE", "RENEWAL", "PRODUCT_CHANGE", "UNCANCELLATION", "SUBSCRIPTION_PURCHASE", "NON_RENEWING_PURCHASE"}):
		return models.SubStatusActive, true
	case utils.ContainsAny(et, []string{"CANCELLATION", "CANCEL", "AUTO_RENEW_DISABLED"}):
		return models.SubStatusCancelled, false
	}
	// Unknown event types keep the subscription where it is; with no prior
	// state the safest reading of an unknown billing signal is active.
	if existingStatus != "" {
		return existingStatus, false
	}
	return models.SubStatusActive, false
}

// ProcessBillingEvent applies one normalized billing event: dedup first,
// then the subscription state transition, then wallet side effects.
// Duplicates are acknowledged no-ops. Events without a user id are recorded
// for forensics and marked processed, but drive no state.
func (c *Core) ProcessBillingEvent(ctx context.Context, ev *models.BillingEvent) error {
	if ev == nil || ev.EventType == "" {
		return apperrors.ValidationError{Field: "eventType", Message: "required"}
	}

	docID := eventDocID(ev)

	duplicate := false
	err := c.store.RunTransaction(ctx, func(tx store.Tx) error {
		duplicate = false

		var existing models.WebhookEvent
		found, err := tx.Get(models.CollectionWebhookEvents, docID, &existing)
		if err != nil {
			return err
		}
		if found {
			duplicate = true
			return nil
		}

		rec := models.WebhookEvent{
			ProviderEventID: ev.EventID,
			EventType:       ev.EventType,
			RCAppUserID:     ev.RCAppUserID,
			ReceivedAt:      models.NowISO(),
			PayloadJSON:     ev.Raw,
			Status:          models.EventStatusReceived,
		}
		tx.Set(models.CollectionWebhookEvents, docID, rec, false)
		return nil
	})
	if err != nil {
		return apperrors.WebhookError{EventType: ev.EventType, Stage: "dedup", Err: err}
	}
	if duplicate {
		logger.Info("Duplicate billing event ignored",
			"event_id", ev.EventID,
			"event_type", ev.EventType,
		)
		metrics.RecordWebhookEvent(ev.EventType, "duplicate")
		return nil
	}

	if ev.UserID == "" {
		logger.Warn("Billing event without user id; recorded only",
			"event_id", ev.EventID,
			"event_type", ev.EventType,
			"rc_app_user_id", ev.RCAppUserID,
		)
		metrics.RecordWebhookEvent(ev.EventType, "no_user")
		return c.markEventProcessed(ctx, docID)
	}

	if err := c.EnsureUser(ctx, ev.UserID, ""); err != nil {
		return apperrors.WebhookError{EventType: ev.EventType, Stage: "ensure_user", Err: err}
	}

	var (
		subAfter     models.Subscription
		status       string
		shouldOpen   bool
		shouldClose  bool
		planChanged  bool
		resolvedPlan string
	)

	err = c.store.RunTransaction(ctx, func(tx store.Tx) error {
		shouldOpen, shouldClose, planChanged = false, false, false

		var existing models.Subscription
		found, err := tx.Get(models.CollectionSubscriptions, ev.UserID, &existing)
		if err != nil {
			return err
		}

		existingStatus := ""
		if found {
			existingStatus = existing.Status
		}

		var isPurchase bool
		status, isPurchase = classify(ev.EventType, existingStatus)

		planID, planKey, cycle := existing.PlanID, existing.PlanKey, existing.Cycle
		if p, ok := c.catalog.Resolve(ev.ProductID); ok {
			planID, planKey, cycle = p.ID, p.Key, p.Cycle
		} else if ev.ProductID != "" {
			logger.Warn("Unresolvable product id on billing event; keeping prior plan",
				"user_id", ev.UserID,
				"product_id", ev.ProductID,
			)
		}
		resolvedPlan = planID

		isActive := status == models.SubStatusActive || status == models.SubStatusCancelled
		willRenew := status == models.SubStatusActive
		if ev.WillRenew != nil {
			willRenew = *ev.WillRenew
		}

		periodStart := existing.CurrentPeriodStart
		periodEnd := existing.CurrentPeriodEnd
		if ev.PeriodStart != "" {
			periodStart = ev.PeriodStart
		}
		if ev.PeriodEnd != "" {
			periodEnd = ev.PeriodEnd
		}

		planChanged = found && planID != "" && existing.PlanID != "" && planID != existing.PlanID
		periodChanged := found && ev.PeriodEnd != "" && ev.PeriodEnd != existing.CurrentPeriodEnd

		shouldOpen = isActive && (isPurchase || planChanged || periodChanged || !found)
		shouldClose = found && existing.IsActive &&
			(status == models.SubStatusExpired || status == models.SubStatusRefunded || status == models.SubStatusBillingIssue)

		now := models.NowISO()
		sub := models.Subscription{
			UserID:               ev.UserID,
			Platform:             ev.Platform,
			RCAppUserID:          ev.RCAppUserID,
			ProductID:            ev.ProductID,
			PlanID:               planID,
			PlanKey:              planKey,
			Cycle:                cycle,
			EntitlementIDs:       ev.EntitlementIDs,
			IsActive:             isActive,
			WillRenew:            willRenew,
			Status:               status,
			CurrentPeriodStart:   periodStart,
			CurrentPeriodEnd:     periodEnd,
			LastEventAt:          now,
			OriginalPurchaseDate: ev.OriginalPurchaseDate,
			UpdatedAt:            now,
		}
		if !found {
			sub.CreatedAt = now
		}
		tx.Set(models.CollectionSubscriptions, ev.UserID, sub, true)
		subAfter = sub
		return nil
	})
	if err != nil {
		return apperrors.WebhookError{EventType: ev.EventType, Stage: "transition", Err: err}
	}

	// Wallet side effects run outside the state transaction: they are
	// idempotent and self-healing on the next read path if interrupted.
	switch {
	case shouldClose:
		if err := c.CloseAllActiveWallets(ctx, ev.UserID, status, true); err != nil {
			return apperrors.WebhookError{EventType: ev.EventType, Stage: "close_wallets", Err: err}
		}
	case shouldOpen && resolvedPlan != "":
		reason := models.CloseReasonPeriodReset
		if planChanged {
			reason = models.CloseReasonPlanChange
		}
		if err := c.CloseAllActiveWallets(ctx, ev.UserID, reason, false); err != nil {
			return apperrors.WebhookError{EventType: ev.EventType, Stage: "close_wallets", Err: err}
		}
		if _, err := c.OpenWallet(ctx, &subAfter, false); err != nil {
			return apperrors.WebhookError{EventType: ev.EventType, Stage: "open_wallet", Err: err}
		}
	}

	if err := c.markEventProcessed(ctx, docID); err != nil {
		return apperrors.WebhookError{EventType: ev.EventType, Stage: "mark_processed", Err: err}
	}

	logger.Info("Billing event processed",
		"user_id", ev.UserID,
		"event_type", ev.EventType,
		"status", status,
		"plan_id", resolvedPlan,
		"plan_changed", planChanged,
		"wallet_opened", shouldOpen,
		"wallets_closed", shouldClose,
	)
	metrics.RecordWebhookEvent(ev.EventType, "processed")
	return nil
}

func (c *Core) markEventProcessed(ctx context.Context, docID string) error {
	patch := map[string]any{
		"processedAt": models.NowISO(),
		"status":      models.EventStatusProcessed,
	}
	return c.store.Set(ctx, models.CollectionWebhookEvents, docID, patch, true)
}
