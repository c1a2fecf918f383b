package quota

import (
	"context"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/metrics"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/plan"
	"github.com/aiorreal/quota-service/internal/store"
)

// Reserve places a pending debit of amount against the user's active wallet,
// keyed by the client-supplied request id. Replays with the same request id
// observe the original outcome without touching the wallet; quota exhaustion
// is a rejection, not an error.
func (c *Core) Reserve(ctx context.Context, userID, requestID, action string, amount int) (*models.ReserveResult, error) {
	if userID == "" {
		return nil, apperrors.ValidationError{Field: "userId", Message: "required"}
	}
	if requestID == "" {
		return nil, apperrors.ValidationError{Field: "requestId", Message: "required"}
	}
	if amount < 1 {
		return nil, apperrors.ValidationError{Field: "amount", Message: "must be at least 1"}
	}

	sub, err := c.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		metrics.RecordReserve("rejected")
		return &models.ReserveResult{Allowed: false, Status: models.ReserveStatusRejected}, nil
	}

	// Free-tier users carry an inactive subscription but still draw from a
	// rolling free wallet; any other inactive subscription rejects.
	var wallet *models.Wallet
	switch {
	case sub.IsActive:
		wallet, err = c.EnsureActiveWallet(ctx, userID, sub)
	case sub.PlanID == plan.PlanFree:
		wallet, err = c.ensureFreeWallet(ctx, userID)
	default:
		metrics.RecordReserve("rejected")
		return &models.ReserveResult{Allowed: false, Status: models.ReserveStatusRejected}, nil
	}
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		metrics.RecordReserve("rejected")
		return &models.ReserveResult{Allowed: false, Status: models.ReserveStatusRejected}, nil
	}

	res := &models.ReserveResult{}
	usageID := models.UsageDocID(userID, requestID)

	err = c.store.RunTransaction(ctx, func(tx store.Tx) error {
		var w models.Wallet
		found, err := tx.Get(models.CollectionWallets, wallet.ID, &w)
		if err != nil {
			return err
		}
		if !found {
			*res = models.ReserveResult{Allowed: false, Status: models.ReserveStatusRejected}
			return nil
		}

		var u models.UsageRecord
		replay, err := tx.Get(models.CollectionUsages, usageID, &u)
		if err != nil {
			return err
		}

		if w.Status != models.WalletStatusActive {
			*res = models.ReserveResult{
				Allowed:   false,
				Status:    models.ReserveStatusRejected,
				Remaining: w.Remaining(),
				WalletID:  w.ID,
			}
			return nil
		}

		// Idempotent replay: the client observes the same outcome on retry.
		if replay {
			*res = models.ReserveResult{
				Allowed:   u.Status != models.UsageStatusRolledBack,
				Status:    u.Status,
				Remaining: w.Remaining(),
				WalletID:  u.WalletID,
			}
			return nil
		}

		if w.QuotaUsed+amount > w.QuotaTotal {
			*res = models.ReserveResult{
				Allowed:   false,
				Status:    models.ReserveStatusRejected,
				Remaining: w.Remaining(),
				WalletID:  w.ID,
			}
			return nil
		}

		now := models.NowISO()
		w.QuotaUsed += amount
		w.LastUsageAt = now
		w.UpdatedAt = now
		tx.Set(models.CollectionWallets, w.ID, w, false)

		u = models.UsageRecord{
			UserID:    userID,
			WalletID:  w.ID,
			RequestID: requestID,
			Action:    action,
			Amount:    amount,
			Status:    models.UsageStatusReserved,
			CreatedAt: now,
			UpdatedAt: now,
		}
		tx.Set(models.CollectionUsages, usageID, u, false)

		*res = models.ReserveResult{
			Allowed:   true,
			Status:    models.UsageStatusReserved,
			Remaining: w.Remaining(),
			WalletID:  w.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Status == models.UsageStatusReserved && res.Allowed:
		metrics.RecordReserve("reserved")
	case res.Status == models.ReserveStatusRejected:
		metrics.RecordReserve("rejected")
	default:
		metrics.RecordReserve("replayed")
	}
	return res, nil
}

// Commit settles a reservation. Returns the terminal status, or "" when no
// such reservation exists. Committing twice, or after rollback, returns the
// settled status unchanged.
func (c *Core) Commit(ctx context.Context, userID, requestID string) (string, error) {
	if userID == "" || requestID == "" {
		return "", apperrors.ValidationError{Field: "requestId", Message: "userId and requestId required"}
	}

	usageID := models.UsageDocID(userID, requestID)
	var status string

	err := c.store.RunTransaction(ctx, func(tx store.Tx) error {
		status = ""

		var u models.UsageRecord
		found, err := tx.Get(models.CollectionUsages, usageID, &u)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if u.Status == models.UsageStatusCommitted || u.Status == models.UsageStatusRolledBack {
			status = u.Status
			return nil
		}

		u.Status = models.UsageStatusCommitted
		u.UpdatedAt = models.NowISO()
		tx.Set(models.CollectionUsages, usageID, u, false)
		status = models.UsageStatusCommitted
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// Rollback undoes a reservation, refunding the debit to the wallet. Commit
// wins: rolling back an already committed reservation is a no-op returning
// "committed", since undoing an acknowledged debit would leak quota.
func (c *Core) Rollback(ctx context.Context, userID, requestID string) (string, error) {
	if userID == "" || requestID == "" {
		return "", apperrors.ValidationError{Field: "requestId", Message: "userId and requestId required"}
	}

	usageID := models.UsageDocID(userID, requestID)
	var status string

	err := c.store.RunTransaction(ctx, func(tx store.Tx) error {
		status = ""

		var u models.UsageRecord
		found, err := tx.Get(models.CollectionUsages, usageID, &u)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if u.Status == models.UsageStatusCommitted || u.Status == models.UsageStatusRolledBack {
			status = u.Status
			return nil
		}

		now := models.NowISO()

		var w models.Wallet
		walletFound, err := tx.Get(models.CollectionWallets, u.WalletID, &w)
		if err != nil {
			return err
		}
		if walletFound {
			w.QuotaUsed -= u.Amount
			if w.QuotaUsed < 0 {
				w.QuotaUsed = 0
			}
			w.UpdatedAt = now
			tx.Set(models.CollectionWallets, w.ID, w, false)
		}

		u.Status = models.UsageStatusRolledBack
		u.UpdatedAt = now
		tx.Set(models.CollectionUsages, usageID, u, false)
		status = models.UsageStatusRolledBack
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}
