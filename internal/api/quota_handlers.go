package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aiorreal/quota-service/internal/logger"
	"github.com/aiorreal/quota-service/internal/models"
)

type ensureRequest struct {
	UserID               string `json:"userId"`
	Email                string `json:"email,omitempty"`
	Premium              *bool  `json:"premium,omitempty"`
	EntitlementProductID string `json:"entitlementProductId,omitempty"`
}

type reserveRequest struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
	Action    string `json:"action,omitempty"`
	Amount    int    `json:"amount,omitempty"`
}

type settleRequest struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
}

// throttle applies the per-user limiter; true means the request was already
// answered with 429.
func (h *Handler) throttle(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.limiter == nil || userID == "" {
		return false
	}
	allowed, resetSec, err := h.limiter.Allow(r.Context(), userID)
	if err != nil {
		// A broken limiter must not take the quota API down with it.
		logger.WithContext(r.Context()).Warn("Rate limiter unavailable", "error", err)
		return false
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(resetSec))
		h.writeErrorResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		return true
	}
	return false
}

// ensureQuotaHandler handles POST /v1/quota/ensure
func (h *Handler) ensureQuotaHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ensureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "userId is required")
		return
	}
	if h.throttle(w, r, req.UserID) {
		return
	}

	var hint *models.PremiumHint
	if req.Premium != nil {
		hint = &models.PremiumHint{
			Premium:              *req.Premium,
			EntitlementProductID: req.EntitlementProductID,
		}
	}

	snap, err := h.engine.EnsureQuota(ctx, req.UserID, req.Email, hint)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to ensure quota", "error", err, "user_id", req.UserID)
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, snap)
}

// snapshotHandler handles GET /v1/quota/snapshot?userId=
func (h *Handler) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "userId is required")
		return
	}

	snap, err := h.engine.GetSnapshot(ctx, userID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to read snapshot", "error", err, "user_id", userID)
		h.writeDomainError(w, r, err)
		return
	}
	if snap == nil {
		h.writeErrorResponse(w, r, http.StatusNotFound, "no subscription for user")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, snap)
}

// reserveHandler handles POST /v1/quota/reserve
func (h *Handler) reserveHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	if h.throttle(w, r, req.UserID) {
		return
	}

	res, err := h.engine.Reserve(ctx, req.UserID, req.RequestID, req.Action, req.Amount)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to reserve quota",
			"error", err,
			"user_id", req.UserID,
			"request_id", req.RequestID,
		)
		h.writeDomainError(w, r, err)
		return
	}

	// Quota exhaustion is a well-formed outcome, not a transport error.
	h.writeJSONResponse(w, http.StatusOK, res)
}

// commitHandler handles POST /v1/quota/commit
func (h *Handler) commitHandler(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.engine.Commit)
}

// rollbackHandler handles POST /v1/quota/rollback
func (h *Handler) rollbackHandler(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.engine.Rollback)
}

// settle shares the commit/rollback shape: both resolve a reservation to a
// terminal status, and both answer 404 for unknown reservations.
func (h *Handler) settle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, requestID string) (string, error)) {
	ctx := r.Context()

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	status, err := op(ctx, req.UserID, req.RequestID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to settle reservation",
			"error", err,
			"user_id", req.UserID,
			"request_id", req.RequestID,
		)
		h.writeDomainError(w, r, err)
		return
	}
	if status == "" {
		h.writeErrorResponse(w, r, http.StatusNotFound, "reservation not found")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": status})
}
