package api

import (
	"io"
	"net/http"

	"github.com/aiorreal/quota-service/internal/billing"
	"github.com/aiorreal/quota-service/internal/logger"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// revenuecatWebhook handles POST /v1/webhooks/revenuecat
func (h *Handler) revenuecatWebhook(w http.ResponseWriter, r *http.Request) {
	h.providerWebhook(w, r, h.revenuecat)
}

// stripeWebhook handles POST /v1/webhooks/stripe
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.providerWebhook(w, r, h.stripe)
}

func (h *Handler) providerWebhook(w http.ResponseWriter, r *http.Request, p billing.Provider) {
	ctx := r.Context()

	if p == nil {
		h.writeErrorResponse(w, r, http.StatusNotFound, "provider not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "cannot read body")
		return
	}

	if err := p.Verify(r, body); err != nil {
		logger.WithContext(ctx).Warn("Webhook signature rejected", "provider", p.Name())
		h.writeErrorResponse(w, r, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := p.Parse(body)
	if err != nil {
		logger.WithContext(ctx).Warn("Webhook payload rejected",
			"provider", p.Name(),
			"error", err,
		)
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	if ev == nil {
		// Event type outside the subscription lifecycle; acknowledge so the
		// provider stops retrying.
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.engine.ProcessBillingEvent(ctx, ev); err != nil {
		logger.WithContext(ctx).Error("Failed to process billing event",
			"provider", p.Name(),
			"event_type", ev.EventType,
			"error", err,
		)
		// Signal the provider to retry.
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "processing failed")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
