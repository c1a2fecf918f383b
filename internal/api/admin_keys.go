package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiorreal/quota-service/internal/logger"
)

type createKeyRequest struct {
	ServiceID string `json:"serviceId"`
	Label     string `json:"label,omitempty"`
	Env       string `json:"env,omitempty"`
}

// adminCreateKey handles POST /v1/admin/keys. The raw key appears in the
// response exactly once and is never retrievable again.
func (h *Handler) adminCreateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.authRepo == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, "key store not configured")
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ServiceID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "serviceId is required")
		return
	}
	if req.Env == "" {
		req.Env = "prod"
	}

	raw, keyID, err := h.authRepo.CreateKey(ctx, req.ServiceID, req.Label, req.Env)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to create service key", "error", err)
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, map[string]string{
		"keyId": keyID,
		"key":   raw,
	})
}

// adminListKeys handles GET /v1/admin/keys?serviceId=
func (h *Handler) adminListKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.authRepo == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, "key store not configured")
		return
	}

	serviceID := r.URL.Query().Get("serviceId")
	if serviceID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "serviceId is required")
		return
	}

	keys, err := h.authRepo.ListKeys(ctx, serviceID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to list service keys", "error", err)
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"data":  keys,
		"count": len(keys),
	})
}

// adminRevokeKey handles POST /v1/admin/keys/{key_id}/revoke
func (h *Handler) adminRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.authRepo == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, "key store not configured")
		return
	}

	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "key id is required")
		return
	}

	if err := h.authRepo.RevokeKey(ctx, keyID); err != nil {
		logger.WithContext(ctx).Error("Failed to revoke service key", "error", err, "key_id", keyID)
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "revoked"})
}
