package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aiorreal/quota-service/internal/auth"
	"github.com/aiorreal/quota-service/internal/billing"
	"github.com/aiorreal/quota-service/internal/database"
	apperrors "github.com/aiorreal/quota-service/internal/errors"
	middlewares "github.com/aiorreal/quota-service/internal/middleware"
	"github.com/aiorreal/quota-service/internal/quota"
	"github.com/aiorreal/quota-service/internal/ratelimit"
)

// Handler handles HTTP requests for the API
type Handler struct {
	engine      *quota.Core
	db          *database.DB
	authRepo    *auth.Repository
	limiter     ratelimit.Limiter
	revenuecat  billing.Provider
	stripe      billing.Provider
	adminSecret string
	version     string
	buildTime   string
	gitCommit   string
	startTime   time.Time
}

// NewHandler creates a new API handler. authRepo and limiter may be nil,
// which disables service key auth and throttling respectively.
func NewHandler(engine *quota.Core, db *database.DB, authRepo *auth.Repository, limiter ratelimit.Limiter, rc, stripe billing.Provider, adminSecret, version, buildTime, gitCommit string) *Handler {
	return &Handler{
		engine:      engine,
		db:          db,
		authRepo:    authRepo,
		limiter:     limiter,
		revenuecat:  rc,
		stripe:      stripe,
		adminSecret: adminSecret,
		version:     version,
		buildTime:   buildTime,
		gitCommit:   gitCommit,
		startTime:   time.Now(),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {
		// Health check endpoints
		r.Get("/health", h.healthHandler)
		r.Get("/health/ready", h.readinessHandler)
		r.Get("/health/live", h.livenessHandler)
		r.Get("/version", h.versionHandler)

		// Quota endpoints, called by backend services
		r.Group(func(r chi.Router) {
			r.Use(middlewares.ServiceKeyAuth(h.authRepo))
			r.Post("/quota/ensure", h.ensureQuotaHandler)
			r.Get("/quota/snapshot", h.snapshotHandler)
			r.Post("/quota/reserve", h.reserveHandler)
			r.Post("/quota/commit", h.commitHandler)
			r.Post("/quota/rollback", h.rollbackHandler)
		})

		// Billing provider webhooks, authenticated per provider
		r.Post("/webhooks/revenuecat", h.revenuecatWebhook)
		r.Post("/webhooks/stripe", h.stripeWebhook)
	})

	// Admin routes (protected by shared secret middleware)
	r.Route("/v1/admin", func(r chi.Router) {
		r.With(middlewares.AdminSecret(h.adminSecret)).Group(func(r chi.Router) {
			r.Post("/keys", h.adminCreateKey)
			r.Get("/keys", h.adminListKeys)
			r.Post("/keys/{key_id}/revoke", h.adminRevokeKey)
		})
	})

	// Root health check
	r.Get("/health", h.healthHandler)
}

// healthHandler provides basic health check
func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// readinessHandler checks if the application is ready to serve traffic
func (h *Handler) readinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{
		"database": "ok",
	}

	statusCode := http.StatusOK

	if h.db != nil && h.db.IsConfigured() {
		if err := h.db.Health(ctx); err != nil {
			checks["database"] = "error: " + err.Error()
			statusCode = http.StatusServiceUnavailable
		}
	} else {
		checks["database"] = "not configured"
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}

	h.writeJSONResponse(w, statusCode, response)
}

// livenessHandler checks if the application is alive
func (h *Handler) livenessHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// versionHandler returns version information
func (h *Handler) versionHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"version":    h.version,
		"build_time": h.buildTime,
		"git_commit": h.gitCommit,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes a standardized error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: r.Header.Get("X-Request-ID"),
	}

	h.writeJSONResponse(w, statusCode, response)
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		h.writeErrorResponse(w, r, http.StatusBadRequest, ve.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		h.writeErrorResponse(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrUnauthorized):
		h.writeErrorResponse(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeErrorResponse(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, apperrors.ErrConflict):
		h.writeErrorResponse(w, r, http.StatusConflict, "conflict, retry the request")
	case errors.Is(err, apperrors.ErrRateLimit):
		h.writeErrorResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
