package billing

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/models"
)

// RevenueCat parses RevenueCat webhook deliveries. RevenueCat wraps the
// event in an envelope and timestamps everything in epoch milliseconds.
type RevenueCat struct {
	token string
}

// NewRevenueCat builds the adapter. An empty token disables auth, for
// local development only.
func NewRevenueCat(token string) *RevenueCat {
	return &RevenueCat{token: token}
}

func (p *RevenueCat) Name() string { return "revenuecat" }

// Verify checks the static bearer token RevenueCat is configured to send.
func (p *RevenueCat) Verify(r *http.Request, _ []byte) error {
	if p.token == "" {
		return nil
	}
	// TrimPrefix is a no-op when the scheme is absent, so bare tokens
	// verify too.
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(p.token)) != 1 {
		return apperrors.ErrUnauthorized
	}
	return nil
}

type rcEnvelope struct {
	Event rcEvent `json:"event"`
}

type rcEvent struct {
	ID                     string   `json:"id"`
	Type                   string   `json:"type"`
	AppUserID              string   `json:"app_user_id"`
	OriginalAppUserID      string   `json:"original_app_user_id"`
	ProductID              string   `json:"product_id"`
	EntitlementIDs         []string `json:"entitlement_ids"`
	Store                  string   `json:"store"`
	PurchasedAtMs          any      `json:"purchased_at_ms"`
	ExpirationAtMs         any      `json:"expiration_at_ms"`
	OriginalPurchaseDateMs any      `json:"original_purchase_date_ms"`
	AutoRenewStatus        *bool    `json:"auto_renew_status"`
}

// Parse maps the envelope into a normalized event. The app user id doubles
// as our user id; anonymous RevenueCat ids ($RCAnonymousID:...) carry no
// account linkage and leave UserID empty.
func (p *RevenueCat) Parse(body []byte) (*models.BillingEvent, error) {
	var env rcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.WebhookError{EventType: "revenuecat", Stage: "parse", Err: err}
	}
	e := env.Event
	if e.Type == "" {
		return nil, apperrors.ValidationError{Field: "event.type", Message: "required"}
	}

	userID := e.AppUserID
	if userID == "" {
		userID = e.OriginalAppUserID
	}
	if strings.HasPrefix(userID, "$RCAnonymousID:") {
		userID = ""
	}

	return &models.BillingEvent{
		UserID:               userID,
		EventID:              e.ID,
		EventType:            e.Type,
		RCAppUserID:          e.AppUserID,
		ProductID:            e.ProductID,
		EntitlementIDs:       e.EntitlementIDs,
		Platform:             strings.ToLower(e.Store),
		WillRenew:            e.AutoRenewStatus,
		PeriodStart:          models.NormalizeTimestamp(e.PurchasedAtMs),
		PeriodEnd:            models.NormalizeTimestamp(e.ExpirationAtMs),
		OriginalPurchaseDate: models.NormalizeTimestamp(e.OriginalPurchaseDateMs),
		Raw:                  body,
	}, nil
}
