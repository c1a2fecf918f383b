package billing

import (
	"net/http"

	"github.com/aiorreal/quota-service/internal/models"
)

// Provider translates one billing provider's webhook deliveries into
// normalized events. Verify rejects deliveries that fail the provider's
// authentication scheme; Parse never mutates subscription state itself.
type Provider interface {
	Name() string
	Verify(r *http.Request, body []byte) error
	Parse(body []byte) (*models.BillingEvent, error)
}
