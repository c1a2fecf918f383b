package models

// BillingEvent is the normalized inbound billing signal. Provider adapters
// produce it from raw webhook payloads; the webhook processor consumes it.
type BillingEvent struct {
	UserID               string   `json:"userId"`
	EventID              string   `json:"eventId,omitempty"`
	EventType            string   `json:"eventType"`
	RCAppUserID          string   `json:"rcAppUserId,omitempty"`
	ProductID            string   `json:"productId,omitempty"`
	EntitlementIDs       []string `json:"entitlementIds,omitempty"`
	Platform             string   `json:"platform,omitempty"`
	WillRenew            *bool    `json:"willRenew,omitempty"`
	PeriodStart          string   `json:"periodStart,omitempty"`
	PeriodEnd            string   `json:"periodEnd,omitempty"`
	OriginalPurchaseDate string   `json:"originalPurchaseDate,omitempty"`
	Raw                  []byte   `json:"-"`
}

// Reserve statuses beyond the usage record lifecycle
const (
	ReserveStatusRejected = "rejected"
)

// ReserveResult is the discriminated outcome of a reservation attempt.
type ReserveResult struct {
	Allowed   bool   `json:"allowed"`
	Status    string `json:"status"`
	Remaining int    `json:"remaining"`
	WalletID  string `json:"walletId,omitempty"`
}

// Snapshot is the composed quota view returned to the API layer.
type Snapshot struct {
	PlanID         string `json:"planId,omitempty"`
	PlanKey        string `json:"planKey,omitempty"`
	Cycle          string `json:"cycle,omitempty"`
	IsActive       bool   `json:"isActive"`
	WillRenew      bool   `json:"willRenew"`
	PeriodStart    string `json:"periodStart,omitempty"`
	PeriodEnd      string `json:"periodEnd,omitempty"`
	QuotaTotal     int    `json:"quotaTotal"`
	QuotaUsed      int    `json:"quotaUsed"`
	QuotaRemaining int    `json:"quotaRemaining"`
	WalletID       string `json:"walletId,omitempty"`
}

// PremiumHint is the optional premium-status oracle input to EnsureQuota.
type PremiumHint struct {
	Premium              bool   `json:"premium"`
	EntitlementProductID string `json:"entitlementProductId,omitempty"`
}
