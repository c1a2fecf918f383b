package models

import "encoding/json"

// Collection names for the document store
const (
	CollectionUsers         = "users_quota"
	CollectionSubscriptions = "subscriptions_quota"
	CollectionWallets       = "quota_wallets"
	CollectionUsages        = "quota_usages"
	CollectionWebhookEvents = "webhook_events"
)

// Billing cycles
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Subscription statuses
const (
	SubStatusActive       = "active"
	SubStatusCancelled    = "cancelled"
	SubStatusExpired      = "expired"
	SubStatusRefunded     = "refunded"
	SubStatusBillingIssue = "billing_issue"
)

// Wallet statuses
const (
	WalletStatusActive = "active"
	WalletStatusClosed = "closed"
)

// Wallet close reasons
const (
	CloseReasonPeriodReset = "period_reset"
	CloseReasonPlanChange  = "plan_change"
)

// Usage record statuses
const (
	UsageStatusReserved   = "reserved"
	UsageStatusCommitted  = "committed"
	UsageStatusRolledBack = "rolled_back"
)

// Webhook event statuses
const (
	EventStatusReceived  = "received"
	EventStatusProcessed = "processed"
)

// User anchors a user's existence in the quota domain. Created lazily,
// never deleted.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Subscription is the per-user subscription projection, document id = userId.
// isActive is true iff status is active or cancelled (cancelled subscriptions
// stay usable until period end).
type Subscription struct {
	UserID               string   `json:"userId"`
	Platform             string   `json:"platform,omitempty"`
	RCAppUserID          string   `json:"rcAppUserId,omitempty"`
	ProductID            string   `json:"productId,omitempty"`
	PlanID               string   `json:"planId,omitempty"`
	PlanKey              string   `json:"planKey,omitempty"`
	Cycle                string   `json:"cycle,omitempty"`
	EntitlementIDs       []string `json:"entitlementIds,omitempty"`
	IsActive             bool     `json:"isActive"`
	WillRenew            bool     `json:"willRenew"`
	Status               string   `json:"status,omitempty"`
	CurrentPeriodStart   string   `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     string   `json:"currentPeriodEnd,omitempty"`
	LastEventAt          string   `json:"lastEventAt,omitempty"`
	OriginalPurchaseDate string   `json:"originalPurchaseDate,omitempty"`
	CreatedAt            string   `json:"createdAt,omitempty"`
	UpdatedAt            string   `json:"updatedAt,omitempty"`
}

// Wallet is a time-bounded quota budget backing one subscription period.
// At most one wallet per user is active at any instant.
type Wallet struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	PlanID         string `json:"planId,omitempty"`
	Scope          string `json:"scope,omitempty"` // monthly or yearly, copied from plan cycle
	PeriodStart    string `json:"periodStart,omitempty"`
	PeriodEnd      string `json:"periodEnd,omitempty"`
	QuotaTotal     int    `json:"quotaTotal"`
	QuotaUsed      int    `json:"quotaUsed"`
	Status         string `json:"status"`
	LastUsageAt    string `json:"lastUsageAt,omitempty"`
	ClosedReason   string `json:"closedReason,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// Remaining returns the wallet's unconsumed quota, never negative.
func (w *Wallet) Remaining() int {
	r := w.QuotaTotal - w.QuotaUsed
	if r < 0 {
		return 0
	}
	return r
}

// UsageRecord is a pending or settled debit against a wallet, document id =
// {userId}_{requestId}. Lifecycle: reserved -> committed | rolled_back.
type UsageRecord struct {
	UserID    string `json:"userId"`
	WalletID  string `json:"walletId"`
	RequestID string `json:"requestId"`
	Action    string `json:"action,omitempty"`
	Amount    int    `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// UsageDocID builds the composite usage document id that makes reservations
// idempotent per (user, request).
func UsageDocID(userID, requestID string) string {
	return userID + "_" + requestID
}

// WebhookEvent records one received billing event for dedup and forensics.
// First write wins; a second arrival of the same id is a duplicate.
type WebhookEvent struct {
	ProviderEventID string          `json:"providerEventId,omitempty"`
	EventType       string          `json:"eventType"`
	RCAppUserID     string          `json:"rcAppUserId,omitempty"`
	ReceivedAt      string          `json:"receivedAt"`
	ProcessedAt     string          `json:"processedAt,omitempty"`
	PayloadJSON     json.RawMessage `json:"payloadJson,omitempty"`
	Status          string          `json:"status"`
}
