package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client is a thin client for backend services talking to the quota API.
type Client struct {
	BaseURL    string
	ServiceKey string
	HTTP       *http.Client
}

func New(baseURL, serviceKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{BaseURL: baseURL, ServiceKey: serviceKey, HTTP: http.DefaultClient}
}

// Snapshot mirrors the API's quota view.
type Snapshot struct {
	PlanID         string `json:"planId"`
	PlanKey        string `json:"planKey"`
	Cycle          string `json:"cycle"`
	IsActive       bool   `json:"isActive"`
	WillRenew      bool   `json:"willRenew"`
	PeriodStart    string `json:"periodStart"`
	PeriodEnd      string `json:"periodEnd"`
	QuotaTotal     int    `json:"quotaTotal"`
	QuotaUsed      int    `json:"quotaUsed"`
	QuotaRemaining int    `json:"quotaRemaining"`
	WalletID       string `json:"walletId"`
}

// ReserveResult mirrors the API's reservation outcome.
type ReserveResult struct {
	Allowed   bool   `json:"allowed"`
	Status    string `json:"status"`
	Remaining int    `json:"remaining"`
	WalletID  string `json:"walletId"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ServiceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("quota api %d: %s %s", resp.StatusCode, apiErr.Error, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// EnsureQuota guarantees the user exists and returns the current snapshot.
// premium, when non-nil, reports the caller's entitlement check.
func (c *Client) EnsureQuota(ctx context.Context, userID, email string, premium *bool, entitlementProductID string) (*Snapshot, error) {
	body := map[string]any{"userId": userID, "email": email}
	if premium != nil {
		body["premium"] = *premium
		body["entitlementProductId"] = entitlementProductID
	}
	var snap Snapshot
	if err := c.do(ctx, "POST", "/v1/quota/ensure", body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetSnapshot reads the quota view without mutating anything.
func (c *Client) GetSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	var snap Snapshot
	path := "/v1/quota/snapshot?userId=" + url.QueryEscape(userID)
	if err := c.do(ctx, "GET", path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Reserve places a pending debit keyed by requestID. Call Commit after the
// work succeeds or Rollback after it fails; retries with the same requestID
// are safe.
func (c *Client) Reserve(ctx context.Context, userID, requestID, action string, amount int) (*ReserveResult, error) {
	var res ReserveResult
	body := map[string]any{
		"userId":    userID,
		"requestId": requestID,
		"action":    action,
		"amount":    amount,
	}
	if err := c.do(ctx, "POST", "/v1/quota/reserve", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Commit settles a reservation and returns the terminal status.
func (c *Client) Commit(ctx context.Context, userID, requestID string) (string, error) {
	return c.settle(ctx, "/v1/quota/commit", userID, requestID)
}

// Rollback refunds a reservation and returns the terminal status.
func (c *Client) Rollback(ctx context.Context, userID, requestID string) (string, error) {
	return c.settle(ctx, "/v1/quota/rollback", userID, requestID)
}

func (c *Client) settle(ctx context.Context, path, userID, requestID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	body := map[string]string{"userId": userID, "requestId": requestID}
	if err := c.do(ctx, "POST", path, body, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}
