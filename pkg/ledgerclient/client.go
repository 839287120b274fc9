/**
 * @description
 * This package provides a client for communicating with the ledger service.
 * It encapsulates the API calls the subscription-service needs: posting
 * credit/debit entries when a payment status flips, and listing the ledger's
 * accounts for the accounts proxy endpoint.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the ledger service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new ledger service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PostEntryRequest defines the payload for posting one ledger entry. Reference
// is an idempotency key: the ledger rejects a duplicate reference instead of
// double-posting, so a retried request cannot move money twice.
type PostEntryRequest struct {
	AccountID   string `json:"account_id"`
	Direction   string `json:"direction"` // "credit" or "debit"
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
	Description string `json:"description,omitempty"`
}

// PostEntryResponse defines the response from posting a ledger entry.
type PostEntryResponse struct {
	EntryID string `json:"entry_id"`
}

// Account is one ledger account as the ledger service reports it.
type Account struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // "open" or "closed"
}

// PostEntry posts one credit or debit to the ledger service.
func (c *Client) PostEntry(ctx context.Context, entry PostEntryRequest) (*PostEntryResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("ledger service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/entries", c.baseURL)

	body, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to ledger service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ledger service returned error status %d", resp.StatusCode)
	}

	var response PostEntryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}

// ListAccounts fetches every ledger account, open and closed.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("ledger service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/accounts", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to ledger service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ledger service returned error status %d", resp.StatusCode)
	}

	var accounts []Account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return accounts, nil
}
