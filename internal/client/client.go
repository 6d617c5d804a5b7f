// Package client talks to the expense API and turns listings into the totals
// and breakdowns shown to a user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"spendbook/internal/models"

	"github.com/google/uuid"
)

// ErrNetwork wraps transport failures: the request never got an HTTP answer.
var ErrNetwork = errors.New("network error")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// CreateResult is the outcome of a creation call.
type CreateResult struct {
	Expense models.Expense
	// Created is false when the server replayed an earlier record.
	Created bool
}

// ListOptions selects and orders a listing.
type ListOptions struct {
	Category    string
	NewestFirst bool
}

// Client is a small HTTP client for the expense API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newToken   func() string
}

// New creates a Client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		newToken:   uuid.NewString,
	}
}

// CreateExpense validates in locally, then submits it with a fresh
// idempotency token. Every call is a new attempt with a new token.
func (c *Client) CreateExpense(ctx context.Context, in models.ExpenseInput) (CreateResult, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return CreateResult{}, err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return CreateResult{}, fmt.Errorf("encode expense: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/expenses", bytes.NewReader(body))
	if err != nil {
		return CreateResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", c.newToken())

	resp, err := c.do(req)
	if err != nil {
		return CreateResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return CreateResult{}, readAPIError(resp)
	}

	var e models.Expense
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return CreateResult{}, fmt.Errorf("decode expense: %w", err)
	}
	return CreateResult{Expense: e, Created: resp.StatusCode == http.StatusCreated}, nil
}

// ListExpenses fetches the listing selected by opts.
func (c *Client) ListExpenses(ctx context.Context, opts ListOptions) ([]models.Expense, error) {
	q := url.Values{}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	if opts.NewestFirst {
		q.Set("sort", "date_desc")
	}
	target := c.baseURL + "/expenses"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("decode expenses: response is not a JSON array")
	}

	expenses := []models.Expense{}
	if err := json.Unmarshal(trimmed, &expenses); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	return expenses, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
