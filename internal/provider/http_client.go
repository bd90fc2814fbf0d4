package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a thin JSON/REST adapter for the SMS provider, implementing
// both boundary interfaces. Wire-format details stop here.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client. The API key is sent as a bearer
// token and never logged.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To         string `json:"to"`
	Body       string `json:"body"`
	AccountRef string `json:"accountRef,omitempty"`
}

type sendResponse struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submittedAtUtc"`
}

// Send submits one outbound message.
func (c *Client) Send(ctx context.Context, toE164, body, accountRef string) (*SendResult, error) {
	payload, err := json.Marshal(sendRequest{To: toE164, Body: body, AccountRef: accountRef})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider send rejected: %s", readError(resp))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("provider send response malformed: %w", err)
	}

	result := &SendResult{ProviderID: out.ID, SubmittedAt: out.SubmittedAt}
	if result.SubmittedAt.IsZero() {
		result.SubmittedAt = time.Now().UTC()
	}
	return result, nil
}

// Fetch retrieves one inbox page.
func (c *Client) Fetch(ctx context.Context, direction string, page, pageSize int, accountRef string) (*InboxPage, error) {
	query := url.Values{}
	query.Set("direction", direction)
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	if accountRef != "" {
		query.Set("accountRef", accountRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/inbox?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider inbox fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider inbox fetch rejected: %s", readError(resp))
	}

	var pageOut InboxPage
	if err := json.NewDecoder(resp.Body).Decode(&pageOut); err != nil {
		return nil, fmt.Errorf("provider inbox response malformed: %w", err)
	}
	return &pageOut, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// readError extracts a short error description from a non-2xx response
// without leaking the whole body into logs.
func readError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(body) == 0 {
		return resp.Status
	}

	var wire struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wire) == nil {
		if wire.Error != "" {
			return fmt.Sprintf("%s: %s", resp.Status, wire.Error)
		}
		if wire.Message != "" {
			return fmt.Sprintf("%s: %s", resp.Status, wire.Message)
		}
	}
	return fmt.Sprintf("%s: %s", resp.Status, string(body))
}
