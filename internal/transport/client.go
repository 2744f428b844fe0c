// Package transport is the request/response client for the widget backend:
// session bootstrap, message send, history fetch and FAQ lookup.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Error carries the backend's failure payload. Fields holds field-level
// validation messages from a rejected bootstrap.
type Error struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transport: request failed with status %d", e.StatusCode)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Bootstrap(ctx context.Context, req BootstrapRequest) (BootstrapResult, error) {
	var out BootstrapResult
	err := c.post(ctx, "/api/v1/sessions", "", req, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, token string, req SendRequest) (SendResult, error) {
	var out SendResult
	err := c.post(ctx, "/api/v1/messages/send", token, req, &out)
	return out, err
}

// History fetches messages for a customer, optionally bounded by since and
// limit. A zero since fetches from the beginning.
func (c *Client) History(ctx context.Context, token, customerID string, since time.Time, limit int) (HistoryResult, error) {
	q := url.Values{}
	q.Set("customerId", customerID)
	if !since.IsZero() {
		q.Set("since", since.Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out HistoryResult
	err := c.get(ctx, "/api/v1/messages/history?"+q.Encode(), token, &out)
	return out, err
}

func (c *Client) DefaultResponses(ctx context.Context, businessID, agentName string) ([]FAQEntry, error) {
	path := fmt.Sprintf("/api/v1/business/%s/%s/default-responses",
		url.PathEscape(businessID), url.PathEscape(agentName))

	var out faqResult
	if err := c.get(ctx, path, "", &out); err != nil {
		return nil, err
	}
	return out.DefaultFAQResponses, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token, out)
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var payload apiError
		_ = json.NewDecoder(res.Body).Decode(&payload)
		return &Error{
			StatusCode: res.StatusCode,
			Message:    payload.Message,
			Fields:     payload.Errors,
		}
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("transport: decode payload: %w", err)
	}
	return nil
}
