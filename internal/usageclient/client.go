package usageclient

import (
	"chat-quota-api/internal/pkg/errors"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Usage is the caller's quota position as reported by the usage endpoint.
type Usage struct {
	MessagesLeft int
	MessagesUsed int
	MaxMessages  int
	ResetTime    *time.Time
}

type usageResponse struct {
	Success      bool       `json:"success"`
	MessagesLeft *int       `json:"messagesLeft"`
	MessagesUsed *int       `json:"messagesUsed"`
	MaxMessages  *int       `json:"maxMessages"`
	ResetTime    *time.Time `json:"resetTime"`
	Error        string     `json:"error"`
}

// Fetcher reads the current usage for one identity.
type Fetcher interface {
	Usage(ctx context.Context) (*Usage, error)
}

// Client reads usage from a chat-quota-api server on behalf of one bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/usage", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Unavailable(err, "usage request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.ErrInvalidToken
	}

	var body usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode usage response (status %d): %w", resp.StatusCode, err)
	}
	if !body.Success {
		msg := body.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			return nil, errors.Unavailable(fmt.Errorf("%s", msg), "usage unavailable")
		}
		return nil, fmt.Errorf("usage request failed: %s", msg)
	}
	if body.MessagesLeft == nil || body.MessagesUsed == nil || body.MaxMessages == nil {
		return nil, fmt.Errorf("usage response missing counters")
	}

	return &Usage{
		MessagesLeft: *body.MessagesLeft,
		MessagesUsed: *body.MessagesUsed,
		MaxMessages:  *body.MaxMessages,
		ResetTime:    body.ResetTime,
	}, nil
}
