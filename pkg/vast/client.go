// Package vast is a minimal client for the Vast.ai instances API, covering
// the calls an auto-shutdown monitor needs: list rented instances, resolve
// a configured target, and stop an instance. Errors are classified so
// callers can tell a bad credential from a retryable outage.
package vast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Vast.ai console API endpoint.
const DefaultBaseURL = "https://console.vast.ai"

// Client talks to the Vast.ai instances API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string        // provider endpoint; DefaultBaseURL when empty
	APIKey  string        // account API key, sent as a query parameter
	Timeout time.Duration // per-request timeout
	Logger  *slog.Logger  // optional; the API key never reaches it
}

// DefaultConfig returns client configuration for the public API.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}
}

// New creates a Vast.ai API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// Instances lists all instances rented by the account.
func (c *Client) Instances(ctx context.Context) ([]Instance, error) {
	const op = "list instances"
	resp, err := c.do(ctx, http.MethodGet, "/api/v0/instances/", op)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp, op); err != nil {
		return nil, err
	}
	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &RemoteError{Op: op, Transient: true, Err: fmt.Errorf("decode response: %w", err)}
	}
	c.logger.Debug("listed instances", "count", len(payload.Instances))
	return payload.Instances, nil
}

// Resolve returns the instances matching target: an all-digit target
// matches the instance id, anything else the exact label.
func (c *Client) Resolve(ctx context.Context, target string) ([]Instance, error) {
	instances, err := c.Instances(ctx)
	if err != nil {
		return nil, err
	}
	return Match(instances, target), nil
}

// VerifyTarget confirms the credential is accepted and target resolves to
// a rented instance. Called once at monitor start so a bad key or a stale
// target fails fast. When several instances share a label the first match
// is used.
func (c *Client) VerifyTarget(ctx context.Context, target string) (Instance, error) {
	matches, err := c.Resolve(ctx, target)
	if err != nil {
		return Instance{}, err
	}
	if len(matches) == 0 {
		return Instance{}, &NotFoundError{Target: target}
	}
	if len(matches) > 1 {
		c.logger.Warn("target matches multiple instances, using the first",
			"target", target, "matches", len(matches), "id", matches[0].ID)
	}
	return matches[0], nil
}

// Stop destroys the rented instance. Retry policy is the caller's, driven
// by the error classification.
func (c *Client) Stop(ctx context.Context, id int) error {
	op := fmt.Sprintf("stop instance %d", id)
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v0/instances/%d/", id), op)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp, op); err != nil {
		return err
	}
	c.logger.Info("instance stop accepted", "id", id)
	return nil
}

// do performs one request with the API key attached as a query parameter,
// the authentication form the provider expects. Failures before a response
// arrives are transient by definition.
func (c *Client) do(ctx context.Context, method, path, op string) (*http.Response, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		err = redactQuery(err)
		c.logger.Debug("provider request failed", "op", op, "error", err)
		return nil, &RemoteError{Op: op, Transient: true, Err: err}
	}
	return resp, nil
}

// checkStatus classifies a non-2xx response: 401/403 is a credential
// problem, 5xx and throttling are transient, any other 4xx is permanent.
func (c *Client) checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := apiMessage(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("provider rejected the API key", "op", op, "status", resp.StatusCode)
		return &AuthError{Status: resp.StatusCode}
	case resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout:
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: msg, Transient: true}
	default:
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: msg}
	}
}

// apiMessage pulls a human-readable message out of an error body.
func apiMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Msg
}

// redactQuery strips the query string from a request error. Transport
// errors embed the full URL, which carries the API key; the key must not
// leak into logs or status records.
func redactQuery(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if u, perr := url.Parse(uerr.URL); perr == nil {
			u.RawQuery = ""
			uerr.URL = u.String()
		}
	}
	return err
}
