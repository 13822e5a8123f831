package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNetwork indicates a transport-level failure talking to an upstream.
	// Safe for the caller to retry manually.
	ErrNetwork = errors.New("upstream unreachable")

	// ErrUnauthorized indicates the upstream rejected the bearer token.
	ErrUnauthorized = errors.New("upstream rejected credentials")

	// ErrMalformed indicates the upstream broke its response contract.
	// Treated as fatal for the call; the payload is never guessed at.
	ErrMalformed = errors.New("malformed upstream response")
)

// Error carries a non-401 upstream rejection with its human-readable message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned %d", e.Status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// Client performs JSON round-trips against a single upstream base URL. The
// bearer credential is an explicit per-request parameter; nothing is stored
// on the client, so one instance is safe across concurrent logical sessions.
type Client struct {
	base string
	http *http.Client
}

// New builds a client for the given base URL.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Do sends a JSON request and decodes the JSON response into out. A non-empty
// bearer is attached as an Authorization header. body and out may be nil.
func (c *Client) Do(ctx context.Context, method, path, bearer string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, errorMessage(raw))
	case resp.StatusCode >= 400:
		return &Error{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// errorMessage digs a human-readable message out of an upstream error body.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, m := range []string{body.Message, body.Error, body.Detail} {
			if m != "" {
				return m
			}
		}
	}
	return "request rejected"
}
