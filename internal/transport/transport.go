// Package transport is the Transport component (C7): the HTTP boundary
// between the Sync Runner and the opaque remote peer. Grounded on the
// teacher's internal/syncclient/client.go do/doRequest pattern, generalized
// from the teacher's authenticated-REST shape to the two-endpoint push/pull
// wire contract in package wire.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tdsync/core/internal/wire"
)

// defaultTimeout is the per-call timeout spec §4.7 and §5 require when the
// caller does not set one explicitly.
const defaultTimeout = 15 * time.Second

// Kind classifies a transport failure per spec §7.
type Kind int

const (
	KindTimeout Kind = iota
	KindNetwork
	KindStatus
)

// Error is the TransportError spec §4.7 and §7 require: every non-2xx
// response, network failure, or timeout surfaces as one of these instead of
// a bare error string, so the Sync Runner can tell a rate limit from a
// permanent rejection.
type Error struct {
	Kind         Kind
	Message      string
	Code         wire.ErrorCode
	RetryAfterMs *int
	Err          error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "transport error"
}

func (e *Error) Unwrap() error { return e.Err }

// RetryAfter returns the server's requested backoff, or zero if absent.
func (e *Error) RetryAfter() time.Duration {
	if e.RetryAfterMs == nil {
		return 0
	}
	return time.Duration(*e.RetryAfterMs) * time.Millisecond
}

// HTTPClient is the subset of *http.Client the transport needs, so callers
// can substitute the managed-provider adapter's token-refreshing client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport implements syncrunner.Transport over plain JSON-over-HTTP
// POSTs, one call per push or pull, per spec §4.7.
type HTTPTransport struct {
	PushURL string
	PullURL string
	Client  HTTPClient
	Timeout time.Duration
}

// New builds an HTTPTransport. pushURL and pullURL must both be set or both
// empty per spec §6's push_url/pull_url rule; that invariant is enforced by
// package syncconfig before a transport is constructed.
func New(pushURL, pullURL string, client HTTPClient) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPTransport{PushURL: pushURL, PullURL: pullURL, Client: client, Timeout: defaultTimeout}
}

// Push sends one push request and returns the parsed push response.
func (t *HTTPTransport) Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error) {
	var resp wire.PushResponse
	if err := t.do(ctx, t.PushURL, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull sends one pull request and returns the parsed pull response.
func (t *HTTPTransport) Pull(ctx context.Context, req *wire.PullRequest) (*wire.PullResponse, error) {
	var resp wire.PullResponse
	if err := t.do(ctx, t.PullURL, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping hits a reachability check endpoint, grounded on the teacher's
// HealthCheck call against /healthz. It is used by the doctor connectivity
// check (SPEC_FULL.md §4's supplemented feature), not by the sync cycle
// itself.
func (t *HTTPTransport) Ping(ctx context.Context, healthURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "build health request", Err: err}
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return classifyDoErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &Error{Kind: KindStatus, Message: fmt.Sprintf("health check: HTTP %d", resp.StatusCode)}
	}
	return nil
}

func (t *HTTPTransport) do(ctx context.Context, url string, body, result any) error {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return classifyDoErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		var serverErr wire.ServerError
		if json.Unmarshal(respBody, &serverErr) == nil && serverErr.Code != "" {
			kind := KindStatus
			return &Error{Kind: kind, Message: serverErr.Error(), Code: serverErr.Code, RetryAfterMs: serverErr.RetryAfterMs, Err: &serverErr}
		}
		return &Error{Kind: KindStatus, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody))}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &Error{Kind: KindNetwork, Message: "unmarshal response", Err: err}
		}
	}
	return nil
}

func classifyDoErr(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "http request failed", Err: err}
}
