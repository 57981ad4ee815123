// Package client provides a typed HTTP client for the draftpad API with
// built-in retry and conflict handling.
//
// Each logical request moves through a small state machine: an attempt
// either succeeds, retries (transport failure or a retryable status — 429,
// 502, 503, 504 — within the retry budget, waiting per the shared backoff
// policy and preferring a server-provided retry-after hint), surfaces a
// version conflict (409, decoded into a [*models.ConflictError] and returned
// without automatic retry, because resolving a conflict needs a decision),
// or fails with a normalized [*APIError].
//
// Conflict resolution is offered as two explicit operations: [Client.GetPage]
// to discard local edits and reload server state, and
// [Client.ResubmitWithServerVersion] to re-issue the local edit at the
// server's reported version. Resubmission can itself race and conflict
// again, so it loops — up to a bound, after which [ErrNoConvergence] is
// returned rather than spinning under sustained contention.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/retry"
)

// DefaultMaxConflictRounds bounds the resubmit-on-conflict loop.
const DefaultMaxConflictRounds = 5

// ErrNoConvergence reports that repeated conflict resubmissions kept losing
// to other writers and the loop gave up.
var ErrNoConvergence = errors.New("update did not converge: too many conflict rounds")

// retryableStatuses is the status set both sides agree to retry.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// APIError is the normalized failure shape for non-conflict errors. A zero
// StatusCode means the transport failed before any response arrived.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string // field-level validation messages, if any
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %s", e.Message)
	}
	return fmt.Sprintf("API error: status=%d, message=%s", e.StatusCode, e.Message)
}

// Client provides typed access to the draftpad REST API. Safe for concurrent
// use by multiple goroutines.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	retryCfg          retry.Config
	maxConflictRounds int
}

// NewClient creates a client with the default retry budget and a 30-second
// request timeout. baseURL includes protocol and host, no trailing slash.
func NewClient(baseURL string) *Client {
	return NewClientWithConfig(baseURL, retry.DefaultConfig())
}

// NewClientWithConfig creates a client with an explicit retry configuration.
func NewClientWithConfig(baseURL string, cfg retry.Config) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryCfg:          cfg,
		maxConflictRounds: DefaultMaxConflictRounds,
	}
}

// errorBody is the server's generic error payload.
type errorBody struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields"`
	RetryAfter int               `json:"retryAfter"`
}

// do drives one logical request through the retry state machine and decodes
// a successful response into target.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, target any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	maxRetries := c.retryCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = retry.DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			hint := hintFromError(lastErr)
			if err := c.sleep(ctx, retry.Backoff(attempt-1, c.retryCfg, hint)); err != nil {
				return err
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport-level failure: the network is unreachable or the
			// connection broke. Retried like any transient status.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &transientFailure{apiErr: &APIError{Message: err.Error()}}
			if attempt >= maxRetries {
				return &APIError{Message: fmt.Sprintf("network error after %d attempts: %v", attempt+1, err)}
			}
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if retryableStatuses[resp.StatusCode] {
			lastErr = &transientFailure{
				apiErr:     &APIError{StatusCode: resp.StatusCode, Message: string(raw)},
				retryAfter: retryAfterHint(resp, raw),
			}
			if attempt >= maxRetries {
				return &APIError{
					StatusCode: resp.StatusCode,
					Message:    "service unavailable, retries exhausted",
				}
			}
			continue
		}

		return decodeResponse(resp.StatusCode, raw, target)
	}
}

// transientFailure carries the retry-after hint between loop iterations.
type transientFailure struct {
	apiErr     *APIError
	retryAfter time.Duration
}

func (t *transientFailure) Error() string { return t.apiErr.Error() }

func hintFromError(err error) time.Duration {
	var t *transientFailure
	if errors.As(err, &t) {
		return t.retryAfter
	}
	return 0
}

// retryAfterHint extracts the server's suggested wait: the Retry-After
// header wins, then a retryAfter field in the body. Both are in seconds.
func retryAfterHint(resp *http.Response, raw []byte) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter) * time.Second
	}
	return 0
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.retryCfg.Sleep != nil {
		return c.retryCfg.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeResponse maps terminal statuses: 2xx decodes into target, 409
// becomes a *models.ConflictError, anything else a *APIError.
func decodeResponse(status int, raw []byte, target any) error {
	if status == http.StatusConflict {
		var conflict models.ConflictError
		if err := json.Unmarshal(raw, &conflict); err != nil {
			return &APIError{StatusCode: status, Message: string(raw)}
		}
		return &conflict
	}

	if status >= 400 {
		var body errorBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return &APIError{StatusCode: status, Message: string(raw)}
		}
		msg := body.Error
		if msg == "" {
			msg = body.Message
		}
		return &APIError{StatusCode: status, Message: msg, Fields: body.Fields}
	}

	if target != nil && status != http.StatusNoContent && len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Workspace management

// CreateWorkspace creates a workspace. A non-empty idempotencyKey makes the
// request safe to repeat: the server replays the first response.
func (c *Client) CreateWorkspace(ctx context.Context, workspace *models.Workspace, idempotencyKey string) (*models.Workspace, error) {
	var result models.Workspace
	if err := c.do(ctx, http.MethodPost, "/api/workspaces", idempotencyKey, workspace, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWorkspace retrieves a workspace by ID.
func (c *Client) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	var result models.Workspace
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/workspaces/%s", id), "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteWorkspace deletes a workspace and, transitively, its pages.
func (c *Client) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/workspaces/%s", id), "", nil, nil)
}

// Page management

// CreatePage creates a page in the workspace. A non-empty idempotencyKey
// makes the request safe to repeat.
func (c *Client) CreatePage(ctx context.Context, workspaceID models.WorkspaceID, page *models.Page, idempotencyKey string) (*models.Page, error) {
	var result models.Page
	path := fmt.Sprintf("/api/workspaces/%s/pages", workspaceID)
	if err := c.do(ctx, http.MethodPost, path, idempotencyKey, page, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPage retrieves a page. Also the "discard local edits" conflict
// resolution: reload the server's state and start over from its version.
func (c *Client) GetPage(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID) (*models.Page, error) {
	var result models.Page
	path := fmt.Sprintf("/api/workspaces/%s/pages/%s", workspaceID, id)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPages lists the workspace's pages.
func (c *Client) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	var result []*models.Page
	path := fmt.Sprintf("/api/workspaces/%s/pages", workspaceID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePage deletes a page.
func (c *Client) DeletePage(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID) error {
	path := fmt.Sprintf("/api/workspaces/%s/pages/%s", workspaceID, id)
	return c.do(ctx, http.MethodDelete, path, "", nil, nil)
}

// UpdatePage submits a versioned edit. version is the page version the
// caller last saw. On a concurrent-edit rejection the returned error is a
// *models.ConflictError carrying both sides of the conflict; no automatic
// retry happens, the caller decides between GetPage (discard) and
// ResubmitWithServerVersion (overwrite at the server's version).
func (c *Client) UpdatePage(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID, title, content *string, version int64) (*models.Page, error) {
	req := struct {
		Title   *string `json:"title,omitempty"`
		Content *string `json:"content,omitempty"`
		V       int64   `json:"v"`
	}{Title: title, Content: content, V: version}

	var result models.Page
	path := fmt.Sprintf("/api/workspaces/%s/pages/%s", workspaceID, id)
	if err := c.do(ctx, http.MethodPut, path, "", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResubmitWithServerVersion re-issues a locally edited page at the version
// the server reported in conflict. The resubmission may race other writers
// and conflict again, so it loops, adopting the newest server version each
// round, up to DefaultMaxConflictRounds. When the rounds run out the last
// conflict is wrapped in ErrNoConvergence.
func (c *Client) ResubmitWithServerVersion(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID, title, content *string, conflict *models.ConflictError) (*models.Page, error) {
	version := conflict.ServerVersion
	for round := 0; round < c.maxConflictRounds; round++ {
		page, err := c.UpdatePage(ctx, workspaceID, id, title, content, version)
		if err == nil {
			return page, nil
		}
		var next *models.ConflictError
		if !errors.As(err, &next) {
			return nil, err
		}
		version = next.ServerVersion
	}
	return nil, fmt.Errorf("%w (last server version %d)", ErrNoConvergence, version)
}
