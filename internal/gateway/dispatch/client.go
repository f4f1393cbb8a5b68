// Package dispatch is the only caller of the external worker-dispatch
// provider. Every failure surfaces as *apperr.SyncError.
package dispatch

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
	"time"

	"offer-dispatch/internal/apperr"
)

// List of provider operations
const (
	OpAssign     = "assign_worker"
	OpUnassign   = "unassign_worker"
	OpMoveToPool = "move_to_pool"
)

// HTTPClient talks JSON to the provider API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a provider client. A zero timeout means 5s.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid dispatch base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: u.String(),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type assignRequest struct {
	WorkerID string `json:"worker_id"`
}

type poolRequest struct {
	PoolID string `json:"pool_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// AssignWorker binds a worker to the container (task or route).
func (c *HTTPClient) AssignWorker(ctx context.Context, containerID, workerID string) error {
	return c.do(ctx, OpAssign, containerID, http.MethodPut, "/worker", assignRequest{WorkerID: workerID})
}

// UnassignWorker removes whichever worker is bound to the container.
func (c *HTTPClient) UnassignWorker(ctx context.Context, containerID string) error {
	return c.do(ctx, OpUnassign, containerID, http.MethodDelete, "/worker", nil)
}

// MoveToPool parks the container in an operator pool.
func (c *HTTPClient) MoveToPool(ctx context.Context, containerID, poolID string) error {
	return c.do(ctx, OpMoveToPool, containerID, http.MethodPost, "/pool", poolRequest{PoolID: poolID})
}

func (c *HTTPClient) do(ctx context.Context, op, containerID, method, suffix string, body any) error {
	if strings.TrimSpace(containerID) == "" {
		return &apperr.SyncError{Op: op, Err: errors.New("empty container id")}
	}

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &apperr.SyncError{Op: op, Container: containerID, Err: err}
		}
		rd = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + "/containers/" + url.PathEscape(containerID) + suffix
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return &apperr.SyncError{Op: op, Container: containerID, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// retryable unless the caller's context is done
		return &apperr.SyncError{Op: op, Container: containerID, Retryable: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	var cause error
	if eb.Error != "" {
		cause = errors.New(eb.Error)
	}
	return &apperr.SyncError{
		Op:         op,
		Container:  containerID,
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Err:        cause,
	}
}
