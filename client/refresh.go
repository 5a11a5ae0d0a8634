package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/flowkeep/apiclient/apierr"
)

// refreshTask is the single in-flight credential refresh. Every request
// that hits a 401 while one exists waits on done instead of starting its
// own; err is set before done is closed.
type refreshTask struct {
	done chan struct{}
	err  error
}

// refreshCredential returns once a refresh has completed, joining the
// pending one when it exists. At most one refresh call is ever in flight
// process-wide; the check-then-create below is atomic under refreshMu.
func (c *Client) refreshCredential(ctx context.Context) error {
	c.refreshMu.Lock()
	task := c.refreshPending
	if task == nil {
		task = &refreshTask{done: make(chan struct{})}
		c.refreshPending = task
		go c.runRefresh(task)
	} else {
		c.metrics.Refresh("joined")
	}
	c.refreshMu.Unlock()

	select {
	case <-task.done:
		return task.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runRefresh performs the dedicated refresh call. On success the new
// credential lands in the token store before waiters are released; on
// failure the store is cleared so waiters surface their original 401
// instead of retrying forever.
func (c *Client) runRefresh(task *refreshTask) {
	access, err := c.doRefreshCall(context.Background())
	if err != nil {
		c.store.Clear()
		c.metrics.Refresh("failure")
		c.log.Warn().Err(err).Msg("credential refresh failed")
		task.err = fmt.Errorf("%w: %w", apierr.ErrRefreshFailed, err)
	} else {
		c.store.Set(access)
		c.metrics.Refresh("success")
		c.log.Debug().Msg("credential refreshed")
	}

	c.refreshMu.Lock()
	c.refreshPending = nil
	c.refreshMu.Unlock()
	close(task.done)
}

// doRefreshCall posts to the refresh endpoint. The refresh credential rides
// on the transport's same-origin cookie, never in the body, and the call
// bypasses the normal pipeline: no cache, no retry, no Authorization
// header.
func (c *Client) doRefreshCall(ctx context.Context) (string, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.refreshPath(), bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("refresh: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apierr.ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apierr.ErrNetwork, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", errorFromBody(httpResp.StatusCode, body)
	}
	return decodeAccess(body)
}

func (c *Client) refreshPath() string {
	return c.cfg.AuthPathPrefix + "refresh"
}

type accessPayload struct {
	Access string `json:"access"`
}

// decodeAccess extracts the credential from a sign-in or refresh body,
// which carries it either directly or nested under "data".
func decodeAccess(body []byte) (string, error) {
	var direct accessPayload
	if err := json.Unmarshal(body, &direct); err == nil && direct.Access != "" {
		return direct.Access, nil
	}
	var nested struct {
		Data accessPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Data.Access != "" {
		return nested.Data.Access, nil
	}
	return "", apierr.ErrMalformedBody
}

// Refresh forces a credential refresh, joining the pending one when a
// 401-triggered refresh is already running.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refreshCredential(ctx)
}
