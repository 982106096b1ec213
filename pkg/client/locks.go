package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"eventmarket/pkg/model"
)

// LockClient calls the locks service over HTTP. It has the same Acquire,
// Renew and Release shape as the in-process service so a keeper can drive
// either one.
// MaxServerWait is the longest wait a lock service may apply when the caller
// leaves the choice to it. Services refuse a LOCK_MAX_WAIT above it.
const MaxServerWait = time.Minute

type LockClient struct {
	http *HttpClient
}

func NewLockClient(baseURL string) *LockClient {
	return &LockClient{http: NewHttpClient(baseURL)}
}

// WithTimeout sets the per-request timeout used when ctx has no deadline.
func (c *LockClient) WithTimeout(timeout time.Duration) *LockClient {
	c.http.Timeout = timeout
	return c
}

func lockPath(key model.ResourceKey) string {
	return "/api/v1/locks/" + url.PathEscape(string(key.Type)) + "/" + url.PathEscape(key.RecordID)
}

func (c *LockClient) Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
	var outcome model.AcquireOutcome
	if err := c.call(ctx, http.MethodPost, "/api/v1/locks", req, actor, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *LockClient) Renew(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error) {
	var outcome model.RenewOutcome
	body := &model.RenewRequest{LeaseID: leaseID}
	if err := c.call(ctx, http.MethodPut, lockPath(key)+"/renew", body, actor, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *LockClient) Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error {
	return c.call(ctx, http.MethodDelete, lockPath(key), nil, actor, nil)
}

func (c *LockClient) Status(ctx context.Context, actor model.Actor, key model.ResourceKey) (*model.LockStatus, error) {
	var status model.LockStatus
	if err := c.call(ctx, http.MethodGet, lockPath(key), nil, actor, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Wait blocks server side for up to maxWait. A zero maxWait uses the
// server's default, which is at most MaxServerWait.
func (c *LockClient) Wait(ctx context.Context, actor model.Actor, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error) {
	path := lockPath(key) + "/wait"
	budget := MaxServerWait
	if maxWait > 0 {
		path += "?max_wait=" + url.QueryEscape(maxWait.String())
		budget = maxWait
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget+c.http.Timeout)
		defer cancel()
	}

	var outcome model.WaitOutcome
	if err := c.call(ctx, http.MethodGet, path, nil, actor, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *LockClient) ForceRelease(ctx context.Context, actor model.Actor, key model.ResourceKey, reason string) (*model.ForceReleaseResult, error) {
	var result model.ForceReleaseResult
	path := "/api/v1/admin/locks/" + url.PathEscape(string(key.Type)) + "/" + url.PathEscape(key.RecordID)
	body := &model.ForceReleaseRequest{Reason: reason}
	if err := c.call(ctx, http.MethodDelete, path, body, actor, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *LockClient) Purge(ctx context.Context, actor model.Actor) (*model.PurgeResult, error) {
	var result model.PurgeResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/admin/locks/purge", nil, actor, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *LockClient) List(ctx context.Context, actor model.Actor, resourceType model.ResourceType, limit int, offset int64) ([]*model.LockStatus, int64, error) {
	query := url.Values{}
	if resourceType != "" {
		query.Set("type", string(resourceType))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	path := "/api/v1/admin/locks"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := c.http.GET(ctx, path, ActorHeaders(actor))
	if err != nil {
		return nil, 0, err
	}
	if err := resp.Err(); err != nil {
		return nil, 0, err
	}

	var page struct {
		Data       []*model.LockStatus `json:"data"`
		TotalCount int64               `json:"total_count"`
	}
	if err := resp.DecodeJSON(&page); err != nil {
		return nil, 0, fmt.Errorf("failed to decode lock list: %w", err)
	}
	return page.Data, page.TotalCount, nil
}

func (c *LockClient) call(ctx context.Context, method, path string, body any, actor model.Actor, out any) error {
	resp, err := c.http.Do(ctx, method, path, body, ActorHeaders(actor))
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.DecodeData(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
