package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"eventmarket/pkg/model"
)

type JobCartClient struct {
	http *HttpClient
}

func NewJobCartClient(baseURL string) *JobCartClient {
	return &JobCartClient{http: NewHttpClient(baseURL)}
}

func jobCartPath(id string) string {
	return "/api/v1/job-carts/id/" + url.PathEscape(id)
}

func (c *JobCartClient) Create(ctx context.Context, actor model.Actor, cart *model.JobCart) (*model.JobCart, error) {
	var created model.JobCart
	if err := c.call(ctx, http.MethodPost, "/api/v1/job-carts", cart, actor, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *JobCartClient) Accept(ctx context.Context, actor model.Actor, jobCartID string) (*model.ClaimResult, error) {
	var result model.ClaimResult
	if err := c.call(ctx, http.MethodPost, jobCartPath(jobCartID)+"/accept", nil, actor, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *JobCartClient) Decline(ctx context.Context, actor model.Actor, jobCartID string) (*model.ClaimResult, error) {
	var result model.ClaimResult
	if err := c.call(ctx, http.MethodPost, jobCartPath(jobCartID)+"/decline", nil, actor, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *JobCartClient) CanUploadQuotation(ctx context.Context, actor model.Actor, jobCartID string) (*model.UploadPermission, error) {
	var permission model.UploadPermission
	if err := c.call(ctx, http.MethodGet, jobCartPath(jobCartID)+"/quotation-permission", nil, actor, &permission); err != nil {
		return nil, err
	}
	return &permission, nil
}

func (c *JobCartClient) Available(ctx context.Context, actor model.Actor, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, int64, error) {
	query := url.Values{}
	if filter.Location != "" {
		query.Set("location", filter.Location)
	}
	if filter.ServiceType != "" {
		query.Set("service_type", filter.ServiceType)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	path := "/api/v1/job-carts/available"
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
		Data       []*model.JobCart `json:"data"`
		TotalCount int64            `json:"total_count"`
	}
	if err := resp.DecodeJSON(&page); err != nil {
		return nil, 0, fmt.Errorf("failed to decode job cart list: %w", err)
	}
	return page.Data, page.TotalCount, nil
}

func (c *JobCartClient) call(ctx context.Context, method, path string, body any, actor model.Actor, out any) error {
	resp, err := c.http.Do(ctx, method, path, body, ActorHeaders(actor))
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if err := resp.DecodeData(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
