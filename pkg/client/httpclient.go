package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/model"
)

// Header names understood by the services' identity middleware.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderRequestID = "X-Request-ID"
)

const DefaultTimeout = 10 * time.Second

type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// Timeout bounds a request whose context carries no deadline of its own.
	Timeout time.Duration
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Timeout:    DefaultTimeout,
	}
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// DecodeData unwraps the {"data": ...} envelope of a success response.
func (r *Response) DecodeData(target any) error {
	envelope := struct {
		Data any `json:"data"`
	}{Data: target}
	return json.Unmarshal(r.Body, &envelope)
}

// Err turns a non-2xx response into an AppError carrying the server's code.
func (r *Response) Err() error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	var errResp struct {
		Error   string         `json:"error"`
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	_ = r.DecodeJSON(&errResp)
	if errResp.Code == "" {
		errResp.Code = apperrors.CodeInternal
	}
	if errResp.Error == "" {
		errResp.Error = http.StatusText(r.StatusCode)
	}
	return apperrors.New(errResp.Code, errResp.Error, r.StatusCode).WithDetails(errResp.Details)
}

func ActorHeaders(actor model.Actor) map[string]string {
	headers := map[string]string{HeaderActorID: actor.ID}
	if actor.Role != "" {
		headers[HeaderActorRole] = actor.Role
	}
	return headers
}

func (c *HttpClient) GET(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, headers)
}

func (c *HttpClient) POST(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, headers)
}

func (c *HttpClient) PUT(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, headers)
}

func (c *HttpClient) DELETE(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, body, headers)
}

func (c *HttpClient) Do(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	if _, ok := ctx.Deadline(); !ok && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     respBody,
	}, nil
}

func (c *HttpClient) WaitForHealthy(ctx context.Context, maxWait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := c.GET(ctx, "/health", nil)
		if err == nil && resp.StatusCode == http.StatusOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("service did not become healthy within %v", maxWait)
		case <-ticker.C:
		}
	}
}
