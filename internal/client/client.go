// Package client is a Go client for the resource selector HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/models"
	"github.com/ILLUVRSE/resource-selector/internal/service"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type Option func(*Client)

// WithToken sends a bearer token, needed for catalog writes.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx reply. It matches the service and catalog sentinel
// errors with errors.Is, so callers handle remote and local failures alike.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("resource selector returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("resource selector returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case service.ErrInvalidRequest:
		return e.Kind == "invalid_request"
	case service.ErrPolicyRejected:
		return e.Kind == "policy_rejected"
	case service.ErrNoSuitableResource:
		return e.Kind == "no_suitable_resource"
	case catalog.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

func (c *Client) Select(ctx context.Context, req models.SelectionRequest) (models.SelectionResponse, error) {
	var out models.SelectionResponse
	err := c.do(ctx, http.MethodPost, "/select", req, &out)
	return out, err
}

type BatchResult struct {
	Responses []models.SelectionResponse `json:"responses"`
	Total     int                        `json:"total"`
	Requested int                        `json:"requested"`
}

func (c *Client) SelectBatch(ctx context.Context, reqs []models.SelectionRequest) (BatchResult, error) {
	var out BatchResult
	err := c.do(ctx, http.MethodPost, "/select/batch", reqs, &out)
	return out, err
}

func (c *Client) ListModels(ctx context.Context) ([]models.ResourceDescriptor, error) {
	var out struct {
		Models []models.ResourceDescriptor `json:"models"`
	}
	err := c.do(ctx, http.MethodGet, "/models", nil, &out)
	return out.Models, err
}

func (c *Client) GetModel(ctx context.Context, id string) (models.ResourceDescriptor, error) {
	var out models.ResourceDescriptor
	err := c.do(ctx, http.MethodGet, "/models/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) PutModel(ctx context.Context, d models.ResourceDescriptor) (models.ResourceDescriptor, error) {
	var out models.ResourceDescriptor
	err := c.do(ctx, http.MethodPut, "/models/"+url.PathEscape(d.ID), d, &out)
	return out, err
}

func (c *Client) SetModelStatus(ctx context.Context, id, status string) (models.ResourceDescriptor, error) {
	var out models.ResourceDescriptor
	err := c.do(ctx, http.MethodPut, "/models/"+url.PathEscape(id)+"/status", map[string]string{"status": status}, &out)
	return out, err
}

type Feedback struct {
	Rating      float64                `json:"rating"`
	Performance map[string]interface{} `json:"performance,omitempty"`
	Comments    string                 `json:"comments,omitempty"`
}

func (c *Client) RecordFeedback(ctx context.Context, resourceID string, fb Feedback) error {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/models/"+url.PathEscape(resourceID)+"/feedback", fb, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("feedback for %s not acknowledged", resourceID)
	}
	return nil
}

type Health struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	return apiErr
}
