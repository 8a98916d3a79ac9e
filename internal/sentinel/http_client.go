package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultValidatePath = "/sentinelnet/validate"

type HTTPClientConfig struct {
	BaseURL string
	Path    string
	// Timeout bounds one Check including retries. Each attempt gets an
	// equal share of it.
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPClient calls the remote SentinelNet validator. Transport failures,
// 5xx replies and malformed decisions are wrapped with ErrUnavailable. A
// 4xx reply other than 408 or 429 means the validator refused the request
// itself and is returned as a denial without retrying.
type HTTPClient struct {
	baseURL        string
	path           string
	client         *http.Client
	timeout        time.Duration
	attemptTimeout time.Duration
	retries        int
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sentinel base url required")
	}
	path := cfg.Path
	if path == "" {
		path = defaultValidatePath
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		path:           path,
		client:         client,
		timeout:        timeout,
		attemptTimeout: timeout / time.Duration(retries+1),
		retries:        retries,
	}, nil
}

func (c *HTTPClient) Check(ctx context.Context, req Request) (Decision, error) {
	if req.Context == nil {
		req.Context = map[string]interface{}{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, fmt.Errorf("sentinel marshal request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		decision, err := c.attempt(ctx, body)
		if err == nil {
			return decision, nil
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *HTTPClient) attempt(ctx context.Context, body []byte) (Decision, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("sentinel build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()
	return decodeDecision(resp)
}

type wireDecision struct {
	Valid    *bool  `json:"valid"`
	PolicyID string `json:"policyId"`
	Reason   string `json:"reason"`
}

func decodeDecision(resp *http.Response) (Decision, error) {
	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return Decision{}, fmt.Errorf("sentinel unavailable: %s", resp.Status)
	case resp.StatusCode >= 400:
		return Decision{Valid: false, Reason: "validator refused request: " + resp.Status}, nil
	case resp.StatusCode != http.StatusOK:
		return Decision{}, fmt.Errorf("sentinel unexpected status: %s", resp.Status)
	}
	var wire wireDecision
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Decision{}, fmt.Errorf("sentinel decode response: %w", err)
	}
	if wire.Valid == nil {
		return Decision{}, fmt.Errorf("sentinel response missing valid field")
	}
	return Decision{Valid: *wire.Valid, PolicyID: wire.PolicyID, Reason: wire.Reason}, nil
}
