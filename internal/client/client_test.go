package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/models"
	"github.com/ILLUVRSE/resource-selector/internal/service"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func newTestClient(fn roundTripFunc, opts ...Option) *Client {
	opts = append(opts, WithHTTPClient(&http.Client{Transport: fn}))
	return New("http://selector/", opts...)
}

func TestSelectSendsRequest(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/select", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body models.SelectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "code review", body.TaskType)
		return jsonResponse(http.StatusOK, `{"success":true,"selectedResource":{"id":"coder"},"confidence":0.8}`), nil
	})

	resp, err := c.Select(context.Background(), models.SelectionRequest{TaskType: "code review"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "coder", resp.SelectedResource.ID)
	assert.Equal(t, 0.8, resp.Confidence)
}

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		status int
		body   string
		target error
	}{
		{http.StatusBadRequest, `{"error":"taskType required","kind":"invalid_request"}`, service.ErrInvalidRequest},
		{http.StatusForbidden, `{"error":"denied","kind":"policy_rejected"}`, service.ErrPolicyRejected},
		{http.StatusUnprocessableEntity, `{"error":"none","kind":"no_suitable_resource"}`, service.ErrNoSuitableResource},
		{http.StatusNotFound, `{"error":"resource not found","kind":"not_found"}`, catalog.ErrNotFound},
	}
	for _, tc := range cases {
		c := newTestClient(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, tc.body), nil
		})
		_, err := c.Select(context.Background(), models.SelectionRequest{TaskType: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, tc.target), "%d: %v", tc.status, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, tc.status, apiErr.StatusCode)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream down"), nil
	})
	_, err := c.Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Kind)
	assert.False(t, errors.Is(err, service.ErrInvalidRequest))
}

func TestCatalogWritesSendToken(t *testing.T) {
	var paths []string
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPut, r.Method)
		paths = append(paths, r.URL.EscapedPath())
		return jsonResponse(http.StatusOK, `{"id":"a b","status":"unavailable"}`), nil
	}, WithToken("secret"))

	_, err := c.PutModel(context.Background(), models.ResourceDescriptor{ID: "a b"})
	require.NoError(t, err)
	d, err := c.SetModelStatus(context.Background(), "a b", models.StatusUnavailable)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnavailable, d.Status)
	assert.Equal(t, []string{"/models/a%20b", "/models/a%20b/status"}, paths)
}

func TestRecordFeedbackRequiresAck(t *testing.T) {
	ack := `{"success":true}`
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/models/gpt/feedback", r.URL.Path)
		return jsonResponse(http.StatusOK, ack), nil
	})
	require.NoError(t, c.RecordFeedback(context.Background(), "gpt", Feedback{Rating: 3}))

	ack = `{"success":false}`
	assert.Error(t, c.RecordFeedback(context.Background(), "gpt", Feedback{Rating: 3}))
}

func TestSelectBatchSendsArray(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/select/batch", r.URL.Path)
		var body []models.SelectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, "planning", body[1].TaskType)
		return jsonResponse(http.StatusOK, `{"responses":[{"success":true}],"total":1,"requested":2}`), nil
	})

	out, err := c.SelectBatch(context.Background(), []models.SelectionRequest{
		{TaskType: "reasoning"},
		{TaskType: "planning"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
	assert.Equal(t, 2, out.Requested)
}
