package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"synchub/integration"
)

const (
	requestTimeout = 30 * time.Second
	userAgent      = "SyncHub/1.0"
	maxAttempts    = 3
)

// restClient is the shared transport for providers without a Go SDK in use
// (Microsoft Graph, Zoom, Webex, CalDAV). It enforces the per-provider rate
// budget around every request and retries transient failures with
// exponential backoff.
type restClient struct {
	deps Deps
}

func newRESTClient(deps Deps) *restClient {
	return &restClient{deps: deps}
}

// request describes one provider API call.
type request struct {
	method  string
	url     string
	body    interface{}
	rawBody []byte
	headers map[string]string

	provider    integration.Provider
	organizerID string

	// basicUser/basicPass switch the request to Basic auth (CalDAV);
	// otherwise bearerToken is sent.
	bearerToken string
	basicUser   string
	basicPass   string

	// okStatuses lists the status codes treated as success. Empty means any
	// 2xx.
	okStatuses []int

	// notFoundOK treats 404 (and 410) as success with a nil body, for
	// idempotent deletes.
	notFoundOK bool
}

// response is the successful outcome of a request.
type response struct {
	status int
	body   []byte
}

func (r *restClient) do(ctx context.Context, req *request) (*response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			log.Printf("Retrying %s %s (attempt %d/%d)", req.method, req.url, attempt, maxAttempts)
		}

		resp, err := r.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !integration.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *restClient) doOnce(ctx context.Context, req *request) (*response, error) {
	if err := r.deps.Limiter.Check(ctx, req.provider, req.organizerID); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	switch {
	case req.rawBody != nil:
		bodyReader = bytes.NewReader(req.rawBody)
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bodyReader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	switch {
	case req.basicUser != "" || req.basicPass != "":
		httpReq.SetBasicAuth(req.basicUser, req.basicPass)
	case req.bearerToken != "":
		httpReq.Header.Set("Authorization", "Bearer "+req.bearerToken)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := r.deps.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", req.provider, err)
	}
	defer httpResp.Body.Close()

	// The call reached the provider; it counts against the budget whatever
	// the status.
	if err := r.deps.Limiter.Record(ctx, req.provider, req.organizerID); err != nil {
		log.Printf("Warning: failed to record %s API call: %v", req.provider, err)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", req.provider, err)
	}

	if req.notFoundOK && (httpResp.StatusCode == http.StatusNotFound || httpResp.StatusCode == http.StatusGone) {
		return &response{status: httpResp.StatusCode}, nil
	}
	if ok(httpResp.StatusCode, req.okStatuses) {
		return &response{status: httpResp.StatusCode, body: body}, nil
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w", req.provider, integration.ErrTokenExpired)
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &integration.RateLimitError{Provider: req.provider, Current: -1, Limit: -1}
	default:
		return nil, &integration.APIError{Provider: req.provider, StatusCode: httpResp.StatusCode, Body: truncate(string(body), 512)}
	}
}

func ok(status int, allowed []int) bool {
	if len(allowed) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range allowed {
		if status == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
