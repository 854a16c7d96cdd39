package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// authFreePrefixes are the path prefixes the gateway allows without a
// credential. Everything else is privileged: invoking it anonymously
// yields a synthesized local 401 without a network call, so components
// can short-circuit doomed requests.
var authFreePrefixes = []string{
	"/api/auth/",
	"/api/public/",
	"/api/products",
	"/api/categories",
}

// APIResponse is the uniform result of every gateway request.
// Status 0 means the request never reached the collaborator.
type APIResponse struct {
	Data   json.RawMessage
	Err    string
	Status int
}

// OK reports whether the response carries a successful status
func (r *APIResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Error classifies the response into the client error taxonomy.
// Returns nil for successful responses.
func (r *APIResponse) Error() error {
	if r.OK() {
		return nil
	}
	var sentinel error
	switch {
	case r.Status == 0:
		sentinel = ErrNetworkUnavailable
	case r.Status >= 500:
		sentinel = ErrServerFault
	case r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden:
		sentinel = ErrAuthRejected
	case r.Status == http.StatusNotFound:
		sentinel = ErrNotFound
	default:
		sentinel = fmt.Errorf("request failed with status %d", r.Status)
	}
	return &ClientError{
		Kind:    "gateway",
		Message: r.Err,
		Status:  r.Status,
		Err:     sentinel,
	}
}

// Decode unmarshals the response data into v
func (r *APIResponse) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Data, v)
}

// APIGateway is the generic authenticated HTTP transport shared by the
// session manager, cart store, catalog, and order service. The bearer
// credential has a single writer (the session manager); everything else
// only reads it.
type APIGateway struct {
	baseURL string
	client  *http.Client
	logger  Logger

	mu    sync.RWMutex
	token string
}

// NewAPIGateway creates a gateway for the configured remote API
func NewAPIGateway(cfg *Config, logger Logger) *APIGateway {
	if logger == nil {
		logger = &NoOpLogger{}
	}

	transport := http.DefaultTransport
	if cfg.Telemetry.Enabled {
		transport = otelhttp.NewTransport(transport)
	}

	return &APIGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout:   cfg.HTTP.Timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// SetToken installs the bearer credential for subsequent requests
func (g *APIGateway) SetToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	g.logger.Debug("Bearer token set", map[string]interface{}{
		"operation": "gateway_set_token",
	})
}

// ClearToken removes the bearer credential
func (g *APIGateway) ClearToken() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
	g.logger.Debug("Bearer token cleared", map[string]interface{}{
		"operation": "gateway_clear_token",
	})
}

// HasToken reports whether a bearer credential is currently set
func (g *APIGateway) HasToken() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != ""
}

func (g *APIGateway) currentToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

func requiresAuth(path string) bool {
	for _, prefix := range authFreePrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Request performs an HTTP call against the remote API. It never returns
// a Go error directly; transport failures are reported as Status 0 so all
// callers go through one classification path.
func (g *APIGateway) Request(ctx context.Context, method, path string, body interface{}) *APIResponse {
	requestID := uuid.New().String()[:8]
	token := g.currentToken()

	// Defensive contract: privileged path with no credential short-circuits
	// locally instead of making a doomed network call.
	if requiresAuth(path) && token == "" {
		g.logger.Debug("Privileged request short-circuited without credential", map[string]interface{}{
			"operation":  "gateway_request",
			"method":     method,
			"path":       path,
			"request_id": requestID,
		})
		return &APIResponse{
			Err:    "Authentication required. Please log in.",
			Status: http.StatusUnauthorized,
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIResponse{Err: fmt.Sprintf("encode request: %v", err), Status: 0}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return &APIResponse{Err: fmt.Sprintf("build request: %v", err), Status: 0}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	g.logger.Debug("API request", map[string]interface{}{
		"operation":  "gateway_request",
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("API request failed", map[string]interface{}{
			"operation":  "gateway_request",
			"method":     method,
			"path":       path,
			"request_id": requestID,
			"error":      err.Error(),
		})
		return &APIResponse{Err: err.Error(), Status: 0}
	}
	defer resp.Body.Close()

	result := &APIResponse{Status: resp.StatusCode}

	if resp.StatusCode == http.StatusNoContent {
		return result
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Err = fmt.Sprintf("read response: %v", err)
		return result
	}
	result.Data = data

	if !result.OK() {
		// The API reports failures as {"error": "..."}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			result.Err = payload.Error
		} else {
			result.Err = "Something went wrong"
		}
		g.logger.Debug("API request rejected", map[string]interface{}{
			"operation":  "gateway_request",
			"method":     method,
			"path":       path,
			"request_id": requestID,
			"status":     resp.StatusCode,
			"error":      result.Err,
		})
	}

	return result
}

// Get performs a GET request
func (g *APIGateway) Get(ctx context.Context, path string) *APIResponse {
	return g.Request(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with an optional JSON body
func (g *APIGateway) Post(ctx context.Context, path string, body interface{}) *APIResponse {
	return g.Request(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with an optional JSON body
func (g *APIGateway) Put(ctx context.Context, path string, body interface{}) *APIResponse {
	return g.Request(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request
func (g *APIGateway) Delete(ctx context.Context, path string) *APIResponse {
	return g.Request(ctx, http.MethodDelete, path, nil)
}
