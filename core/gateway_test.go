package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig(baseURL string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	return cfg
}

func TestAPIGateway_AttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"items":[],"subtotal":0}`))
	}))
	defer server.Close()

	gateway := NewAPIGateway(testGatewayConfig(server.URL), nil)
	gateway.SetToken("test-token")

	resp := gateway.Get(context.Background(), "/api/cart")
	require.True(t, resp.OK())
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Len(t, gotRequestID, 8)
	assert.Equal(t, "application/json", gotContentType)
}

func TestAPIGateway_PrivilegedPathShortCircuitsWithoutToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := NewAPIGateway(testGatewayConfig(server.URL), nil)

	resp := gateway.Get(context.Background(), "/api/cart")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Authentication required. Please log in.", resp.Err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no network call should be made")

	err := resp.Error()
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))
}

func TestAPIGateway_AuthFreePathsPassWithoutToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	gateway := NewAPIGateway(testGatewayConfig(server.URL), nil)

	paths := []string{
		"/api/products",
		"/api/products/1",
		"/api/categories",
		"/api/auth/login",
		"/api/public/stats",
	}
	for _, path := range paths {
		resp := gateway.Get(context.Background(), path)
		assert.True(t, resp.OK(), "path %s should reach the server", path)
	}
	assert.Equal(t, int32(len(paths)), atomic.LoadInt32(&calls))
}

func TestAPIGateway_ClearToken(t *testing.T) {
	gateway := NewAPIGateway(testGatewayConfig("http://localhost:1"), nil)

	gateway.SetToken("tok")
	assert.True(t, gateway.HasToken())

	gateway.ClearToken()
	assert.False(t, gateway.HasToken())

	resp := gateway.Get(context.Background(), "/api/cart")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestAPIGateway_TransportFailureIsStatusZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	gateway := NewAPIGateway(testGatewayConfig(server.URL), nil)
	resp := gateway.Get(context.Background(), "/api/products")

	assert.Equal(t, 0, resp.Status)
	assert.False(t, resp.OK())
	assert.True(t, IsNetworkUnavailable(resp.Error()))
}

func TestAPIGateway_ParsesErrorBody(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "structured error message",
			status:  http.StatusBadRequest,
			body:    `{"error":"Product not available"}`,
			wantErr: "Product not available",
		},
		{
			name:    "unstructured body falls back to generic message",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: "Something went wrong",
		},
		{
			name:    "empty error field falls back to generic message",
			status:  http.StatusInternalServerError,
			body:    `{"error":""}`,
			wantErr: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gateway := NewAPIGateway(testGatewayConfig(server.URL), nil)
			resp := gateway.Get(context.Background(), "/api/products")

			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.wantErr, resp.Err)
		})
	}
}

func TestAPIResponse_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"transport failure", 0, ErrNetworkUnavailable},
		{"unauthorized", http.StatusUnauthorized, ErrAuthRejected},
		{"forbidden", http.StatusForbidden, ErrAuthRejected},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"server fault", http.StatusInternalServerError, ErrServerFault},
		{"bad gateway", http.StatusBadGateway, ErrServerFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &APIResponse{Status: tt.status, Err: "boom"}
			err := resp.Error()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))

			var clientErr *ClientError
			require.ErrorAs(t, err, &clientErr)
			assert.Equal(t, tt.status, clientErr.Status)
			assert.Equal(t, "boom", clientErr.Message)
		})
	}

	t.Run("success yields nil", func(t *testing.T) {
		resp := &APIResponse{Status: http.StatusCreated}
		assert.NoError(t, resp.Error())
	})
}

func TestAPIResponse_Decode(t *testing.T) {
	resp := &APIResponse{Status: 200, Data: []byte(`{"user":{"id":7,"name":"Ana"}}`)}

	var envelope userEnvelope
	require.NoError(t, resp.Decode(&envelope))
	assert.Equal(t, ID("7"), envelope.User.ID)
	assert.Equal(t, "Ana", envelope.User.Name)

	empty := &APIResponse{Status: 200}
	assert.Error(t, empty.Decode(&envelope))
}

func TestAPIGateway_NoContentResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	gateway := NewAPIGateway(testGatewayConfig(server.URL), nil)
	gateway.SetToken("tok")

	resp := gateway.Delete(context.Background(), "/api/cart/1")
	assert.True(t, resp.OK())
	assert.Empty(t, resp.Data)
}
