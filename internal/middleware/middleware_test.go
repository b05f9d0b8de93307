package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/pkg/hash"
)

func echoBody(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_, _ = w.Write(body)
}

func TestHashValidationMiddleware(t *testing.T) {
	body := []byte(`{"cpu":"x"}`)
	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{name: "disabled", key: "", header: "garbage", want: http.StatusOK},
		{name: "no header", key: "k", header: "", want: http.StatusOK},
		{name: "none", key: "k", header: "none", want: http.StatusOK},
		{name: "valid", key: "k", header: hash.ComputeHash(body, "k"), want: http.StatusOK},
		{name: "invalid", key: "k", header: hash.ComputeHash(body, "other"), want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HashValidationMiddleware(tt.key)(http.HandlerFunc(echoBody))
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
			if tt.header != "" {
				req.Header.Set(hash.HeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, body, w.Body.Bytes())
			}
		})
	}
}

func TestGzipRequestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"a":1}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	h := GzipRequestMiddleware(http.HandlerFunc(echoBody))

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"a":1}`, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("plain")))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrustedSubnetMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	tests := []struct {
		name   string
		subnet string
		realIP string
		want   int
	}{
		{name: "no subnet", subnet: "", realIP: "", want: http.StatusOK},
		{name: "bad cidr allows", subnet: "not-a-cidr", realIP: "", want: http.StatusOK},
		{name: "inside", subnet: "10.0.0.0/8", realIP: "10.1.2.3", want: http.StatusOK},
		{name: "outside", subnet: "10.0.0.0/8", realIP: "192.168.0.1", want: http.StatusForbidden},
		{name: "missing header", subnet: "10.0.0.0/8", realIP: "", want: http.StatusForbidden},
		{name: "bad ip", subnet: "10.0.0.0/8", realIP: "x.y", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			w := httptest.NewRecorder()
			TrustedSubnetMiddleware(tt.subnet)(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

type staticParser map[string]model.Address

func (p staticParser) ParseToken(token string) (model.Address, error) {
	if addr, ok := p[token]; ok {
		return addr, nil
	}
	return "", model.ErrUnauthorized
}

func TestRequireCaller(t *testing.T) {
	var seen model.Address
	h := RequireCaller(staticParser{"good": "0xABC"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.CallerFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer good", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, model.Address("0xABC"), seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

type availability bool

func (a availability) IsAvailable(context.Context) bool { return bool(a) }

func TestRequireAvailable(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	RequireAvailable(availability(true))(ok).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	RequireAvailable(availability(false))(ok).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	h := LoggingMiddleware(RequireCaller(staticParser{"good": "0xABC"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("brew"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "brew", w.Body.String())
}


func TestRejectWritesJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	RequireAvailable(availability(false))(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/", nil))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"ledger is not available"}`, w.Body.String())
}

func TestGzipRequestBodyLimit(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(bytes.Repeat([]byte{'0'}, maxBodySize+1))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var readErr error
	h := GzipRequestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/octet-stream")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}
