package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtdesk/internal/config"
)

// Handler packages and the scheduler are process-wide, so the whole file
// shares one application.
func newTestApplication(t *testing.T) http.Handler {
	t.Helper()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`app:
  name: "courtdesk"
  environment: "test"
  port: 8080
database:
  driver: "sqlite"
  filename: "%s"
rate_limit:
  enabled: true
  writes_per_minute: 600
  burst: 50
features:
  enable_metrics: true
`, filepath.ToSlash(filepath.Join(t.TempDir(), "db", "server.db")))))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	app, err := newApplication(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, app.Close())
	})
	return app.routes()
}

func serve(t *testing.T, handler http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set("X-Staff-Role", role)
		req.Header.Set("X-Staff-Name", "Sam")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServerRoutes(t *testing.T) {
	handler := newTestApplication(t)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", "", http.StatusOK},
		{"anonymous api call", http.MethodGet, "/api/v1/courts", "", "", http.StatusUnauthorized},
		{"unknown role", http.MethodGet, "/api/v1/courts", "coach", "", http.StatusForbidden},
		{"employee lists courts", http.MethodGet, "/api/v1/courts", "employee", "", http.StatusOK},
		{"employee cannot add courts", http.MethodPost, "/api/v1/courts", "employee", `{"name":"Court 1"}`, http.StatusForbidden},
		{"manager adds a court", http.MethodPost, "/api/v1/courts", "manager", `{"name":"Court 1"}`, http.StatusCreated},
		{"employee cannot read reports", http.MethodGet, "/api/v1/reports/day?date=2024-05-01", "employee", "", http.StatusForbidden},
		{"admin reads reports", http.MethodGet, "/api/v1/reports/day?date=2024-05-01", "admin", "", http.StatusOK},
		{"employee reads the schedule", http.MethodGet, "/api/v1/schedule?date=2024-05-01", "employee", "", http.StatusOK},
		{"wrong method", http.MethodPut, "/api/v1/reservations", "employee", "", http.StatusMethodNotAllowed},
		{"missing reservation", http.MethodGet, "/api/v1/reservations/999", "employee", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, handler, tt.method, tt.path, tt.role, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := serve(t, handler, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "courtdesk_feed_subscribers")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	out := httptest.NewRecorder()
	handler.ServeHTTP(out, req)
	assert.Equal(t, "abc-123", out.Header().Get("X-Request-ID"))
}
