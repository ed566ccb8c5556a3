package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("connection refused") }

func get(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestChecker(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(c *Checker)
		ready      bool
		path       string
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "live always ok",
			setup:      func(c *Checker) { c.AddCheck("database", fail) },
			path:       "/api/v1/health/live",
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "not ready during startup",
			setup:      func(c *Checker) { c.AddCheck("database", ok) },
			path:       "/api/v1/health/ready",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
		{
			name:       "ready and healthy",
			setup:      func(c *Checker) { c.AddCheck("database", ok); c.AddCheck("redis", ok) },
			ready:      true,
			path:       "/api/v1/health/ready",
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "required check failing",
			setup:      func(c *Checker) { c.AddCheck("database", fail); c.AddOptionalCheck("graph", ok) },
			ready:      true,
			path:       "/api/v1/health",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
		{
			name:       "optional check failing",
			setup:      func(c *Checker) { c.AddCheck("database", ok); c.AddOptionalCheck("graph", fail) },
			ready:      true,
			path:       "/api/v1/health",
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			tt.setup(c)
			c.SetReady(tt.ready)

			code, resp := get(t, c, tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}

	t.Run("reports each check", func(t *testing.T) {
		c := NewChecker("test")
		c.AddCheck("database", fail)
		_, resp := get(t, c, "/api/v1/health")
		require.Contains(t, resp.Checks, "database")
		assert.Equal(t, "connection refused", resp.Checks["database"].Message)
	})
}
