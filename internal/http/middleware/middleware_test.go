package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(e *echo.Echo, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if key != "" {
		req.Header.Set(HeaderAdminKey, key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		id, _ := AdminIDFromCtx(c)
		return c.String(http.StatusOK, id)
	}, mw...)
	return e
}

func TestAdminKeyMiddleware(t *testing.T) {
	e := newEcho(AdminKeyMiddleware([]string{"alpha", " ", "beta"}))

	assert.Equal(t, http.StatusUnauthorized, serve(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "gamma").Code)

	rec := serve(e, "beta")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", rec.Body.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	at := time.Date(2026, 5, 1, 10, 0, 0, 200*int(time.Millisecond), time.UTC)
	e := newEcho(
		AdminKeyMiddleware([]string{"alpha", "beta"}),
		RateLimitMiddleware(RateLimitConfig{Redis: rdb, RPS: 2, RetryAfterHint: true, now: func() time.Time { return at }}),
	)

	assert.Equal(t, http.StatusOK, serve(e, "alpha").Code)
	assert.Equal(t, http.StatusOK, serve(e, "alpha").Code)
	limited := serve(e, "alpha")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(e, "beta").Code, "limits are per admin")

	at = at.Add(time.Second)
	assert.Equal(t, http.StatusOK, serve(e, "alpha").Code, "next window")

	mr.Close()
	assert.Equal(t, http.StatusOK, serve(e, "alpha").Code, "redis failure lets requests through")
}
