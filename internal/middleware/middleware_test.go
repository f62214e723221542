package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func whoAmI(c echo.Context) error {
	id, ok := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "authenticated": ok, "role": Role(c)})
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoAmI, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", bearer(t, 9, "CUSTOMER"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"authenticated":true,"role":"CUSTOMER"}`, rec.Body.String())
}

func TestOptionalJWTAllowsGuests(t *testing.T) {
	e := echo.New()
	e.GET("/maybe", whoAmI, OptionalJWT(secret))

	rec := serve(e, http.MethodGet, "/maybe", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":0,"authenticated":false,"role":""}`, rec.Body.String())

	// a present but broken token is still an error
	rec = serve(e, http.MethodGet, "/maybe", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", whoAmI, JWTAuth(secret), RequireRole("ADMIN"))

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", bearer(t, 1, "CUSTOMER")).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin", bearer(t, 1, "ADMIN")).Code)
}

func TestRequestIDKeepsClientValue(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, RequestIDFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = serve(e, http.MethodGet, "/", "")
	assert.Len(t, rec.Body.String(), 36)
}

func TestObserveSeesFinalStatusAndBody(t *testing.T) {
	var seen []ResponseInfo
	e := echo.New()
	e.Use(RequestID(), Observe(64, func(r ResponseInfo) { seen = append(seen, r) }))
	e.GET("/ok/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, strings.Repeat("x", 100))
	}, JWTAuth(secret))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	serve(e, http.MethodGet, "/ok/7", bearer(t, 5, "ADMIN"))
	serve(e, http.MethodGet, "/boom", "")

	require.Len(t, seen, 2)
	assert.Equal(t, http.StatusOK, seen[0].Status)
	assert.Equal(t, "/ok/:id", seen[0].Route)
	assert.Equal(t, "/ok/7", seen[0].Path)
	assert.Equal(t, uint64(5), seen[0].UserID)
	assert.Equal(t, "ADMIN", seen[0].Role)
	assert.Len(t, seen[0].Body, 64)
	assert.NotEmpty(t, seen[0].RequestID)

	assert.Equal(t, http.StatusTeapot, seen[1].Status)
	assert.Contains(t, string(seen[1].Body), "short and stout")
	assert.Error(t, seen[1].Err)
}

func TestObserveReportsRecordedCause(t *testing.T) {
	var seen ResponseInfo
	cause := errors.New("disk on fire")
	e := echo.New()
	e.Use(Observe(0, func(r ResponseInfo) { seen = r }))
	e.GET("/fail", func(c echo.Context) error {
		SetError(c, cause)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	})

	serve(e, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusInternalServerError, seen.Status)
	assert.ErrorIs(t, seen.Err, cause)
	assert.Contains(t, string(seen.Body), "internal error")
}

func TestRequestLogDoesNotPanic(t *testing.T) {
	obs := RequestLog(zap.NewNop())
	obs(ResponseInfo{Status: 200})
	obs(ResponseInfo{Status: 404, Route: "/x"})
	obs(ResponseInfo{Status: 500, UserID: 3})
}

func TestRedisMiddlewaresPassThroughWithoutClient(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "fresh") },
		RateLimit(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, zap.NewNop()),
		ResponseCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil, zap.NewNop()))

	for i := 0; i < 3; i++ {
		rec := serve(e, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "fresh", rec.Body.String())
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings")
	c.Set(ctxUserID, uint64(12))

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:12", rateKey(cfg, c))
	cfg.KeyStrategy = "user_route"
	assert.Equal(t, "rl:user:12:route:POST /v1/bookings", rateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", rateKey(cfg, c))
}

func TestCacheKeyDependsOnQuery(t *testing.T) {
	e := echo.New()
	mk := func(target string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/admin/logs/stats")
		return c
	}
	cfg := config.CacheConfig{Prefix: "cache"}
	a := cacheKey(cfg, mk("/v1/admin/logs/stats?days=7"))
	b := cacheKey(cfg, mk("/v1/admin/logs/stats?days=30"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "cache:/v1/admin/logs/stats:"))

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKey(cfg, mk("/v1/admin/logs/stats?days=7")), cacheKey(cfg, mk("/v1/admin/logs/stats?days=30")))
}

func TestInvalidateCacheWithoutClient(t *testing.T) {
	n, err := InvalidateCache(context.Background(), config.CacheConfig{Enabled: true, Prefix: "cache"}, nil, "/v1/admin/logs/stats")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResponseCacheInvalidation(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       fmt.Sprintf("cachetest:%d", time.Now().UnixNano()),
		MaxBodyBytes: 1 << 16,
	}
	const route = "/v1/admin/logs/stats"
	hits := 0
	e := echo.New()
	e.GET(route, func(c echo.Context) error {
		hits++
		return c.JSON(http.StatusOK, echo.Map{"totalLogs": hits})
	}, ResponseCache(cfg, rdb, zap.NewNop()))

	assert.Equal(t, "MISS", serve(e, http.MethodGet, route+"?days=7", "").Header().Get("X-Cache"))
	assert.Equal(t, "MISS", serve(e, http.MethodGet, route+"?days=30", "").Header().Get("X-Cache"))
	rec := serve(e, http.MethodGet, route+"?days=7", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, hits)

	n, err := InvalidateCache(context.Background(), cfg, rdb, route)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec = serve(e, http.MethodGet, route+"?days=7", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), `"totalLogs":3`)
	_, _ = InvalidateCache(context.Background(), cfg, rdb, route)
}
