package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// captureWriter tees the response to the client and keeps up to limit
// bytes of it (limit <= 0 keeps everything).
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	switch room := cw.limit - int64(cw.buf.Len()); {
	case cw.limit <= 0:
		cw.buf.Write(b)
	case room >= int64(len(b)):
		cw.buf.Write(b)
	case room > 0:
		cw.buf.Write(b[:room])
	}
	return cw.ResponseWriter.Write(b)
}

// full reports whether the whole body fit into the capture buffer.
func (cw *captureWriter) full() bool {
	return cw.limit <= 0 || int64(cw.buf.Len()) < cw.limit
}

type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", c.Path()}
	case "method_route":
		parts = []string{"method", r.Method, "route", c.Path()}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
	default: // route_query
		parts = []string{"route", c.Path(), "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%s:%x", cfg.Prefix, c.Path(), sum[:])
}

// InvalidateCache drops every cached response stored for route, whatever
// query produced it, and returns how many keys were removed.
func InvalidateCache(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, route string) (int, error) {
	if !cfg.Enabled || rdb == nil {
		return 0, nil
	}
	var keys []string
	iter := rdb.Scan(ctx, 0, cfg.Prefix+":"+route+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete cache keys: %w", err)
	}
	return int(n), nil
}

// ResponseCache serves repeated requests for the wrapped route from Redis.
// Only complete 200 responses are stored. A nil client or a disabled config
// yields a pass-through middleware; Redis errors fall through to the handler.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKey(cfg, c)

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					h := c.Response().Header()
					for k, vals := range hit.Header {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						h[k] = vals
					}
					h.Set("X-Cache", "HIT")
					return c.Blob(hit.Status, h.Get(echo.HeaderContentType), hit.Body)
				}
			} else if err != redis.Nil {
				log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || !cw.full() {
				return nil
			}
			payload, err := json.Marshal(cachedResponse{
				Status: cw.status,
				Header: c.Response().Header().Clone(),
				Body:   cw.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			// request context may already be cancelled once the body is flushed
			if err := rdb.Set(context.Background(), key, payload, cfg.TTL).Err(); err != nil {
				log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

