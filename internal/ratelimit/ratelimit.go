// Package ratelimit throttles expensive endpoints per authenticated user with a
// fixed window counter kept in Redis.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

const defaultPrefix = "careerpilot:rate_limit"

type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

type Limiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewLimiter(client redis.UniversalClient, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		prefix: defaultPrefix,
		limit:  limit,
		window: window,
	}
}

// Allow counts one request for subject within scope. A nil or unconfigured limiter allows everything.
func (l *Limiter) Allow(ctx context.Context, scope, subject string) (Decision, error) {
	if l == nil || l.client == nil || l.limit <= 0 || l.window <= 0 {
		return Decision{Allowed: true}, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return Decision{Allowed: true}, nil
	}

	windowMs := l.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", l.prefix, scope, subject)
	raw, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return Decision{Allowed: true}, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return Decision{Allowed: true}, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	return Decision{
		Allowed:    count <= int64(l.limit),
		Count:      int(count),
		RetryAfter: time.Duration(ttlMs) * time.Millisecond,
	}, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Middleware rejects requests over the limit with 429. Redis failures let the request through.
func Middleware(l *Limiter, scope string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := clientKey(r)
			decision, err := l.Allow(r.Context(), scope, subject)
			if err != nil {
				log.Warn().Err(err).Str("scope", scope).Msg("Rate limiter unavailable, allowing request")
			}
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.IncRateLimited()
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errorBody{
				Code:    "rate_limited",
				Message: "Too many requests, please retry later",
			})
		})
	}
}

func clientKey(r *http.Request) string {
	if user, ok := auth.GetUserFromContext(r.Context()); ok {
		return "user:" + user.ID
	}
	return "ip:" + r.RemoteAddr
}
