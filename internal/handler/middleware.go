package handler

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"phone-auth-service/internal/events"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/ratelimit"
	"phone-auth-service/internal/util"
)

// RateLimitMiddleware wraps the shared limiter for per-endpoint use. Each
// route names its own operation, so budgets never bleed across endpoints.
type RateLimitMiddleware struct {
	limiter   *ratelimit.Limiter
	publisher events.Publisher
	logger    *zap.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, publisher events.Publisher, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:   limiter,
		publisher: publisher,
		logger:    logger,
	}
}

// Limit returns a middleware enforcing the request budget for one operation.
func (m *RateLimitMiddleware) Limit(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			addr := clientAddr(r)

			decision := m.limiter.Check(ctx, addr, operation)
			if !decision.Allowed {
				m.publisher.Publish(ctx, &models.SecurityEvent{
					EventType:  events.EventRateLimitBlock,
					ClientAddr: addr,
					Operation:  operation,
					Details:    decision.Message,
				})
				m.logger.Warn("Request rate limited",
					util.String("client_addr", addr),
					util.String("operation", operation),
				)

				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"success":false,"error":%q}`, decision.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr resolves the requester's address: the first hop recorded in
// X-Forwarded-For when a proxy set it, otherwise the connection's remote
// host. Empty means the address could not be resolved at all.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
