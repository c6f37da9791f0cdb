// Package ratelimit gates OTP-sensitive operations per client address and
// operation name. A fixed-origin counting window escalates to a hard block
// once the attempt limit is exceeded; the block is enforced on its own key
// and suppresses counting until it lapses.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/store"
	"phone-auth-service/internal/util"
)

const keyPrefix = "rate_limit:"

// Decision is the limiter verdict for one request. Rejections are expected
// outcomes, not errors: Check never fails.
type Decision struct {
	Allowed    bool
	Message    string
	RetryAfter time.Duration
}

var allow = Decision{Allowed: true}

type Limiter struct {
	store  store.CounterStore
	limit  int
	window time.Duration
	now    func() time.Time
}

func New(counterStore store.CounterStore, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store:  counterStore,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}
}

func countKey(operation, clientAddr string) string {
	return fmt.Sprintf("%s%s:count:%s", keyPrefix, operation, clientAddr)
}

func blockKey(operation, clientAddr string) string {
	return fmt.Sprintf("%s%s:block:%s", keyPrefix, operation, clientAddr)
}

// Check admits or rejects one attempt at the given operation. Clients without
// a resolvable address are always admitted, and so is everyone when the
// counter store is down: availability wins over strict enforcement here.
func (l *Limiter) Check(ctx context.Context, clientAddr, operation string) Decision {
	if clientAddr == "" {
		return allow
	}

	cKey := countKey(operation, clientAddr)
	bKey := blockKey(operation, clientAddr)

	if d, blocked := l.checkBlock(ctx, bKey, clientAddr); blocked {
		return d
	}

	count, ok := l.countAttempt(ctx, cKey, clientAddr)
	if !ok {
		return allow
	}

	if count > int64(l.limit) {
		l.setBlock(ctx, bKey, clientAddr, operation)
		return reject(clientAddr, l.window,
			"Please try again in %s!")
	}

	return allow
}

// checkBlock reports whether an active block rejects this request. An expired
// block record is cleared on the way through.
func (l *Limiter) checkBlock(ctx context.Context, bKey, clientAddr string) (Decision, bool) {
	val, err := l.store.Get(ctx, bKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotExist) {
			util.Warn("rate limiter: block lookup failed, allowing request",
				zap.String("client_addr", clientAddr),
				zap.Error(err))
		}
		return allow, false
	}

	blockUntil, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		util.Warn("rate limiter: malformed block record, clearing",
			zap.String("key", bKey),
			zap.String("value", val))
		_ = l.store.Delete(ctx, bKey)
		return allow, false
	}

	remaining := time.Unix(blockUntil, 0).Sub(l.now())
	if remaining > 0 {
		return reject(clientAddr, remaining,
			"Your IP address is blocked for %s!"), true
	}

	_ = l.store.Delete(ctx, bKey)
	return allow, false
}

// countAttempt runs the add-if-absent plus conditional-increment sequence and
// returns the current count for this window. The TTL is fixed when the window
// is created and never extended by later increments. Store failures report
// !ok, which the caller treats as allow.
func (l *Limiter) countAttempt(ctx context.Context, cKey, clientAddr string) (int64, bool) {
	added, err := l.store.AddIfAbsent(ctx, cKey, 1, l.window)
	if err != nil {
		util.Error("rate limiter: window creation failed, allowing request",
			zap.String("client_addr", clientAddr),
			zap.Error(err))
		return 0, false
	}
	if added {
		return 1, true
	}

	count, err := l.store.Increment(ctx, cKey)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			// The window expired between the add attempt and the increment;
			// start a fresh one.
			if err := l.store.SetWithTTL(ctx, cKey, "1", l.window); err != nil {
				util.Error("rate limiter: window reset failed, allowing request",
					zap.String("client_addr", clientAddr),
					zap.Error(err))
				return 0, false
			}
			return 1, true
		}
		util.Error("rate limiter: increment failed, allowing request",
			zap.String("client_addr", clientAddr),
			zap.Error(err))
		return 0, false
	}

	return count, true
}

func (l *Limiter) setBlock(ctx context.Context, bKey, clientAddr, operation string) {
	blockUntil := l.now().Add(l.window).Unix()
	if err := l.store.SetWithTTL(ctx, bKey, strconv.FormatInt(blockUntil, 10), l.window); err != nil {
		util.Error("rate limiter: failed to set block",
			zap.String("client_addr", clientAddr),
			zap.Error(err))
		return
	}
	util.Info("rate limiter: client blocked",
		zap.String("client_addr", clientAddr),
		zap.String("operation", operation),
		zap.Duration("duration", l.window))
}

func reject(clientAddr string, retryAfter time.Duration, detailFormat string) Decision {
	return Decision{
		Allowed:    false,
		Message:    fmt.Sprintf("Too many requests from %s. %s", clientAddr, fmt.Sprintf(detailFormat, formatRetryAfter(retryAfter))),
		RetryAfter: retryAfter,
	}
}

// formatRetryAfter renders a duration the way end users read it:
// "2 minutes and 30 seconds", "1 second".
func formatRetryAfter(d time.Duration) string {
	total := int(math.Ceil(d.Seconds()))
	if total < 0 {
		total = 0
	}
	minutes := total / 60
	seconds := total % 60

	if minutes > 0 {
		return fmt.Sprintf("%d %s and %d %s",
			minutes, pluralize("minute", minutes),
			seconds, pluralize("second", seconds))
	}
	return fmt.Sprintf("%d %s", seconds, pluralize("second", seconds))
}

func pluralize(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
