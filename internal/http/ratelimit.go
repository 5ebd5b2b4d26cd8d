package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PayLimiter throttles payment attempts per caller. Each process keeps a
// token bucket per key; when Redis is configured a one-second fixed window
// shared by all replicas is checked as well.
type PayLimiter struct {
	Redis   redis.Cmdable
	Rate    rate.Limit
	Burst   int
	Logger  *zap.Logger
	// IdleTTL is how long an unused per-key bucket is kept.
	IdleTTL time.Duration

	mu        sync.Mutex
	local     map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const defaultIdleTTL = 10 * time.Minute

func NewPayLimiter(rdb redis.Cmdable, perSecond float64, burst int, logger *zap.Logger) *PayLimiter {
	if burst <= 0 {
		burst = 1
	}
	ttl := defaultIdleTTL
	if perSecond > 0 {
		if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	return &PayLimiter{
		Redis:   rdb,
		Rate:    rate.Limit(perSecond),
		Burst:   burst,
		Logger:  logger,
		IdleTTL: ttl,
		local:   map[string]*localBucket{},
	}
}

func (l *PayLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.Rate <= 0 {
		return true
	}
	if !l.limiter(key).Allow() {
		return false
	}
	if l.Redis == nil {
		return true
	}

	window := fmt.Sprintf("ratelimit:pay:%s:%d", key, time.Now().Unix())
	pipe := l.Redis.TxPipeline()
	incr := pipe.Incr(ctx, window)
	pipe.Expire(ctx, window, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.Logger != nil {
			l.Logger.Warn("redis rate limit unavailable; using local limiter", zap.Error(err))
		}
		return true
	}
	return incr.Val() <= int64(l.Burst)
}

func (l *PayLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.local == nil {
		l.local = map[string]*localBucket{}
	}
	now := time.Now()
	l.sweep(now)
	b, ok := l.local[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.Rate, l.Burst)}
		l.local[key] = b
	}
	b.seen = now
	return b.lim
}

// sweep drops buckets idle for longer than IdleTTL, at most once per IdleTTL.
// A bucket idle that long has refilled, so dropping it changes no decision
// as long as IdleTTL covers Burst/Rate. Callers hold l.mu.
func (l *PayLimiter) sweep(now time.Time) {
	ttl := l.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	if now.Sub(l.lastSweep) < ttl {
		return
	}
	l.lastSweep = now
	for key, b := range l.local {
		if now.Sub(b.seen) > ttl {
			delete(l.local, key)
		}
	}
}

func (l *PayLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.local)
}

func (l *PayLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(userHeader))
		if key == "" {
			key = "ip:" + r.RemoteAddr
		}
		if !l.Allow(r.Context(), key) {
			writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many payment attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
