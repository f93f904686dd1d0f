package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond int
	Burst             int
}

// RateLimiter 分布式限流器（Redis 滑动窗口）
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit 限流中间件；limiter 为 nil 时退化为进程内令牌桶
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst < cfg.RequestsPerSecond {
		cfg.Burst = cfg.RequestsPerSecond
	}
	local := newLocalLimiter(cfg.RequestsPerSecond, cfg.Burst)

	return func(c *gin.Context) {
		subject := c.GetString(ContextUserID)
		if subject == "" {
			subject = c.ClientIP()
		}
		key := "ratelimit:" + subject + ":" + c.FullPath()

		if limiter != nil {
			allowed, remaining, err := limiter.Allow(c.Request.Context(), key, cfg.Burst, time.Second)
			if err == nil {
				c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
				if !allowed {
					abort(c, apperrors.ErrTooManyRequests)
					return
				}
				c.Next()
				return
			}
			logger.Warn(c.Request.Context(), "rate limiter unavailable, using local limiter", "error", err.Error())
		}

		if !local.get(key).Allow() {
			abort(c, apperrors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// localLimiterMaxKeys 超过后清理闲置一分钟以上的令牌桶
const localLimiterMaxKeys = 10000

// localLimiter 按键维护的令牌桶
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	rps      rate.Limit
	burst    int
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(rps, burst int) *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*localEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *localLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= localLimiterMaxKeys {
			for k, v := range l.limiters {
				if now.Sub(v.lastSeen) > time.Minute {
					delete(l.limiters, k)
				}
			}
		}
		e = &localEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.lim
}
