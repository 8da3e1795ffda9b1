package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tempalias/backend/internal/monitoring"
)

// RateLimitMessage 触发限流时返回的消息
const RateLimitMessage = "Too many requests from this IP, please try again later."

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 按客户端 IP 的令牌桶限流
//
// 每个窗口最多 requests 次请求，令牌按 window/requests 的间隔匀速补充
type IPRateLimiter struct {
	name     string
	limit    rate.Limit
	burst    int
	window   time.Duration
	metrics  *monitoring.Metrics
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewIPRateLimiter 创建限流器
func NewIPRateLimiter(name string, requests int, window time.Duration, metrics *monitoring.Metrics) *IPRateLimiter {
	if requests < 1 {
		requests = 1
	}
	return &IPRateLimiter{
		name:     name,
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		window:   window,
		metrics:  metrics,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow 判断该 IP 是否还有配额
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Middleware 返回 gin 中间件
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			l.metrics.RecordRateLimitBlock(l.name)
			c.Header("Retry-After", retryAfter(l.limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": RateLimitMessage})
			return
		}
		c.Next()
	}
}

// Run 定期清理超过一个窗口未出现的 IP，直到 ctx 被取消
func (l *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *IPRateLimiter) evictIdle() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

func retryAfter(limit rate.Limit) string {
	seconds := 1
	if limit > 0 {
		if s := int(1/float64(limit) + 0.999); s > seconds {
			seconds = s
		}
	}
	return strconv.Itoa(seconds)
}
