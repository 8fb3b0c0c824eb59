package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig 限流配置
//
// Rate: "100-M"、"1000-H" 等；SkipPaths 按前缀匹配。
// Store 采用内存，可通过 SetStore 注入外部存储（如 Redis）。
type RateLimiterConfig struct {
	Rate       string   `json:"rate"`
	SkipPaths  []string `json:"skip_paths"`
	AddHeaders bool     `json:"add_headers"`
	DenyStatus int      `json:"deny_status"` // 默认 429
}

type rateLimiterState struct {
	mu    sync.RWMutex
	cfg   RateLimiterConfig
	store limiter.Store
}

var state = &rateLimiterState{
	cfg:   RateLimiterConfig{Rate: "120-M", SkipPaths: []string{"/health", "/metrics"}, AddHeaders: true},
	store: memory.NewStore(),
}

// SetRateLimiterConfig 更新限流配置
func SetRateLimiterConfig(cfg RateLimiterConfig) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if cfg.Rate != "" {
		state.cfg.Rate = cfg.Rate
	}
	if cfg.SkipPaths != nil {
		state.cfg.SkipPaths = cfg.SkipPaths
	}
	state.cfg.AddHeaders = cfg.AddHeaders
	if cfg.DenyStatus != 0 {
		state.cfg.DenyStatus = cfg.DenyStatus
	}
}

// SetStore 注入外部限流存储
func SetStore(s limiter.Store) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.store = s
}

// RateLimiter 基于 ulule/limiter 的 IP 限流中间件
func RateLimiter() gin.HandlerFunc {
	return func(c *gin.Context) {
		state.mu.RLock()
		cfg := state.cfg
		store := state.store
		state.mu.RUnlock()

		for _, p := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}

		rate, err := limiter.NewRateFromFormatted(cfg.Rate)
		if err != nil {
			c.Next()
			return
		}

		lim := limiter.New(store, rate)
		lctx, err := lim.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Next()
			return
		}

		if cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		}

		if lctx.Reached {
			status := cfg.DenyStatus
			if status == 0 {
				status = http.StatusTooManyRequests
			}
			c.AbortWithStatusJSON(status, gin.H{"code": status, "message": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
