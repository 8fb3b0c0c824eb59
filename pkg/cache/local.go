package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// localCache 基于 go-cache 的本地缓存实现
type localCache struct {
	cache *gocache.Cache
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	exp := config.DefaultExpiration
	if exp <= 0 {
		exp = 5 * time.Minute
	}
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &localCache{cache: gocache.New(exp, cleanup)}
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	return lc.cache.Get(key)
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.cache.Set(key, value, expiration)
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.cache.Delete(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, found := lc.cache.Get(key)
	return found
}

func (lc *localCache) Increment(ctx context.Context, key string, value int64) (int64, error) {
	if newValue, err := lc.cache.IncrementInt64(key, value); err == nil {
		return newValue, nil
	}
	// 键不存在时设置为初始值
	lc.cache.Set(key, value, gocache.DefaultExpiration)
	return value, nil
}

func (lc *localCache) Close() error {
	// go-cache 不需要关闭连接
	return nil
}
