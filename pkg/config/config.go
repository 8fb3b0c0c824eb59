package config

import (
	"log"
	"os"
	"time"

	"ResQMob/pkg/cache"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/notification"
	"ResQMob/pkg/util"
)

// Config 全局配置
type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
	DBDriver  string `env:"DB_DRIVER"`
	DSN       string `env:"DSN"`

	Log   logger.LogConfig
	Cache cache.Config
	SMS   notification.SMSConfig
	Push  notification.PushConfig

	// SOS engine tunables
	BaseRadiusMeters   float64       `env:"BASE_RADIUS_METERS"`
	MaxEscalationLevel int           `env:"MAX_ESCALATION_LEVEL"`
	EscalationInterval time.Duration `env:"ESCALATION_INTERVAL"`
	AlertExpiryHours   int           `env:"ALERT_EXPIRY_HOURS"`
	SweepSpec          string        `env:"SWEEP_SPEC"`
	LocationTimeout    time.Duration `env:"LOCATION_TIMEOUT"`
	DispatchWorkers    int           `env:"DISPATCH_WORKERS"`

	// GeoIndex backend: "store" 或 "redis"
	GeoBackend string `env:"GEO_BACKEND"`

	RateLimit string `env:"RATE_LIMIT"` // e.g. "100-M"
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		Addr:      util.GetEnvDefault("ADDR", ":8080"),
		Mode:      util.GetEnvDefault("MODE", "debug"),
		APIPrefix: util.GetEnvDefault("API_PREFIX", "/api"),
		DBDriver:  util.GetEnv("DB_DRIVER"),
		DSN:       util.GetEnv("DSN"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
				PoolSize: int(util.GetIntEnvDefault("REDIS_POOL_SIZE", 10)),
			},
			Local: cache.LocalConfig{
				DefaultExpiration: util.GetDurationEnv("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnv("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		SMS: notification.SMSConfig{
			AccessKeyId:     util.GetEnv("SMS_ACCESS_KEY_ID"),
			AccessKeySecret: util.GetEnv("SMS_ACCESS_KEY_SECRET"),
			SignName:        util.GetEnvDefault("SMS_SIGN_NAME", "ResQMob"),
			TemplateCode:    util.GetEnv("SMS_TEMPLATE_CODE"),
		},
		Push: notification.PushConfig{
			AppKey:       util.GetEnv("PUSH_APP_KEY"),
			MasterSecret: util.GetEnv("PUSH_MASTER_SECRET"),
		},
		BaseRadiusMeters:   float64(util.GetIntEnvDefault("BASE_RADIUS_METERS", 1000)),
		MaxEscalationLevel: int(util.GetIntEnvDefault("MAX_ESCALATION_LEVEL", 5)),
		EscalationInterval: util.GetDurationEnv("ESCALATION_INTERVAL", 3*time.Minute),
		AlertExpiryHours:   int(util.GetIntEnvDefault("ALERT_EXPIRY_HOURS", 24)),
		SweepSpec:          util.GetEnvDefault("SWEEP_SPEC", "@every 10m"),
		LocationTimeout:    util.GetDurationEnv("LOCATION_TIMEOUT", 10*time.Second),
		DispatchWorkers:    int(util.GetIntEnvDefault("DISPATCH_WORKERS", 8)),
		GeoBackend:         util.GetEnvDefault("GEO_BACKEND", "store"),
		RateLimit:          util.GetEnvDefault("RATE_LIMIT", "120-M"),
	}
	return nil
}
