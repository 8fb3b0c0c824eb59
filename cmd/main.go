package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ResQMob/internal/engine"
	"ResQMob/internal/escalation"
	"ResQMob/internal/geoindex"
	handlers "ResQMob/internal/handler"
	"ResQMob/internal/models"
	"ResQMob/internal/notify"
	"ResQMob/internal/responder"
	"ResQMob/internal/store"
	"ResQMob/pkg/cache"
	"ResQMob/pkg/config"
	"ResQMob/pkg/logger"
	"ResQMob/pkg/metrics"
	"ResQMob/pkg/middleware"
	"ResQMob/pkg/notification"
	"ResQMob/pkg/scheduler"
	"ResQMob/pkg/sse"
	"ResQMob/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	metrics.SetGlobal(metrics.NewMetrics())
	middleware.SetRateLimiterConfig(middleware.RateLimiterConfig{Rate: cfg.RateLimit, AddHeaders: true})

	alerts, err := store.NewGormStore(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("open store failed", zap.Error(err))
		return
	}
	db := alerts.DB()

	appCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Error("init cache failed", zap.Error(err))
		return
	}
	defer appCache.Close()

	// 推送通道：在线用户走 WebSocket，离线回落到极光推送，短信走阿里云
	wsHub := websocket.NewHub()
	defer wsHub.Close()
	pusher := notification.FirstOf{wsHub, notification.NewJPush(cfg.Push, nil)}
	sms := notification.NewAliyunSMS(cfg.SMS, nil)

	dispatcher := notify.NewDispatcher(pusher, sms, alerts, alerts, cfg.DispatchWorkers)

	// GeoIndex 后端选择
	var geoIdx geoindex.GeoIndex
	var redisIdx *geoindex.RedisIndex
	if cfg.GeoBackend == "redis" {
		if rc, ok := appCache.(interface{ Client() *redis.Client }); ok {
			redisIdx = geoindex.NewRedisIndex(rc.Client())
			geoIdx = redisIdx
		} else {
			logger.Warn("GEO_BACKEND=redis requires CACHE_TYPE=redis, falling back to store index")
		}
	}
	if geoIdx == nil {
		geoIdx = geoindex.NewStoreIndex(alerts)
	}

	escalator := escalation.NewEscalator(alerts, geoIdx, dispatcher, cfg.EscalationInterval, cfg.MaxEscalationLevel)
	directory := &engine.CachedDirectory{Cache: appCache}
	tracker := responder.NewTracker(alerts, alerts, dispatcher, directory)

	eng := engine.New(
		alerts,
		alerts,
		geoIdx,
		dispatcher,
		escalator,
		tracker,
		&engine.StoreLocationResolver{
			Locations: alerts,
			Geocode:   &engine.CachedGeocoder{Cache: appCache},
			MaxAge:    15 * time.Minute,
		},
		directory,
		&engine.StoreChatRooms{Rooms: alerts},
		engine.Options{
			BaseRadiusMeters: cfg.BaseRadiusMeters,
			LocationTimeout:  cfg.LocationTimeout,
		},
	)
	if redisIdx != nil {
		eng.SetGeoTracker(redisIdx)
	}

	events := sse.NewHub(30 * time.Second)
	eng.OnEvent = func(event string, alert *models.Alert) {
		events.Publish(event, alert)
		events.PublishToGroup(alert.ID, event, alert)
	}

	// 重启后恢复活跃警报的升级定时器
	ctx := context.Background()
	if active, err := alerts.ListActive(ctx); err != nil {
		logger.Warn("list active alerts on boot failed", zap.Error(err))
	} else {
		for _, a := range active {
			escalator.Register(a.ID)
		}
		logger.Info("escalation timers restored", zap.Int("count", len(active)))
	}

	cr := scheduler.NewCron(time.Local)
	sweeper := escalation.NewSweeper(alerts, escalator, dispatcher, time.Duration(cfg.AlertExpiryHours)*time.Hour)
	if err := sweeper.Schedule(cr, cfg.SweepSpec); err != nil {
		logger.Error("schedule expiry sweep failed", zap.Error(err))
		return
	}
	cr.Start()
	defer cr.Stop()

	gin.SetMode(cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHandlers(eng, db, events, wsHub).Register(r)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
