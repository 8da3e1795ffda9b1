package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempalias/backend/internal/cache"
	"tempalias/backend/internal/config"
	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/events"
	"tempalias/backend/internal/health"
	"tempalias/backend/internal/inbound"
	"tempalias/backend/internal/logger"
	"tempalias/backend/internal/middleware"
	"tempalias/backend/internal/monitoring"
	"tempalias/backend/internal/pool"
	"tempalias/backend/internal/prefix"
	"tempalias/backend/internal/relay"
	"tempalias/backend/internal/service"
	"tempalias/backend/internal/storage/hybrid"
	redisstore "tempalias/backend/internal/storage/redis"
	"tempalias/backend/internal/storage/sqlstore"
	"tempalias/backend/internal/sweeper"
	httptransport "tempalias/backend/internal/transport/http"
	"tempalias/backend/internal/websocket"
)

// 通知投递的并发与队列长度
const (
	notifyWorkers   = 4
	notifyQueueSize = 256
)

const shutdownTimeout = 10 * time.Second

// main 启动 HTTP API、过期清理与新邮件通知。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.App.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.Rotation(cfg.Log.Level, cfg.Log.Development, cfg.Log.File))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting tempalias server",
		zap.String("env", cfg.App.Env),
		zap.String("domain", cfg.Mail.Domain),
		zap.String("log_level", cfg.Log.Level),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlstore.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()
	log.Info("database ready", zap.String("type", db.Dialect()))

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(db, log)

	group, groupCtx := errgroup.WithContext(ctx)

	// 别名缓存：配置了 Redis 时使用 Redis，否则使用进程内缓存
	var aliasCache cache.AliasCache
	if cfg.Redis.Enabled() {
		client, err := redisstore.New(cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		healthChecker.AddReadinessCheck("redis", client)
		aliasCache = redisstore.NewAliasCache(client)
		log.Info("alias cache backed by redis", zap.String("address", cfg.Redis.Address))
	} else if cfg.Cache.LocalSize > 0 {
		local := cache.NewLocalCache[domain.Alias](cfg.Cache.LocalSize, cfg.Cache.AliasTTL)
		group.Go(func() error {
			local.Run(groupCtx, time.Minute)
			return nil
		})
		aliasCache = cache.NewLocalAliasCache(local)
		log.Info("alias cache backed by local memory", zap.Int("size", cfg.Cache.LocalSize))
	}

	store := hybrid.NewStore(db, aliasCache, cfg.Cache.AliasTTL, log)

	aliasService := service.NewAliasService(store, prefix.New(), cfg, log)
	aliasService.SetMetrics(metrics)
	emailService := service.NewEmailService(store, store)

	// 新邮件通知：WebSocket 与可选的 RabbitMQ
	workers := pool.NewWorkerPool(notifyWorkers, notifyQueueSize, log)
	workers.Start(groupCtx)
	defer workers.Stop()

	dispatcher := events.NewDispatcher(workers, metrics, log)

	hub := websocket.NewHub(cfg.CORS.AllowedOrigins, store, log)
	dispatcher.Register("websocket", hub)
	group.Go(func() error {
		hub.Run(groupCtx)
		return nil
	})

	if cfg.AMQP.URL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQP, log)
		if err != nil {
			return fmt.Errorf("failed to initialize amqp publisher: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		healthChecker.AddReadinessCheck("amqp", publisher)
		dispatcher.Register("amqp", publisher)
		log.Info("publishing mail events to amqp", zap.String("exchange", cfg.AMQP.Exchange))
	}

	inboundService := inbound.NewService(cfg.Inbound.Secret, cfg.Mail.Domain, store, store, log,
		inbound.WithNotifier(dispatcher),
		inbound.WithMetrics(metrics),
	)
	if cfg.Inbound.Secret == "" {
		log.Warn("inbound secret is not configured, all inbound requests will be rejected")
	}

	sweep := sweeper.New(store, cfg.Cleanup.Interval, metrics, log)
	group.Go(func() error {
		return sweep.Run(groupCtx)
	})

	sender := relay.New(cfg.Relay, metrics, log)

	apiLimiter := middleware.NewIPRateLimiter("api", cfg.RateLimit.APIRequests, cfg.RateLimit.APIWindow, metrics)
	inboundLimiter := middleware.NewIPRateLimiter("inbound", cfg.RateLimit.InboundRequests, cfg.RateLimit.InboundWindow, metrics)
	group.Go(func() error {
		apiLimiter.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		inboundLimiter.Run(groupCtx)
		return nil
	})

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AliasService:   aliasService,
		EmailService:   emailService,
		InboundService: inboundService,
		Sweeper:        sweep,
		Relay:          sender,
		Hub:            hub,
		Health:         healthChecker,
		Metrics:        metrics,
		APILimiter:     apiLimiter,
		InboundLimiter: inboundLimiter,
		Logger:         log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	return group.Wait()
}
