package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempalias/backend/internal/config"
	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/health"
	"tempalias/backend/internal/inbound"
	"tempalias/backend/internal/middleware"
	"tempalias/backend/internal/monitoring"
	"tempalias/backend/internal/relay"
	"tempalias/backend/internal/service"
	"tempalias/backend/internal/websocket"
)

// Cleaner 立即执行一次过期清理
type Cleaner interface {
	RunOnce() (domain.PurgeResult, error)
}

// Ingester 处理入站报文
type Ingester interface {
	Ingest(secret string, raw []byte) (*inbound.Result, error)
}

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	aliases *service.AliasService
	emails  *service.EmailService
	inbound Ingester
	sweeper Cleaner
	relay   relay.Sender
	health  *health.HealthChecker
	log     *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AliasService   *service.AliasService
	EmailService   *service.EmailService
	InboundService Ingester
	Sweeper        Cleaner
	Relay          relay.Sender
	Hub            *websocket.Hub // 为 nil 时不注册 /api/ws
	Health         *health.HealthChecker
	Metrics        *monitoring.Metrics
	APILimiter     *middleware.IPRateLimiter // 为 nil 时按配置创建
	InboundLimiter *middleware.IPRateLimiter // 为 nil 时按配置创建
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := deps.Config

	router := gin.New()
	router.Use(middleware.RecoveryHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	corsConfig := gincors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", InboundSecretHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时不能同时携带凭证
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	apiLimiter := deps.APILimiter
	if apiLimiter == nil {
		apiLimiter = middleware.NewIPRateLimiter("api", cfg.RateLimit.APIRequests, cfg.RateLimit.APIWindow, deps.Metrics)
	}
	inboundLimiter := deps.InboundLimiter
	if inboundLimiter == nil {
		inboundLimiter = middleware.NewIPRateLimiter("inbound", cfg.RateLimit.InboundRequests, cfg.RateLimit.InboundWindow, deps.Metrics)
	}

	h := &Handler{
		aliases: deps.AliasService,
		emails:  deps.EmailService,
		inbound: deps.InboundService,
		sweeper: deps.Sweeper,
		relay:   deps.Relay,
		health:  deps.Health,
		log:     log,
	}

	if deps.Health != nil {
		router.GET("/health", h.healthSummary)
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	api := router.Group("/api")
	{
		// 入站 Webhook 由邮件服务商调用，单独限流
		api.POST("/inbound", inboundLimiter.Middleware(), h.receiveInbound)

		limited := api.Group("", apiLimiter.Middleware())

		limited.GET("/aliases", h.listAliases)
		limited.POST("/aliases", h.createAlias)
		limited.GET("/aliases/:id", h.getAlias)
		limited.DELETE("/aliases/:id", h.deleteAlias)
		limited.GET("/aliases/:id/emails", h.listAliasEmails)

		limited.GET("/emails/:id", h.getEmail)
		limited.PATCH("/emails/:id/read", h.markEmailRead)
		limited.DELETE("/emails/:id", h.deleteEmail)

		limited.GET("/cleanup", h.runCleanup)
		limited.POST("/send", h.sendEmail)

		if deps.Hub != nil {
			limited.GET("/ws", websocket.HandleWebSocket(deps.Hub))
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, http.StatusText(http.StatusNotFound))
	})

	return router
}
