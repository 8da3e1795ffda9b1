package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// maxGoroutines 存活检查允许的最大协程数
const maxGoroutines = 10000

// Pinger 可被探测的依赖
type Pinger interface {
	Health() error
}

// HealthChecker 健康检查器
//
// /health/live 只检查进程自身，/health/ready 额外检查数据库和缓存
type HealthChecker struct {
	health healthcheck.Handler
	deps   map[string]Pinger
	logger *zap.Logger
	start  time.Time
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		deps:   map[string]Pinger{},
		logger: logger,
		start:  time.Now(),
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	hc.AddReadinessCheck("database", db)
	return hc
}

// AddReadinessCheck 添加就绪检查，p 为 nil 时忽略
func (hc *HealthChecker) AddReadinessCheck(name string, p Pinger) {
	if p == nil {
		return
	}
	hc.deps[name] = p
	hc.health.AddReadinessCheck(name, func() error {
		if err := p.Health(); err != nil {
			hc.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	})
}

// LiveHandler 存活检查
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪检查
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// Report 健康检查汇总
type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
}

// CheckHealth 执行所有依赖检查并汇总
func (hc *HealthChecker) CheckHealth() Report {
	report := Report{
		Status:    "ok",
		Checks:    make(map[string]string, len(hc.deps)),
		Uptime:    time.Since(hc.start).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	for name, p := range hc.deps {
		if err := p.Health(); err != nil {
			report.Checks[name] = "ERROR: " + err.Error()
			report.Status = "degraded"
			continue
		}
		report.Checks[name] = "OK"
	}
	return report
}
