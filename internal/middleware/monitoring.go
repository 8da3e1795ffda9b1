package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"tempalias/backend/internal/monitoring"
)

// unmatchedRoute 未匹配路由的指标标签，避免按原始路径产生大量时间序列
const unmatchedRoute = "unmatched"

// HTTPMetrics HTTP 指标中间件
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedRoute
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
