package middleware

import (
	"time"

	"docker-monitor/services"

	"github.com/gin-gonic/gin"
)

/**
 * HTTP请求统计中间件
 * @description
 * - 以路由模板(c.FullPath)为维度统计请求数和耗时
 * - 状态码>=400计为错误请求
 * - /health 的metrics字段读取这里累计的总数
 */
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()

		// 未匹配路由的请求统一归到unknown，避免label基数膨胀
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		services.IncrementRequestCount(path)
		services.RecordRequestDuration(path, duration)
		if c.Writer.Status() >= 400 {
			services.IncrementErrorCount(path)
		}
	}
}
