package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查HTTP路由
func RegisterHTTPRoutes(r gin.IRouter, aggregator *Aggregator) {
	// GET /health/ready
	r.GET("/health/ready", func(c *gin.Context) {
		if !aggregator.Ready(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ready": true})
	})

	// GET /health/live 进程能响应即存活
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})

	// GET /health 详细报告；降级仍返回 200
	r.GET("/health", func(c *gin.Context) {
		rep := aggregator.Report(c.Request.Context())
		code := http.StatusOK
		if rep.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, rep)
	})
}
