package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/api/handler"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Monitor *handler.MonitorHandler
	Logs    *handler.LogsHandler
	Runs    *handler.RunsHandler
}

// SetupRouter 设置路由
func SetupRouter(mode string, h Handlers, log *logrus.Entry) *gin.Engine {
	log = logger.Entry(log)
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	// 添加中间件
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "Switch Monitoring",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	// 页面表单使用的触发接口
	r.POST("/run-script", h.Monitor.RunSystem)
	r.POST("/run-interface-script", h.Monitor.RunInterface)
	r.POST("/reset", h.Monitor.Reset)
	r.POST("/clear-logs", h.Logs.ClearLogs)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", h.Runs.Health)
		v1.GET("/hosts", h.Monitor.ListHosts)
		v1.GET("/logs", h.Logs.TailLogs)

		runs := v1.Group("/runs")
		{
			runs.GET("", h.Runs.ListRuns)
			runs.GET("/:id", h.Runs.GetRun)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     statusCode,
			"duration":   time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if statusCode >= 400 {
			entry.Warn("HTTP Error")
			return
		}
		entry.Info("HTTP Request")
	}
}
