package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"cv-console/internal/handler"
	"cv-console/internal/metrics"
)

// NewRouter создает роутер консоли с настройкой маршрутов
func NewRouter(
	monitorHandler *handler.MonitorHandler,
	liveHandler *handler.LiveHandler,
	m *metrics.Metrics,
	logger *zap.Logger,
) http.Handler {
	router := NewEngine(logger)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "cv-console",
			"version": Version,
			"time":    time.Now().Unix(),
		})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		monitorHandler.RegisterRoutes(apiV1)
		liveHandler.RegisterRoutes(apiV1)

		apiV1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "running",
				"timestamp": time.Now().Unix(),
				"endpoints": []string{
					"/api/v1/grid - GET - Current page",
					"/api/v1/grid/layout - PUT - Set layout (1, 4, 9)",
					"/api/v1/grid/next - POST - Next page",
					"/api/v1/grid/prev - POST - Previous page",
					"/api/v1/tiles/{camera_id} - GET - Tile state and stats",
					"/api/v1/tiles/{camera_id}/frame - GET - Latest frame as data URI",
					"/api/v1/tiles/{camera_id}/frame.jpg - GET - Latest frame as JPEG",
					"/api/v1/tiles/{camera_id}/reconnect - POST - Reconnect stream",
					"/api/v1/tiles/{camera_id}/live - GET - WebSocket relay of the tile stream",
					"/api/v1/relay/viewers - GET - Connected relay viewers",
					"/api/v1/stats - GET - Per-camera stats",
					"/api/v1/cameras/refresh - POST - Reload camera registry",
				},
			})
		})
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
			"suggestions": []string{
				"Check /health for service status",
				"Check /api/v1/status for available endpoints",
			},
		})
	})

	return withCORS(router)
}

// NewEngine создает gin engine с логированием запросов через zap
func NewEngine(logger *zap.Logger) *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/metrics"},
		Formatter: func(param gin.LogFormatterParams) string {
			logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
	}))
	router.Use(gin.Recovery())

	return router
}

// withCORS настраивает CORS
func withCORS(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposedHeaders: []string{"X-Frame-Seq"},
	}).Handler(h)
}
