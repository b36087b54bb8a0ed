package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	helpy "github.com/haqury/helpy"
	"go.uber.org/zap"

	"cv-console/internal/controller"
	"cv-console/internal/grid"
	"cv-console/internal/stream"
)

// Monitor операции сетки, нужные обработчикам
type Monitor interface {
	Page() grid.Page
	SetLayout(n int) error
	NextPage() grid.Page
	PrevPage() grid.Page
	Tile(cameraID string) (*controller.TileDetail, error)
	Frame(cameraID string) (stream.Frame, error)
	JPEG(cameraID string) ([]byte, stream.Frame, error)
	Reconnect(cameraID string) error
	Stats() []controller.CameraStats
	Refresh(ctx context.Context) (int, error)
}

// MonitorHandler обрабатывает HTTP запросы консоли мониторинга
type MonitorHandler struct {
	logger  *zap.Logger
	monitor Monitor
}

// NewMonitorHandler создает новый хендлер
func NewMonitorHandler(logger *zap.Logger, monitor Monitor) *MonitorHandler {
	return &MonitorHandler{
		logger:  logger,
		monitor: monitor,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *MonitorHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := router.Group("/grid")
	{
		g.GET("", h.GetGrid)
		g.PUT("/layout", h.SetLayout)
		g.POST("/next", h.NextPage)
		g.POST("/prev", h.PrevPage)
	}

	tiles := router.Group("/tiles/:camera_id")
	{
		tiles.GET("", h.GetTile)
		tiles.GET("/frame", h.GetFrame)
		tiles.GET("/frame.jpg", h.GetFrameJPEG)
		tiles.POST("/reconnect", h.Reconnect)
	}

	router.GET("/stats", h.GetStats)
	router.POST("/cameras/refresh", h.RefreshCameras)
}

// GetGrid текущая страница сетки
func (h *MonitorHandler) GetGrid(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Page())
}

// SetLayout меняет раскладку
func (h *MonitorHandler) SetLayout(c *gin.Context) {
	var req struct {
		Layout int `json:"layout" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"message": err.Error(),
		})
		return
	}

	if err := h.monitor.SetLayout(req.Layout); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid layout",
			"message": err.Error(),
		})
		return
	}

	h.logger.Info("Layout changed", zap.Int("layout", req.Layout))
	c.JSON(http.StatusOK, okResponse(fmt.Sprintf("Layout set to %d", req.Layout), map[string]string{
		"layout": strconv.Itoa(req.Layout),
		"page":   "0",
	}))
}

// NextPage следующая страница
func (h *MonitorHandler) NextPage(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.NextPage())
}

// PrevPage предыдущая страница
func (h *MonitorHandler) PrevPage(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.PrevPage())
}

// GetTile плитка и статистика камеры
func (h *MonitorHandler) GetTile(c *gin.Context) {
	detail, err := h.monitor.Tile(c.Param("camera_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetFrame последний кадр в виде data URI
func (h *MonitorHandler) GetFrame(c *gin.Context) {
	f, err := h.monitor.Frame(c.Param("camera_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"seq":         f.Seq,
		"data_uri":    f.DataURI(),
		"received_at": f.ReceivedAt.UTC().Format(time.RFC3339Nano),
	})
}

// GetFrameJPEG последний кадр в виде JPEG
func (h *MonitorHandler) GetFrameJPEG(c *gin.Context) {
	data, f, err := h.monitor.JPEG(c.Param("camera_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Reconnect явный перезапуск потока
func (h *MonitorHandler) Reconnect(c *gin.Context) {
	cameraID := c.Param("camera_id")
	if err := h.monitor.Reconnect(cameraID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, okResponse(fmt.Sprintf("Reconnect of %s requested", cameraID), map[string]string{
		"camera_id": cameraID,
	}))
}

// GetStats статистика по камерам
func (h *MonitorHandler) GetStats(c *gin.Context) {
	stats := h.monitor.Stats()
	c.JSON(http.StatusOK, gin.H{
		"count": len(stats),
		"stats": stats,
	})
}

// RefreshCameras перечитывает реестр камер
func (h *MonitorHandler) RefreshCameras(c *gin.Context) {
	n, err := h.monitor.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to refresh cameras", zap.Error(err))
		c.JSON(http.StatusBadGateway, &helpy.ApiResponse{
			Status:    "error",
			Message:   err.Error(),
			Timestamp: time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, okResponse(fmt.Sprintf("Loaded %d cameras", n), map[string]string{
		"cameras": strconv.Itoa(n),
	}))
}

func (h *MonitorHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, grid.ErrTileNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Not Found",
			"message":   err.Error(),
			"camera_id": c.Param("camera_id"),
		})
	case errors.Is(err, controller.ErrNoFrame):
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "No frame",
			"message":   err.Error(),
			"camera_id": c.Param("camera_id"),
		})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"message": err.Error(),
		})
	}
}

func okResponse(message string, metadata map[string]string) *helpy.ApiResponse {
	return &helpy.ApiResponse{
		Status:    "ok",
		Message:   message,
		Timestamp: time.Now().Unix(),
		Metadata:  metadata,
	}
}
