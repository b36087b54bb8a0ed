package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cv-console/internal/grid"
	"cv-console/internal/relay"
)

// LiveSource источник ретрансляции плиток
type LiveSource interface {
	LiveSnapshot(cameraID string) ([]relay.Message, error)
	Relay() *relay.Hub
}

// LiveHandler ретранслирует поток видимой плитки зрителям по WebSocket
type LiveHandler struct {
	logger       *zap.Logger
	source       LiveSource
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewLiveHandler создает хендлер. Проверка Origin остается за CORS слоем.
func NewLiveHandler(logger *zap.Logger, source LiveSource, pingInterval time.Duration) *LiveHandler {
	return &LiveHandler{
		logger: logger,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pingInterval: pingInterval,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *LiveHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/tiles/:camera_id/live", h.Live)
	router.GET("/relay/viewers", h.GetViewers)
}

// Live подключает зрителя к плитке
func (h *LiveHandler) Live(c *gin.Context) {
	cameraID := c.Param("camera_id")

	if _, err := h.source.LiveSnapshot(cameraID); err != nil {
		if errors.Is(err, grid.ErrTileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Not Found",
				"message":   err.Error(),
				"camera_id": cameraID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"message": err.Error(),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("camera_id", cameraID),
			zap.Error(err))
		return
	}

	hub := h.source.Relay()
	viewer, err := hub.Register(cameraID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	// Снимок после регистрации: кадр, пришедший между ними, придет
	// еще раз через хаб с тем же seq
	initial, err := h.source.LiveSnapshot(cameraID)
	if err != nil {
		initial = nil
	}

	relay.NewSession(hub, h.logger, conn, viewer, h.pingInterval).Run(initial...)
}

// GetViewers список подключенных зрителей
func (h *LiveHandler) GetViewers(c *gin.Context) {
	viewers := h.source.Relay().Viewers()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(viewers),
		"viewers": viewers,
	})
}
