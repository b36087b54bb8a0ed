package relay

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultPingInterval период ping для поддержания соединения
	DefaultPingInterval = 30 * time.Second

	writeTimeout = 10 * time.Second
	readLimit    = 4096
)

// Session WebSocket соединение одного зрителя
type Session struct {
	hub          *Hub
	logger       *zap.Logger
	conn         *websocket.Conn
	viewer       *Viewer
	pingInterval time.Duration
}

// NewSession создает сессию для зарегистрированного зрителя
func NewSession(hub *Hub, logger *zap.Logger, conn *websocket.Conn, viewer *Viewer, pingInterval time.Duration) *Session {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Session{
		hub:          hub,
		logger:       logger.With(zap.String("viewer_id", viewer.ID), zap.String("camera_id", viewer.CameraID)),
		conn:         conn,
		viewer:       viewer,
		pingInterval: pingInterval,
	}
}

// Run отправляет initial, затем сообщения хаба. Блокируется до
// отключения зрителя или закрытия хаба.
func (s *Session) Run(initial ...Message) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLoop()
	}()

	s.writeLoop(done, initial)

	s.hub.Remove(s.viewer.ID)
	_ = s.conn.Close()
	<-done
}

// readLoop читает входящие сообщения только ради control frames и
// обнаружения отключения. Зритель, не ответивший pong за два периода
// ping, считается отключенным.
func (s *Session) readLoop() {
	pongWait := 2 * s.pingInterval

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				s.logger.Debug("Viewer read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Session) writeLoop(done <-chan struct{}, initial []Message) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for _, msg := range initial {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := s.write(websocket.TextMessage, data); err != nil {
			return
		}
	}

	for {
		select {
		case data, ok := <-s.viewer.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.logger.Debug("Viewer write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}
