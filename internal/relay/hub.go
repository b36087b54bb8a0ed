package relay

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cv-console/internal/stream"
)

// ErrHubClosed хаб уже остановлен
var ErrHubClosed = errors.New("relay hub closed")

// DefaultBufferSize очередь сообщений одного зрителя по умолчанию
const DefaultBufferSize = 8

// Message сообщение зрителю. Поля image и fps совпадают с потоком
// бэкенда, так что зритель читает ретранслятор как исходный поток.
type Message struct {
	Image string       `json:"image,omitempty"`
	Seq   uint64       `json:"seq,omitempty"`
	FPS   *float64     `json:"fps,omitempty"`
	State stream.State `json:"state,omitempty"`
}

// Viewer подключенный зритель плитки
type Viewer struct {
	ID          string    `json:"id"`
	CameraID    string    `json:"camera_id"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
	ConnectedAt time.Time `json:"connected_at"`
	Queued      int64     `json:"queued"`
	Dropped     int64     `json:"dropped"`

	send chan []byte
}

// Hub раздает кадры плиток зрителям
type Hub struct {
	logger     *zap.Logger
	bufferSize int

	mu      sync.RWMutex
	viewers map[string]*Viewer
	closed  bool
}

// NewHub создает хаб. bufferSize <= 0 означает DefaultBufferSize.
func NewHub(logger *zap.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		logger:     logger,
		bufferSize: bufferSize,
		viewers:    make(map[string]*Viewer),
	}
}

// Register регистрирует зрителя камеры
func (h *Hub) Register(cameraID, remoteAddr, userAgent string) (*Viewer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	v := &Viewer{
		ID:          uuid.NewString(),
		CameraID:    cameraID,
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, h.bufferSize),
	}
	h.viewers[v.ID] = v

	h.logger.Info("Viewer registered",
		zap.String("viewer_id", v.ID),
		zap.String("camera_id", cameraID),
		zap.String("remote_addr", remoteAddr))
	return v, nil
}

// Remove удаляет зрителя и закрывает его очередь
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.viewers[id]
	if !ok {
		return
	}
	close(v.send)
	delete(h.viewers, id)

	h.logger.Info("Viewer removed",
		zap.String("viewer_id", id),
		zap.String("camera_id", v.CameraID),
		zap.Int64("dropped", v.Dropped))
}

// HasViewers есть ли зрители у камеры
func (h *Hub) HasViewers(cameraID string) bool {
	return h.ViewerCount(cameraID) > 0
}

// ViewerCount число зрителей камеры, для пустого id всех
func (h *Hub) ViewerCount(cameraID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if cameraID == "" {
		return len(h.viewers)
	}
	n := 0
	for _, v := range h.viewers {
		if v.CameraID == cameraID {
			n++
		}
	}
	return n
}

// Viewers возвращает копии зрителей, отсортированные по времени подключения
func (h *Hub) Viewers() []Viewer {
	h.mu.RLock()
	out := make([]Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		cp := *v
		cp.send = nil
		out = append(out, cp)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// PublishFrame отправляет кадр зрителям камеры
func (h *Hub) PublishFrame(cameraID string, f stream.Frame) {
	h.Publish(cameraID, Message{Image: f.Image, Seq: f.Seq})
}

// PublishStats отправляет телеметрию зрителям камеры
func (h *Hub) PublishStats(cameraID string, st stream.Stats) {
	fps := st.FPS
	h.Publish(cameraID, Message{FPS: &fps})
}

// PublishState отправляет смену состояния зрителям камеры
func (h *Hub) PublishState(cameraID string, st stream.State) {
	h.Publish(cameraID, Message{State: st})
}

// Publish не блокируется: зритель с полной очередью теряет сообщение
func (h *Hub) Publish(cameraID string, msg Message) {
	if !h.HasViewers(cameraID) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal relay message",
			zap.String("camera_id", cameraID),
			zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, v := range h.viewers {
		if v.CameraID != cameraID {
			continue
		}
		select {
		case v.send <- data:
			v.Queued++
		default:
			v.Dropped++
		}
	}
}

// Close отключает всех зрителей. Новые регистрации отклоняются.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, v := range h.viewers {
		close(v.send)
		delete(h.viewers, id)
	}
	h.logger.Info("Relay hub closed")
}
