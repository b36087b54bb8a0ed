package stream

import (
	"encoding/base64"
	"time"
)

// State состояние соединения плитки
type State string

const (
	StateInactive     State = "inactive"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

// Overlay возвращает подпись поверх плитки.
// Для подключенной плитки подписи нет.
func (s State) Overlay() string {
	switch s {
	case StateConnecting:
		return "Connecting..."
	case StateError:
		return "Connection Error"
	case StateDisconnected:
		return "Offline"
	case StateConnected:
		return ""
	default:
		return "No Signal"
	}
}

// Frame последний полученный кадр
type Frame struct {
	Image      string // base64 JPEG
	Seq        uint64
	ReceivedAt time.Time
}

// DataURI возвращает кадр в виде data URI для <img src>
func (f Frame) DataURI() string {
	return "data:image/jpeg;base64," + f.Image
}

// JPEG декодирует полезную нагрузку кадра
func (f Frame) JPEG() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Image)
}

// Size примерный размер JPEG без декодирования
func (f Frame) Size() int {
	return base64.StdEncoding.DecodedLen(len(f.Image))
}

// Stats телеметрия источника
type Stats struct {
	FPS float64 `json:"fps"`
}

// Snapshot согласованный срез состояния клиента
type Snapshot struct {
	Endpoint  string
	State     State
	ConnID    string
	Frame     *Frame
	FPS       *float64
	LastError string
	Retries   int
}
