package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FrameMessage сообщение потока камеры: кадр и/или телеметрия
type FrameMessage struct {
	Image *string  `json:"image,omitempty"` // base64 JPEG
	FPS   *float64 `json:"fps,omitempty"`
}

// HasImage сообщает, несет ли сообщение непустой кадр
func (m *FrameMessage) HasImage() bool {
	return m.Image != nil && *m.Image != ""
}

// HasFPS сообщает, несет ли сообщение частоту кадров (ноль тоже считается)
func (m *FrameMessage) HasFPS() bool {
	return m.FPS != nil
}

type wireFrameMessage struct {
	Image *string         `json:"image"`
	FPS   json.RawMessage `json:"fps"`
}

// DecodeFrameMessage разбирает текстовое сообщение потока.
// Нечисловой fps не считается телеметрией, кадр при этом сохраняется.
func DecodeFrameMessage(data []byte) (*FrameMessage, error) {
	var wire wireFrameMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode frame message: %w", err)
	}

	msg := &FrameMessage{Image: wire.Image}
	if len(wire.FPS) > 0 && !bytes.Equal(wire.FPS, []byte("null")) {
		var fps float64
		if err := json.Unmarshal(wire.FPS, &fps); err == nil {
			msg.FPS = &fps
		}
	}
	return msg, nil
}

// Camera запись реестра камер бэкенда
type Camera struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	WSURL      string `json:"ws_url"`
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Enabled    bool   `json:"enabled"`
	Image      string `json:"image"`
}

// UploadResult ответ /api/upload
type UploadResult struct {
	VideoURL string `json:"video_url"`
	Message  string `json:"message"`
}

// ProcessResult ответ /api/upload_and_process
type ProcessResult struct {
	Status         string   `json:"status"`
	CreatedCameras []Camera `json:"created_cameras"`
}

// ErrorResponse тело ошибки бэкенда
type ErrorResponse struct {
	Detail string `json:"detail"`
}
