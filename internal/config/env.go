package config

import (
	"net/url"
	"os"

	"cv-console/internal/types"
)

// Переменные окружения, читаются один раз при старте процесса
const (
	EnvAPIURL   = "CV_API_URL"
	EnvLogLevel = "CV_LOG_LEVEL"
)

// ApplyEnv накладывает переменные окружения на конфигурацию
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// StreamEndpoint определяет адрес потока камеры.
// Пустая строка означает, что поток для плитки не настроен.
func (c *Config) StreamEndpoint(cam types.Camera) string {
	if !cam.Enabled {
		return ""
	}
	if cam.WSURL != "" {
		return cam.WSURL
	}
	if cam.ID == "" {
		return ""
	}
	return c.WSURL("/ws/" + url.PathEscape(cam.ID))
}
