package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath путь к конфигурации по умолчанию
const DefaultConfigPath = "./config/config.yaml"

// Config представляет конфигурацию консоли
type Config struct {
	// Бэкенд видеоаналитики
	API struct {
		BaseURL        string        `yaml:"base_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		MaxRetries     int           `yaml:"max_retries"`
		RetryDelay     time.Duration `yaml:"retry_delay"`
	} `yaml:"api"`

	// Локальный HTTP/gRPC сервер консоли
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"server"`

	// Клиенты потоков
	Stream struct {
		HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
		MaxMessageBytes  int64           `yaml:"max_message_bytes"`
		Reconnect        ReconnectConfig `yaml:"reconnect"`
	} `yaml:"stream"`

	// Сетка плиток
	Grid struct {
		Layout         int `yaml:"layout"`
		FrameCacheSize int `yaml:"frame_cache_size"`
	} `yaml:"grid"`

	// Ретрансляция кадров зрителям консоли
	Relay struct {
		BufferSize   int           `yaml:"buffer_size"`
		PingInterval time.Duration `yaml:"ping_interval"`
	} `yaml:"relay"`

	// Загрузка видео
	Upload struct {
		MaxFileSize int64 `yaml:"max_file_size"`
	} `yaml:"upload"`

	// Logging
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// ReconnectConfig политика переподключения (по умолчанию выключена)
type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// LoadConfig загружает конфигурацию из файла поверх значений по умолчанию
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// GetDefaultConfig возвращает конфигурацию по умолчанию
func GetDefaultConfig() *Config {
	cfg := &Config{}

	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.RequestTimeout = 30 * time.Second
	cfg.API.MaxRetries = 3
	cfg.API.RetryDelay = 1 * time.Second

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.GRPCPort = 9090

	cfg.Stream.HandshakeTimeout = 10 * time.Second
	cfg.Stream.Reconnect = ReconnectConfig{
		Enabled:      false,
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}

	cfg.Grid.Layout = 4
	cfg.Grid.FrameCacheSize = 64

	cfg.Relay.BufferSize = 8
	cfg.Relay.PingInterval = 30 * time.Second

	cfg.Upload.MaxFileSize = 500 * 1024 * 1024 // 500MB

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("api.base_url: missing host")
	}

	switch c.Grid.Layout {
	case 1, 4, 9:
	default:
		return fmt.Errorf("grid.layout: must be 1, 4 or 9, got %d", c.Grid.Layout)
	}

	if c.Grid.FrameCacheSize < 0 {
		return errors.New("grid.frame_cache_size: must not be negative")
	}
	if c.Stream.MaxMessageBytes < 0 {
		return errors.New("stream.max_message_bytes: must not be negative")
	}
	if c.Relay.BufferSize < 0 {
		return errors.New("relay.buffer_size: must not be negative")
	}
	if c.Upload.MaxFileSize < 0 {
		return errors.New("upload.max_file_size: must not be negative")
	}
	if c.Stream.Reconnect.MaxDelay < 0 {
		return errors.New("stream.reconnect.max_delay: must not be negative")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries: must not be negative")
	}

	return nil
}

// APIURL собирает HTTP адрес эндпоинта бэкенда
func (c *Config) APIURL(path string) string {
	return strings.TrimRight(c.API.BaseURL, "/") + path
}

// WSURL собирает WebSocket адрес эндпоинта бэкенда.
// https базе соответствует wss, всему остальному ws.
func (c *Config) WSURL(path string) string {
	base := strings.TrimRight(c.API.BaseURL, "/")

	scheme := "ws"
	if strings.HasPrefix(base, "https") {
		scheme = "wss"
	}

	host := strings.TrimPrefix(strings.TrimPrefix(base, "https://"), "http://")
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}
