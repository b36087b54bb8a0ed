package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"cv-console/internal/config"
)

// maxErrorBody сколько байт тела ошибки читать
const maxErrorBody = 64 * 1024

// APIError ответ бэкенда с кодом вне 2xx
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// Client клиент HTTP API бэкенда видеоаналитики
type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
	logger  *zap.Logger
	config  *config.Config
}

// NewClient создает клиента. Загрузки идут без общего таймаута,
// их ограничивает только контекст.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	return &Client{
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.API.RequestTimeout,
			Transport: transport,
		},
		upload: &http.Client{
			Transport: transport,
		},
		logger: logger,
		config: cfg,
	}
}

// BaseURL адрес бэкенда
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(c.http, req, out)
}

func (c *Client) send(client *http.Client, req *http.Request, out any) error {
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Backend request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// decodeError разбирает тело {"detail": ...}. detail бывает строкой
// или списком ошибок валидации.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(data) == 0 {
		return apiErr
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(data))
		return apiErr
	}

	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		apiErr.Detail = detail
	} else {
		apiErr.Detail = string(body.Detail)
	}
	return apiErr
}
