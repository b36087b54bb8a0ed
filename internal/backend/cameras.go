package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"cv-console/internal/types"
)

// ListCameras читает реестр камер
func (c *Client) ListCameras(ctx context.Context) ([]types.Camera, error) {
	var cams []types.Camera
	if err := c.doJSON(ctx, http.MethodGet, "/api/cameras", nil, &cams); err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	return cams, nil
}

// ListCamerasWithRetry читает реестр с повторными попытками.
// Используется только при старте консоли.
func (c *Client) ListCamerasWithRetry(ctx context.Context) ([]types.Camera, error) {
	attempts := c.config.API.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		cams, err := c.ListCameras(ctx)
		if err == nil {
			return cams, nil
		}

		lastErr = err
		c.logger.Warn("Failed to list cameras, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err))

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.API.RetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("failed to list cameras after %d attempts: %w", attempts, lastErr)
}

// SaveCamera создает или обновляет камеру
func (c *Client) SaveCamera(ctx context.Context, cam types.Camera) (*types.Camera, error) {
	var saved types.Camera
	if err := c.doJSON(ctx, http.MethodPost, "/api/cameras", cam, &saved); err != nil {
		return nil, fmt.Errorf("save camera %s: %w", cam.ID, err)
	}

	c.logger.Info("Camera saved", zap.String("camera_id", saved.ID))
	return &saved, nil
}

// DeleteCamera удаляет камеру из реестра
func (c *Client) DeleteCamera(ctx context.Context, id string) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/cameras/"+url.PathEscape(id), nil, &resp); err != nil {
		return fmt.Errorf("delete camera %s: %w", id, err)
	}

	c.logger.Info("Camera deleted",
		zap.String("camera_id", id),
		zap.String("status", resp.Status))
	return nil
}
