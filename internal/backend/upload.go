package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"cv-console/internal/types"
)

// MaxViewIndex последний индекс вида fisheye развертки (8 видов по 45°)
const MaxViewIndex = 7

var (
	ErrNotVideo     = errors.New("file is not a video")
	ErrFileTooLarge = errors.New("file exceeds upload limit")
	ErrInvalidView  = errors.New("view index must be within 0-7")
)

// UploadRequest параметры загрузки видео
type UploadRequest struct {
	Path             string
	EnableFisheye    bool
	CameraNamePrefix string
	SelectedViews    []int
}

// Upload загружает видео на /api/upload
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*types.UploadResult, error) {
	fields := map[string]string{
		"enable_fisheye": strconv.FormatBool(req.EnableFisheye),
	}

	var result types.UploadResult
	if err := c.postFile(ctx, "/api/upload", req.Path, fields, &result); err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(req.Path), err)
	}

	c.logger.Info("Video uploaded",
		zap.String("file", filepath.Base(req.Path)),
		zap.String("video_url", result.VideoURL))
	return &result, nil
}

// UploadAndProcess загружает видео и создает из него камеры
func (c *Client) UploadAndProcess(ctx context.Context, req UploadRequest) (*types.ProcessResult, error) {
	views, err := FormatViews(req.SelectedViews)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{
		"enable_fisheye":     strconv.FormatBool(req.EnableFisheye),
		"camera_name_prefix": req.CameraNamePrefix,
	}
	if views != "" {
		fields["selected_views"] = views
	}

	var result types.ProcessResult
	if err := c.postFile(ctx, "/api/upload_and_process", req.Path, fields, &result); err != nil {
		return nil, fmt.Errorf("upload and process %s: %w", filepath.Base(req.Path), err)
	}

	c.logger.Info("Video processed",
		zap.String("file", filepath.Base(req.Path)),
		zap.String("status", result.Status),
		zap.Int("created_cameras", len(result.CreatedCameras)))
	return &result, nil
}

// FormatViews собирает selected_views ("0,2,4"). Пустой список дает
// пустую строку: бэкенд создает все виды.
func FormatViews(views []int) (string, error) {
	parts := make([]string, 0, len(views))
	for _, v := range views {
		if v < 0 || v > MaxViewIndex {
			return "", fmt.Errorf("%w: %d", ErrInvalidView, v)
		}
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ","), nil
}

// ParseViews разбирает список видов из строки "0,2,4"
func ParseViews(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var views []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidView, part)
		}
		if v < 0 || v > MaxViewIndex {
			return nil, fmt.Errorf("%w: %d", ErrInvalidView, v)
		}
		views = append(views, v)
	}
	return views, nil
}

// CheckVideo проверяет размер файла и его тип по содержимому
func (c *Client) CheckVideo(path string) (*mimetype.MIME, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrNotVideo)
	}

	if limit := c.config.Upload.MaxFileSize; limit > 0 && info.Size() > limit {
		return nil, 0, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, info.Size(), limit)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("detect %s: %w", path, err)
	}
	if !isVideo(mt) {
		return nil, 0, fmt.Errorf("%w: detected %s", ErrNotVideo, mt.String())
	}

	return mt, info.Size(), nil
}

func isVideo(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}

// postFile отправляет multipart форму, читая файл потоком
func (c *Client) postFile(ctx context.Context, path, filePath string, fields map[string]string, out any) error {
	mt, size, err := c.CheckVideo(filePath)
	if err != nil {
		return err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(form, f, filepath.Base(filePath), mt.String(), fields))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Info("Uploading video",
		zap.String("path", path),
		zap.String("file", filepath.Base(filePath)),
		zap.String("mime", mt.String()),
		zap.Int64("size", size))

	err = c.send(c.upload, req, out)
	_ = pr.Close()
	return err
}

func writeForm(form *multipart.Writer, file io.Reader, name, contentType string, fields map[string]string) error {
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}

	return form.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
