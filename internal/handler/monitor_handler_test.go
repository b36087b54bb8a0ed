package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cv-console/internal/controller"
	"cv-console/internal/grid"
	"cv-console/internal/stream"
)

type fakeMonitor struct {
	layout     int
	page       int
	frame      *stream.Frame
	refreshErr error
	reconnects []string
}

func (m *fakeMonitor) Page() grid.Page {
	return grid.Page{Layout: m.layout, Page: m.page, TotalPages: 3, Cameras: 10}
}

func (m *fakeMonitor) SetLayout(n int) error {
	if !grid.ValidLayout(n) {
		return grid.ErrInvalidLayout
	}
	m.layout, m.page = n, 0
	return nil
}

func (m *fakeMonitor) NextPage() grid.Page {
	m.page = (m.page + 1) % 3
	return m.Page()
}

func (m *fakeMonitor) PrevPage() grid.Page {
	m.page = (m.page + 2) % 3
	return m.Page()
}

func (m *fakeMonitor) Tile(id string) (*controller.TileDetail, error) {
	if id != "cam-1" {
		return nil, grid.ErrTileNotFound
	}
	return &controller.TileDetail{
		Tile:  grid.TileView{CameraID: id, State: stream.StateConnected},
		Stats: &controller.CameraStats{CameraID: id, FramesReceived: 7},
	}, nil
}

func (m *fakeMonitor) Frame(id string) (stream.Frame, error) {
	if _, err := m.Tile(id); err != nil {
		return stream.Frame{}, err
	}
	if m.frame == nil {
		return stream.Frame{}, controller.ErrNoFrame
	}
	return *m.frame, nil
}

func (m *fakeMonitor) JPEG(id string) ([]byte, stream.Frame, error) {
	f, err := m.Frame(id)
	if err != nil {
		return nil, stream.Frame{}, err
	}
	data, err := f.JPEG()
	return data, f, err
}

func (m *fakeMonitor) Reconnect(id string) error {
	if _, err := m.Tile(id); err != nil {
		return err
	}
	m.reconnects = append(m.reconnects, id)
	return nil
}

func (m *fakeMonitor) Stats() []controller.CameraStats {
	return []controller.CameraStats{{CameraID: "cam-1"}, {CameraID: "cam-2"}}
}

func (m *fakeMonitor) Refresh(context.Context) (int, error) {
	if m.refreshErr != nil {
		return 0, m.refreshErr
	}
	return 10, nil
}

func newTestRouter(m Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewMonitorHandler(zap.NewNop(), m).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMonitorHandler_Grid(t *testing.T) {
	m := &fakeMonitor{layout: 4}
	router := newTestRouter(m)

	rec := do(router, http.MethodGet, "/api/v1/grid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 4.0, body["layout"])
	assert.Equal(t, 3.0, body["total_pages"])

	rec = do(router, http.MethodPost, "/api/v1/grid/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["page"])

	do(router, http.MethodPost, "/api/v1/grid/prev", "")
	rec = do(router, http.MethodPost, "/api/v1/grid/prev", "")
	assert.Equal(t, 2.0, decode(t, rec)["page"])
}

func TestMonitorHandler_SetLayout(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "Valid", body: `{"layout":9}`, status: http.StatusOK},
		{name: "Invalid value", body: `{"layout":6}`, status: http.StatusBadRequest},
		{name: "Missing", body: `{}`, status: http.StatusBadRequest},
		{name: "Malformed", body: `{"layout":`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMonitor{layout: 4, page: 2}
			rec := do(newTestRouter(m), http.MethodPut, "/api/v1/grid/layout", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			if tt.status == http.StatusOK {
				assert.Equal(t, "ok", decode(t, rec)["status"])
				assert.Equal(t, 9, m.layout)
				assert.Equal(t, 0, m.page)
			}
		})
	}
}

func TestMonitorHandler_Tile(t *testing.T) {
	router := newTestRouter(&fakeMonitor{})

	rec := do(router, http.MethodGet, "/api/v1/tiles/cam-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	tile := body["tile"].(map[string]any)
	assert.Equal(t, "connected", tile["state"])
	stats := body["stats"].(map[string]any)
	assert.Equal(t, 7.0, stats["frames_received"])

	rec = do(router, http.MethodGet, "/api/v1/tiles/cam-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorHandler_Frame(t *testing.T) {
	m := &fakeMonitor{}
	router := newTestRouter(m)

	rec := do(router, http.MethodGet, "/api/v1/tiles/cam-1/frame", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No frame", decode(t, rec)["error"])

	m.frame = &stream.Frame{Image: "QUJD", Seq: 3, ReceivedAt: time.Now()}

	rec = do(router, http.MethodGet, "/api/v1/tiles/cam-1/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", body["data_uri"])
	assert.Equal(t, 3.0, body["seq"])

	rec = do(router, http.MethodGet, "/api/v1/tiles/cam-1/frame.jpg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "3", rec.Header().Get("X-Frame-Seq"))
	assert.Equal(t, []byte("ABC"), rec.Body.Bytes())
}

func TestMonitorHandler_Reconnect(t *testing.T) {
	m := &fakeMonitor{}
	router := newTestRouter(m)

	rec := do(router, http.MethodPost, "/api/v1/tiles/cam-1/reconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cam-1"}, m.reconnects)

	rec = do(router, http.MethodPost, "/api/v1/tiles/nope/reconnect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorHandler_StatsAndRefresh(t *testing.T) {
	m := &fakeMonitor{}
	router := newTestRouter(m)

	rec := do(router, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode(t, rec)["count"])

	rec = do(router, http.MethodPost, "/api/v1/cameras/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Loaded 10 cameras", decode(t, rec)["message"])

	m.refreshErr = errors.New("backend down")
	rec = do(router, http.MethodPost, "/api/v1/cameras/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])
}
