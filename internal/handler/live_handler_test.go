package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cv-console/internal/grid"
	"cv-console/internal/relay"
	"cv-console/internal/stream"
)

type fakeLive struct {
	hub *relay.Hub
}

func (f *fakeLive) LiveSnapshot(id string) ([]relay.Message, error) {
	if id != "cam-1" {
		return nil, grid.ErrTileNotFound
	}
	return []relay.Message{{State: stream.StateConnected}}, nil
}

func (f *fakeLive) Relay() *relay.Hub {
	return f.hub
}

func newLiveServer(t *testing.T) (*httptest.Server, *relay.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := relay.NewHub(zap.NewNop(), 4)
	t.Cleanup(hub.Close)

	router := gin.New()
	NewLiveHandler(zap.NewNop(), &fakeLive{hub: hub}, time.Second).RegisterRoutes(router.Group("/api/v1"))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestLiveHandler_UnknownTile(t *testing.T) {
	srv, _ := newLiveServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/tiles/nope/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveHandler_RelaysTile(t *testing.T) {
	srv, hub := newLiveServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tiles/cam-1/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() relay.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg relay.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, stream.StateConnected, read().State)

	hub.PublishFrame("cam-1", stream.Frame{Image: "QUJD", Seq: 5})
	msg := read()
	assert.Equal(t, "QUJD", msg.Image)
	assert.Equal(t, uint64(5), msg.Seq)

	resp, err := http.Get(srv.URL + "/api/v1/relay/viewers")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Count   int           `json:"count"`
		Viewers []relay.Viewer `json:"viewers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Viewers, 1)
	assert.Equal(t, "cam-1", body.Viewers[0].CameraID)
}
