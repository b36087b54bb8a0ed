package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cv-console/internal/stream"
)

func decode(t *testing.T, data []byte) Message {
	t.Helper()

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PublishOnlyToCameraViewers(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)

	a, err := hub.Register("cam-a", "127.0.0.1", "test")
	require.NoError(t, err)
	b, err := hub.Register("cam-b", "127.0.0.1", "test")
	require.NoError(t, err)

	hub.PublishFrame("cam-a", stream.Frame{Image: "QUJD", Seq: 7})

	require.Len(t, a.send, 1)
	assert.Empty(t, b.send)

	msg := decode(t, <-a.send)
	assert.Equal(t, "QUJD", msg.Image)
	assert.Equal(t, uint64(7), msg.Seq)
	assert.Nil(t, msg.FPS)
}

func TestHub_StatsAndStateMessages(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)
	v, err := hub.Register("cam", "", "")
	require.NoError(t, err)

	hub.PublishStats("cam", stream.Stats{FPS: 0})
	hub.PublishState("cam", stream.StateConnected)

	stats := decode(t, <-v.send)
	require.NotNil(t, stats.FPS)
	assert.Equal(t, 0.0, *stats.FPS)

	state := decode(t, <-v.send)
	assert.Equal(t, stream.StateConnected, state.State)
	assert.Empty(t, state.Image)
}

func TestHub_FullQueueDrops(t *testing.T) {
	hub := NewHub(zap.NewNop(), 2)
	v, err := hub.Register("cam", "", "")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		hub.PublishFrame("cam", stream.Frame{Image: "QQ==", Seq: uint64(i)})
	}

	assert.Len(t, v.send, 2)
	viewers := hub.Viewers()
	require.Len(t, viewers, 1)
	assert.Equal(t, int64(2), viewers[0].Queued)
	assert.Equal(t, int64(3), viewers[0].Dropped)

	assert.Equal(t, uint64(1), decode(t, <-v.send).Seq)
	assert.Equal(t, uint64(2), decode(t, <-v.send).Seq)
}

func TestHub_RemoveAndCounts(t *testing.T) {
	hub := NewHub(zap.NewNop(), 0)

	a, _ := hub.Register("cam-a", "", "")
	_, _ = hub.Register("cam-a", "", "")
	_, _ = hub.Register("cam-b", "", "")

	assert.Equal(t, 3, hub.ViewerCount(""))
	assert.Equal(t, 2, hub.ViewerCount("cam-a"))
	assert.True(t, hub.HasViewers("cam-b"))
	assert.False(t, hub.HasViewers("cam-c"))

	hub.Remove(a.ID)
	hub.Remove(a.ID)

	_, ok := <-a.send
	assert.False(t, ok)
	assert.Equal(t, 1, hub.ViewerCount("cam-a"))
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zap.NewNop(), 0)
	v, err := hub.Register("cam", "", "")
	require.NoError(t, err)

	hub.Close()
	hub.Close()

	_, ok := <-v.send
	assert.False(t, ok)
	assert.Zero(t, hub.ViewerCount(""))

	_, err = hub.Register("cam", "", "")
	assert.ErrorIs(t, err, ErrHubClosed)

	assert.NotPanics(t, func() {
		hub.PublishFrame("cam", stream.Frame{Image: "QQ=="})
	})
}

// relayServer поднимает WebSocket сервер, подключающий каждого зрителя к cam
func relayServer(t *testing.T, hub *Hub, ping time.Duration, initial ...Message) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		v, err := hub.Register("cam", r.RemoteAddr, r.UserAgent())
		if err != nil {
			_ = conn.Close()
			return
		}
		NewSession(hub, zap.NewNop(), conn, v, ping).Run(initial...)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return decode(t, data)
}

func TestSession_InitialThenPublished(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)
	srv := relayServer(t, hub, time.Second, Message{State: stream.StateConnected})

	conn := dialRelay(t, srv)

	assert.Equal(t, stream.StateConnected, readMessage(t, conn).State)
	require.Eventually(t, func() bool { return hub.HasViewers("cam") }, 2*time.Second, 10*time.Millisecond)

	hub.PublishFrame("cam", stream.Frame{Image: "QUJD", Seq: 3})

	msg := readMessage(t, conn)
	assert.Equal(t, "QUJD", msg.Image)
	assert.Equal(t, uint64(3), msg.Seq)
}

func TestSession_ViewerDisconnectRemoves(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)
	srv := relayServer(t, hub, time.Second)

	conn := dialRelay(t, srv)
	require.Eventually(t, func() bool { return hub.HasViewers("cam") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !hub.HasViewers("cam") }, 2*time.Second, 10*time.Millisecond)
}

func TestSession_HubCloseSendsGoingAway(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)
	srv := relayServer(t, hub, time.Second)

	conn := dialRelay(t, srv)
	require.Eventually(t, func() bool { return hub.HasViewers("cam") }, 2*time.Second, 10*time.Millisecond)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestSession_UnresponsiveViewerRemoved(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)
	srv := relayServer(t, hub, 50*time.Millisecond)

	// соединение без чтения не отвечает на ping
	dialRelay(t, srv)
	require.Eventually(t, func() bool { return hub.HasViewers("cam") }, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return !hub.HasViewers("cam") }, 2*time.Second, 10*time.Millisecond)
}

func TestSession_RespondingViewerStays(t *testing.T) {
	hub := NewHub(zap.NewNop(), 4)
	srv := relayServer(t, hub, 50*time.Millisecond)

	conn := dialRelay(t, srv)
	require.Eventually(t, func() bool { return hub.HasViewers("cam") }, 2*time.Second, 5*time.Millisecond)

	// чтение обрабатывает ping и отвечает pong
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(300 * time.Millisecond)
	assert.True(t, hub.HasViewers("cam"))
}
