package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Micca1978/scadarange/internal/config"
)

// dialWS connects a WebSocket client to the range and waits until the hub has registered it.
func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_DeliversHandlerEvents(t *testing.T) {
	s, _ := newTestServer(t, 0.99)
	conn := dialWS(t, s)

	login(t, s)
	rec := do(t, s, http.MethodPost, "/api/firewall/rules", `{"name":"allow scada","source":"any","destination":"any","service":"scada","action":"allow"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	ev := readEvent(t, conn)
	assert.Equal(t, "firewall_updated", ev["type"])
	assert.Equal(t, "firewall", ev["subsystem"])
	assert.Contains(t, ev["data"], "rules")
	assert.NotEmpty(t, ev["timestamp"])
}

func TestHub_AcknowledgesClientFrames(t *testing.T) {
	s, _ := newTestServer(t, 0.99)
	conn := dialWS(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	ev := readEvent(t, conn)
	assert.Equal(t, "ack", ev["type"])
	assert.Equal(t, "received", ev["message"])
}

func TestHub_BroadcastDropsForFullClient(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHub(logger, nil)
	pub := &recordingPublisher{}
	h.SetPublisher(pub, "test")

	stalled := &client{addr: "192.0.2.10:4000", send: make(chan []byte, clientBuffer)}
	h.clients[stalled] = struct{}{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range clientBuffer + 10 {
			h.Broadcast(Event{Type: "scada_update"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a client that is not reading")
	}

	assert.Len(t, stalled.send, clientBuffer)
	assert.Len(t, pub.Subjects(), clientBuffer+10, "the publisher still sees every event")

	h.Close()
	assert.Equal(t, 0, h.ClientCount())
	_, open := <-stalled.send
	assert.True(t, open, "buffered events remain readable after close")
}

func TestServer_ShutdownClosesClients(t *testing.T) {
	s, _ := newTestServer(t, 0.99)
	conn := dialWS(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure),
		"unexpected read error: %v", err)
}

func TestServer_RateLimit(t *testing.T) {
	s, _ := newTestServerWith(t, 0.99, func(cfg *config.Config) {
		cfg.Monitoring.RateLimitEnabled = true
		cfg.Monitoring.RateLimitWindow = time.Minute
		cfg.Monitoring.RateLimitMax = 3
	})

	request := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	for range 3 {
		require.Equal(t, http.StatusOK, request("198.51.100.7:5000"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "198.51.100.7:5001"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", decode[map[string]string](t, rec)["detail"])

	assert.Equal(t, http.StatusOK, request("198.51.100.8:5000"), "other clients are unaffected")
}
