package capture

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/xrcap/xrcap/internal/api/ws"
)

func TestWSCapture(t *testing.T) {
	snapshotInterval = 50 * time.Millisecond

	dev := &fakeDevice{}
	dev.push(testFrame)

	c, _ := newTestCapture(t, testConfig(), dev)

	ws.Init()
	ws.HandleFunc("capture", c.wsCapture)

	srv := httptest.NewServer(http.DefaultServeMux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.Nil(t, err)
	defer conn.Close()

	// nothing to follow yet
	require.Nil(t, conn.WriteJSON(map[string]any{"type": "capture"}))

	var msg struct {
		Type  string         `json:"type"`
		Value map[string]any `json:"value"`
	}
	var errMsg struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.Nil(t, conn.ReadJSON(&errMsg))
	require.Equal(t, "error", errMsg.Type)
	require.Equal(t, "capture: no active session", errMsg.Value)

	require.Nil(t, conn.WriteJSON(map[string]any{
		"type":  "capture",
		"value": map[string]any{"start": true, "duration": "300ms"},
	}))

	var snapshots int
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		require.Nil(t, conn.ReadJSON(&msg))
		if msg.Type != "capture/snapshot" {
			break
		}
		snapshots++
	}

	require.Equal(t, "capture/report", msg.Type)
	require.Equal(t, "closed", msg.Value["state"])
	require.Equal(t, "duration", msg.Value["cause"])
	require.Positive(t, snapshots)
}
