package relaysvc

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	logsvc "github.com/trezcool/shule/services/logger"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	hub := NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("room"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_Publish(t *testing.T) {
	hub, srv := newTestHub(t)
	ctx := context.Background()

	alice := dial(t, srv, "appointment:1")
	bob := dial(t, srv, "appointment:1")
	eve := dial(t, srv, "appointment:2")
	require.Eventually(t, func() bool {
		return hub.RoomSize("appointment:1") == 2 && hub.RoomSize("appointment:2") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, "appointment:1", []byte(`{"body":"hello"}`)))

	for _, conn := range []*websocket.Conn{alice, bob} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"body":"hello"}`, string(payload))
	}

	// other rooms receive nothing
	_ = eve.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := eve.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Unregister(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, srv, "appointment:1")
	require.Eventually(t, func() bool { return hub.RoomSize("appointment:1") == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return hub.RoomSize("appointment:1") == 0 }, time.Second, 10*time.Millisecond)

	// publishing to an empty room is fine
	assert.NoError(t, hub.Publish(context.Background(), "appointment:1", []byte("{}")))
}

func TestHub_Closed(t *testing.T) {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, errHubClosed, hub.Publish(context.Background(), "room", []byte("{}")))
}
