package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/messaging"
)

var referenceState = contracts.VehicleState{PositionX: 1, PositionY: 2, Yaw: 0.5, Velocity: 3, Acceleration: 0.1}

const referencePayload = `{"position_x":1.0,"position_y":2.0,"yaw":0.5,"velocity":3.0,"acceleration":0.1}`

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), referenceState))

	assert.JSONEq(t, referencePayload, readState(t, a))
	assert.JSONEq(t, referencePayload, readState(t, b))
}

func TestHub_LatestStateOnConnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	require.NoError(t, hub.Publish(context.Background(), referenceState))

	conn := dial(t, srv)
	assert.JSONEq(t, referencePayload, readState(t, conn))
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, hub.Publish(context.Background(), referenceState))
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())
	assert.Zero(t, hub.ClientCount())
	assert.ErrorIs(t, hub.Publish(context.Background(), referenceState), messaging.ErrClosed)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(WithBufferSize(1))
	assert.NoError(t, hub.Publish(context.Background(), referenceState))
	assert.Zero(t, hub.ClientCount())
}
