package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id"`
	Data  json.RawMessage `json:"data"`
}

type ackData struct {
	OK      bool   `json:"ok"`
	Version int    `json:"version"`
	Error   string `json:"error"`
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, id int, data string) {
	t.Helper()

	msg := map[string]any{"event": event, "id": id, "data": json.RawMessage(data)}
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func readAck(t *testing.T, conn *websocket.Conn, id int) ackData {
	t.Helper()

	msg := read(t, conn)
	require.Equal(t, "ack", msg.Event)
	require.Equal(t, strconv.Itoa(id), string(msg.ID))

	var ack ackData
	require.NoError(t, json.Unmarshal(msg.Data, &ack))

	return ack
}

func TestWebSocket_JoinRequiresProject(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	conn := dial(t, server)

	send(t, conn, "join_project", 1, `{}`)
	ack := readAck(t, conn, 1)
	require.False(t, ack.OK)
	require.Equal(t, "No project name", ack.Error)
}

func TestWebSocket_UnknownEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	conn := dial(t, server)

	send(t, conn, "dance", 1, `{}`)

	msg := read(t, conn)
	require.Equal(t, "error", msg.Event)
	require.Contains(t, string(msg.Data), "unknown_event")
}

func TestWebSocket_PatchFanOut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	alice := dial(t, server)
	bob := dial(t, server)

	send(t, alice, "join_project", 1, `{"project":"Big Build"}`)
	require.True(t, readAck(t, alice, 1).OK)

	send(t, bob, "join_project", 1, `{"project":"Big Build"}`)
	require.True(t, readAck(t, bob, 1).OK)

	// Realtime patch: the sender gets an ack, the rest of the room the payload.
	send(t, alice, "send_patch", 2,
		`{"op":"updateCell","project":"Big Build","key":"0-0","cell":{"text":"Kickoff"},"user":"alice"}`)

	ack := readAck(t, alice, 2)
	require.True(t, ack.OK)
	require.Equal(t, 1, ack.Version)

	msg := read(t, bob)
	require.Equal(t, "patch", msg.Event)
	require.JSONEq(t,
		`{"op":"updateCell","project":"Big Build","key":"0-0","cell":{"text":"Kickoff"},"user":"alice"}`,
		string(msg.Data))

	// Request/response fallback reaches the whole room, sender included.
	resp, err := http.Post(server.URL+"/api/patch-task", "application/json",
		strings.NewReader(`{"op":"updateCell","project":"Big Build","key":"0-1","cell":{"text":"Site"}}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Alice's next message is the fallback patch, so her own was not echoed.
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := read(t, conn)
		require.Equal(t, "patch", msg.Event)
		require.Contains(t, string(msg.Data), `"0-1"`)
	}

	// Suppressed broadcast still applies.
	send(t, bob, "send_patch", 3,
		`{"op":"updateCell","project":"Big Build","key":"0-2","cell":{},"noBroadcast":true}`)

	ack = readAck(t, bob, 3)
	require.True(t, ack.OK)
	require.Equal(t, 3, ack.Version)

	send(t, alice, "leave_project", 4, `{"project":"Big Build"}`)
	require.True(t, readAck(t, alice, 4).OK)
	require.Eventually(t, func() bool {
		return env.hub.RoomSize("Big Build") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocket_PatchRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	conn := dial(t, server)

	send(t, conn, "send_patch", 9, `{"op":"deleteSubtask","project":"alpha","taskId":4}`)

	ack := readAck(t, conn, 9)
	require.False(t, ack.OK)
	require.Equal(t, "Subtask not found", ack.Error)
}

func TestWebSocket_DisconnectLeavesRooms(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	conn := dial(t, server)

	send(t, conn, "join_project", 1, `{"project":"alpha"}`)
	require.True(t, readAck(t, conn, 1).OK)
	require.Equal(t, 1, env.hub.RoomSize("alpha"))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return env.hub.TotalClients() == 0 && env.hub.RoomSize("alpha") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServer_CloseSocketsWaitsForHandlers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	conn := dial(t, server)

	send(t, conn, "send_patch", 1, `{"op":"updateCell","project":"alpha","key":"0-0","cell":{"text":"a"}}`)
	require.True(t, readAck(t, conn, 1).OK)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, env.server.CloseSockets(ctx))
	require.Equal(t, 0, env.hub.TotalClients())

	// The handler has returned, so the connection is gone from the server side.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
