package ws_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/serroba/taskgrid/internal/ws"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterUnregister(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)
	client, _ := startClient(t, "c1")

	hub.Register(client)
	require.Equal(t, 1, hub.TotalClients())

	hub.Unregister(client)
	require.Equal(t, 0, hub.TotalClients())
}

func TestHub_JoinSeveralRooms(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)
	client, _ := startClient(t, "c1")

	hub.Register(client)
	hub.Join(client, testRoom)
	hub.Join(client, "Other")

	require.Equal(t, 1, hub.RoomSize(testRoom))
	require.Equal(t, 1, hub.RoomSize("Other"))

	hub.Leave(client, testRoom)
	require.Equal(t, 0, hub.RoomSize(testRoom))
	require.Equal(t, 1, hub.RoomSize("Other"))
	require.Equal(t, []string{"Other"}, client.Rooms())
}

func TestHub_Unregister_LeavesAllRooms(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)
	client, _ := startClient(t, "c1")

	hub.Register(client)
	hub.Join(client, testRoom)
	hub.Join(client, "Other")
	hub.Unregister(client)

	require.Equal(t, 0, hub.RoomSize(testRoom))
	require.Equal(t, 0, hub.RoomSize("Other"))
	require.Empty(t, client.Rooms())
}

func TestHub_Broadcast(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)

	client1, conn1 := startClient(t, "c1")
	client2, conn2 := startClient(t, "c2")
	client3, conn3 := startClient(t, "c3")

	hub.Register(client1)
	hub.Register(client2)
	hub.Register(client3)

	hub.Join(client1, testRoom)
	hub.Join(client2, testRoom)
	hub.Join(client3, "Other")

	// Broadcast excluding client1 (the sender)
	sent := hub.BroadcastPatch(testRoom, json.RawMessage(`{"op":"updateCell","key":"0-0"}`), "c1")
	require.Equal(t, 1, sent)

	messages := waitForMessages(t, conn2, 1)
	require.Equal(t, ws.EventPatch, messages[0].Event)
	require.JSONEq(t, `{"op":"updateCell","key":"0-0"}`, string(messages[0].Data))

	// Give the other pumps a chance to misbehave.
	time.Sleep(10 * time.Millisecond)

	require.Empty(t, conn1.Messages())
	require.Empty(t, conn3.Messages())
}

func TestHub_BroadcastWholeRoom(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)

	client1, conn1 := startClient(t, "c1")
	client2, conn2 := startClient(t, "c2")

	hub.Register(client1)
	hub.Register(client2)
	hub.Join(client1, testRoom)
	hub.Join(client2, testRoom)

	require.Equal(t, 2, hub.BroadcastPatch(testRoom, json.RawMessage(`{}`), ""))

	waitForMessages(t, conn1, 1)
	waitForMessages(t, conn2, 1)
}

func TestHub_BroadcastEmptyRoom(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)

	require.Equal(t, 0, hub.BroadcastPatch("nobody", json.RawMessage(`{}`), ""))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)

	conn := newMockConn()
	slow := ws.NewClient("slow", conn)

	// slow never runs a pump, so its queue fills.
	hub.Register(slow)
	hub.Join(slow, testRoom)

	sent := 0
	for range 70 {
		sent += hub.BroadcastPatch(testRoom, json.RawMessage(`{}`), "")
	}

	require.Equal(t, 64, sent)
	require.True(t, conn.IsClosed())
}

func TestHub_CloseAll(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(nil)
	client1, conn1 := startClient(t, "c1")
	client2, conn2 := startClient(t, "c2")

	hub.Register(client1)
	hub.Register(client2)
	hub.CloseAll()

	require.True(t, conn1.IsClosed())
	require.True(t, conn2.IsClosed())
}
