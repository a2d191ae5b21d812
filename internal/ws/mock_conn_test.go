package ws_test

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/serroba/taskgrid/internal/ws"
	"github.com/stretchr/testify/require"
)

const testRoom = "Big Build"

// mockConn is a test double for ws.Conn.
type mockConn struct {
	mu       sync.Mutex
	messages []ws.Inbound
	closed   bool
	failNext bool

	// For ReadJSON simulation
	incoming chan ws.Inbound
}

func newMockConn() *mockConn {
	return &mockConn{
		messages: make([]ws.Inbound, 0),
		incoming: make(chan ws.Inbound, 10),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext {
		m.failNext = false

		return errors.New("write failed")
	}

	// Round-trip through JSON as the wire would.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var msg ws.Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	m.messages = append(m.messages, msg)

	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	msg, ok := <-m.incoming
	if !ok {
		return io.EOF
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

func (m *mockConn) Messages() []ws.Inbound {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]ws.Inbound, len(m.messages))
	copy(result, m.messages)

	return result
}

func (m *mockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// startClient creates a client whose write pump runs until the test ends.
func startClient(t *testing.T, id string) (*ws.Client, *mockConn) {
	t.Helper()

	conn := newMockConn()
	client := ws.NewClient(id, conn)

	go client.WritePump()

	t.Cleanup(func() { _ = client.Close() })

	return client, conn
}

func waitForMessages(t *testing.T, conn *mockConn, n int) []ws.Inbound {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(conn.Messages()) >= n
	}, time.Second, time.Millisecond)

	return conn.Messages()
}
