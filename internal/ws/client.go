package ws

import (
	"errors"
	"slices"
	"sync"
)

// sendQueueSize bounds how far a client may fall behind its rooms.
const sendQueueSize = 64

// Common errors.
var (
	ErrClientClosed  = errors.New("client is closed")
	ErrSendQueueFull = errors.New("client send queue is full")
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Client represents one realtime connection. Outgoing messages are queued
// and written by WritePump, so a connection only ever has one writer.
type Client struct {
	ID   string
	conn Conn

	send      chan Message
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewClient creates a new client wrapper.
func NewClient(id string, conn Conn) *Client {
	return &Client{
		ID:    id,
		conn:  conn,
		send:  make(chan Message, sendQueueSize),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

// Send queues a message for the client without blocking.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendQueueFull
	}
}

// SendError queues an error message.
func (c *Client) SendError(code, message string) error {
	return c.Send(Message{
		Event: EventError,
		Data: ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// WritePump writes queued messages until the client is closed or a write
// fails. It must run in exactly one goroutine per client.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				_ = c.Close()

				return
			}
		}
	}
}

// Receive reads the next message from the client.
func (c *Client) Receive() (Inbound, error) {
	var msg Inbound
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Inbound{}, err
	}

	return msg, nil
}

// Close closes the client connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})

	return err
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Rooms returns the rooms the client has joined, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}

	slices.Sort(rooms)

	return rooms
}

// InRoom reports whether the client has joined room.
func (c *Client) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.rooms[room]

	return ok
}

func (c *Client) addRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms[room] = struct{}{}
}

func (c *Client) removeRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.rooms, room)
}
