package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks realtime clients and the project rooms they have joined.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client
	clients map[string]*Client

	// rooms maps a project name to the set of client IDs in it
	rooms map[string]map[string]struct{}

	logger *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	connectedClients.Set(float64(len(h.clients)))
}

// Unregister removes a client from the hub and every room it joined.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range client.Rooms() {
		h.leave(client, room)
	}

	delete(h.clients, client.ID)
	connectedClients.Set(float64(len(h.clients)))
}

// Join adds a client to a room. A client may be in several rooms at once.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}

	h.rooms[room][client.ID] = struct{}{}
	client.addRoom(room)
}

// Leave removes a client from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leave(client, room)
}

func (h *Hub) leave(client *Client, room string) {
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client.ID)

		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}

	client.removeRoom(room)
}

// Broadcast queues a message for every client in a room except
// excludeClientID (pass "" to reach the whole room). A client whose queue
// is full is disconnected rather than allowed to stall the room.
func (h *Hub) Broadcast(room string, msg Message, excludeClientID string) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))

	for clientID := range h.rooms[room] {
		if clientID == excludeClientID {
			continue
		}

		if client, ok := h.clients[clientID]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	sent := 0

	for _, client := range targets {
		err := client.Send(msg)

		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrSendQueueFull):
			h.logger.Warn("dropping slow client", zap.String("client", client.ID), zap.String("room", room))
			_ = client.Close()
		}
	}

	broadcastMessagesTotal.Add(float64(sent))

	return sent
}

// BroadcastPatch sends an accepted operation payload to a room.
func (h *Hub) BroadcastPatch(room string, payload json.RawMessage, excludeClientID string) int {
	return h.Broadcast(room, Message{Event: EventPatch, Data: payload}, excludeClientID)
}

// CloseAll closes every client connection, ending their read loops.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))

	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
