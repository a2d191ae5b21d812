package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/serroba/taskgrid/internal/patch"
	"github.com/serroba/taskgrid/internal/ws"
	"go.uber.org/zap"
)

// handleWebSocket handles GET /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.sockets.Add(1)
	defer s.sockets.Done()

	client, cleanup, err := s.setupWebSocketClient(w, r)
	if err != nil {
		return
	}

	defer cleanup()

	go client.WritePump()

	s.handleMessages(client)
}

// setupWebSocketClient upgrades the connection and registers a client.
func (s *Server) setupWebSocketClient(w http.ResponseWriter, r *http.Request) (*ws.Client, func(), error) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))

		return nil, nil, err
	}

	client := ws.NewClient(uuid.New().String(), conn)
	s.hub.Register(client)

	s.logger.Debug("client connected",
		zap.String("client", client.ID),
		zap.String("request_id", RequestIDFromContext(r.Context())),
	)

	cleanup := func() {
		s.hub.Unregister(client)
		_ = client.Close()

		s.logger.Debug("client disconnected", zap.String("client", client.ID))
	}

	return client, cleanup, nil
}

// handleMessages processes incoming messages until the connection ends.
func (s *Server) handleMessages(client *ws.Client) {
	for {
		msg, err := client.Receive()
		if err != nil {
			return
		}

		switch msg.Event {
		case ws.EventJoinProject:
			s.handleJoin(client, msg)
		case ws.EventLeaveProject:
			s.handleLeave(client, msg)
		case ws.EventSendPatch:
			s.handleSendPatch(client, msg)
		default:
			_ = client.SendError(ws.ErrorCodeUnknownEvent, "unknown event: "+string(msg.Event))
		}
	}
}

func (s *Server) handleJoin(client *ws.Client, msg ws.Inbound) {
	room, ok := roomOf(msg)
	if !ok {
		ack(client, msg, ws.AckPayload{Error: "No project name"})

		return
	}

	s.hub.Join(client, room)
	ack(client, msg, ws.AckPayload{OK: true})
}

func (s *Server) handleLeave(client *ws.Client, msg ws.Inbound) {
	room, ok := roomOf(msg)
	if !ok {
		ack(client, msg, ws.AckPayload{Error: "No project name"})

		return
	}

	s.hub.Leave(client, room)
	ack(client, msg, ws.AckPayload{OK: true})
}

func (s *Server) handleSendPatch(client *ws.Client, msg ws.Inbound) {
	p, err := patch.ParsePayload(msg.Data)
	if err == nil {
		var version int

		version, err = s.service.ApplyPatch(client.ID, p)
		if err == nil {
			ack(client, msg, ws.AckPayload{OK: true, Version: version})

			return
		}
	}

	var rej *patch.RejectError
	if errors.As(err, &rej) {
		ack(client, msg, ws.AckPayload{Error: rej.Message})

		return
	}

	ack(client, msg, ws.AckPayload{Error: "internal error"})
}

// roomOf reads the project a join or leave refers to.
func roomOf(msg ws.Inbound) (string, bool) {
	var payload ws.ProjectPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Project == "" {
		return "", false
	}

	return payload.Project, true
}

// ack answers a client event. Events sent without an id get no reply.
func ack(client *ws.Client, msg ws.Inbound, payload ws.AckPayload) {
	if len(msg.ID) == 0 {
		return
	}

	_ = client.Send(ws.Message{Event: ws.EventAck, ID: msg.ID, Data: payload})
}
