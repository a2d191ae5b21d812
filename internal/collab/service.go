// Package collab routes operations from every transport through one
// serialized path per project: lock, apply, log, broadcast.
package collab

import (
	"encoding/json"
	"errors"

	"github.com/serroba/taskgrid/internal/cache"
	"github.com/serroba/taskgrid/internal/lock"
	"github.com/serroba/taskgrid/internal/patch"
	"github.com/serroba/taskgrid/internal/storage"
	"go.uber.org/zap"
)

// Common errors.
var (
	ErrMissingProject = errors.New("missing project")
	ErrInvalidProject = errors.New("invalid project name")
)

// ChangeRecorder appends one audit record per accepted operation.
type ChangeRecorder interface {
	Append(name, user, op string, payload map[string]json.RawMessage)
}

// Broadcaster delivers an accepted payload to a project's room.
type Broadcaster interface {
	BroadcastPatch(room string, payload json.RawMessage, excludeClientID string) int
}

// Config holds configuration for creating a Service.
type Config struct {
	Cache       *cache.Cache
	Store       storage.Store
	Locks       *lock.Registry
	Engine      *patch.Engine
	Backups     patch.Snapshotter
	ChangeLog   ChangeRecorder
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

// Service coordinates live editing of all projects.
//
// Cache and Engine must share Locks: the cache takes a project's lock to
// copy its document, and the service holds it while the engine mutates.
type Service struct {
	cache       *cache.Cache
	store       storage.Store
	locks       *lock.Registry
	engine      *patch.Engine
	backups     patch.Snapshotter
	changeLog   ChangeRecorder
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewService creates a new collaboration service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cache:       cfg.Cache,
		store:       cfg.Store,
		locks:       cfg.Locks,
		engine:      cfg.Engine,
		backups:     cfg.Backups,
		changeLog:   cfg.ChangeLog,
		broadcaster: cfg.Broadcaster,
		logger:      logger,
	}
}

// ApplyPatch handles an operation from a realtime client. Unless the
// payload sets noBroadcast, it is relayed to the rest of the room.
func (s *Service) ApplyPatch(clientID string, p patch.Payload) (int, error) {
	return s.apply(p, !p.NoBroadcast(), clientID)
}

// ApplyRequest handles an operation from the request/response fallback.
// That transport has no connection to exclude, so the whole room is told.
func (s *Service) ApplyRequest(p patch.Payload) (int, error) {
	return s.apply(p, true, "")
}

func (s *Service) apply(p patch.Payload, broadcast bool, excludeClientID string) (int, error) {
	room := p.Project()
	if room == "" {
		return 0, patch.Reject(patch.MsgMissingProject)
	}

	name := storage.SanitizeName(room)
	if name == "" {
		return 0, patch.Reject("Invalid project name")
	}

	op, err := patch.Decode(p)
	if err != nil {
		return 0, err
	}

	version, err := s.applyLocked(name, room, op, p, broadcast, excludeClientID)
	if err != nil {
		var rej *patch.RejectError
		if !errors.As(err, &rej) {
			s.logger.Error("apply failed", zap.String("project", name), zap.String("op", op.Name()), zap.Error(err))
		}

		return 0, err
	}

	return version, nil
}

// applyLocked runs one operation under the project lock. Broadcasting and
// the change log happen before the lock is released, so rooms and log files
// see operations in version order.
func (s *Service) applyLocked(
	name, room string, op patch.Operation, p patch.Payload, broadcast bool, excludeClientID string,
) (int, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	version, err := s.engine.Apply(name, op)
	if err != nil {
		return 0, err
	}

	if broadcast && s.broadcaster != nil {
		if raw, merr := json.Marshal(p); merr == nil {
			s.broadcaster.BroadcastPatch(room, raw, excludeClientID)
		}
	}

	if s.changeLog != nil {
		s.changeLog.Append(name, p.User(), op.Name(), p)
	}

	return version, nil
}

func projectName(raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingProject
	}

	name := storage.SanitizeName(raw)
	if name == "" {
		return "", ErrInvalidProject
	}

	return name, nil
}
