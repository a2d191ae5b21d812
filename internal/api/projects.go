package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/serroba/taskgrid/internal/collab"
	"github.com/serroba/taskgrid/internal/patch"
	"github.com/serroba/taskgrid/internal/project"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies; whole projects are sent on save.
const maxBodyBytes = 32 << 20

type loadResponse struct {
	OK       bool              `json:"ok"`
	Data     *project.Document `json:"data"`
	Filename string            `json:"filename,omitempty"`
	Version  int               `json:"version"`
}

type versionResponse struct {
	OK      bool `json:"ok"`
	Version int  `json:"version"`
}

type projectsResponse struct {
	OK       bool             `json:"ok"`
	Projects []collab.Summary `json:"projects"`
}

type conflictResponse struct {
	OK       bool `json:"ok"`
	Conflict bool `json:"conflict"`
	Version  int  `json:"version"`
}

type saveRequest struct {
	Project         string            `json:"project"`
	Data            *project.Document `json:"data"`
	ExpectedVersion *int              `json:"expectedVersion"`
	User            string            `json:"user"`
}

// handleLoadGroup handles GET /api/load-group?project={name}.
func (s *Server) handleLoadGroup(w http.ResponseWriter, r *http.Request) {
	loaded, err := s.service.Load(r.URL.Query().Get("project"))
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, loadResponse{
		OK:       true,
		Data:     loaded.Data,
		Filename: loaded.Filename,
		Version:  loaded.Version,
	})
}

// handleProjectVersion handles GET /api/project-version?project={name}.
func (s *Server) handleProjectVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.service.Version(r.URL.Query().Get("project"))
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, versionResponse{OK: true, Version: version})
}

// handleGroupProjects handles GET /api/group-projects.
func (s *Server) handleGroupProjects(w http.ResponseWriter, _ *http.Request) {
	projects, err := s.service.Projects()
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, projectsResponse{OK: true, Projects: projects})
}

// handlePatchTask handles POST /api/patch-task.
func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, patch.MsgNoJSONBody)

		return
	}

	p, err := patch.ParsePayload(body)
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	if _, ok := p["user"]; !ok {
		if userID := UserIDFromContext(r.Context()); userID != "" {
			p["user"], _ = json.Marshal(userID)
		}
	}

	version, err := s.service.ApplyRequest(p)
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, versionResponse{OK: true, Version: version})
}

// handleSaveGroup handles POST /api/save-group.
func (s *Server) handleSaveGroup(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, project.ErrPredecessorNotFound) {
			msg = patch.MsgPredecessorGone
		}

		writeError(w, http.StatusBadRequest, msg)

		return
	}

	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "No project data")

		return
	}

	user := req.User
	if user == "" {
		user = UserIDFromContext(r.Context())
	}

	if user == "" {
		user = patch.DefaultUser
	}

	version, err := s.service.Save(req.Project, user, req.Data, req.ExpectedVersion)
	if err != nil {
		s.writeServiceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, versionResponse{OK: true, Version: version})
}

// writeServiceError maps a service error to a response.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		rej      *patch.RejectError
		conflict *collab.ConflictError
	)

	switch {
	case errors.As(err, &rej):
		writeError(w, http.StatusBadRequest, rej.Message)
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{Conflict: true, Version: conflict.Version})
	case errors.Is(err, collab.ErrMissingProject):
		writeError(w, http.StatusBadRequest, "No project name")
	case errors.Is(err, collab.ErrInvalidProject):
		writeError(w, http.StatusBadRequest, "Invalid project name")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
