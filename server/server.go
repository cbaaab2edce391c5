// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
)

// maxBodyBytes bounds request bodies. Canvas records are tiny; a
// larger body is a client bug or abuse.
const maxBodyBytes = 1 << 20

// Config configures a Server.
type Config struct {
	// Store is the durable object state. Required.
	Store ObjectStore

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the collaboration server. Mount Router on an HTTP
// listener.
type Server struct {
	store    ObjectStore
	logger   *slog.Logger
	feed     *feedHub
	presence *presenceHub
}

// New creates a server over the given object store.
func New(config Config) (*Server, error) {
	if config.Store == nil {
		return nil, errors.New("server: Store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    config.Store,
		logger:   logger,
		feed:     newFeedHub(logger),
		presence: newPresenceHub(logger),
	}, nil
}

// Router returns the HTTP surface.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	workspace := router.PathPrefix("/v1/workspaces/{workspace}").Subrouter()
	workspace.HandleFunc("/objects", s.handleListObjects).Methods(http.MethodGet)
	workspace.HandleFunc("/objects", s.handleCreateObject).Methods(http.MethodPost)
	workspace.HandleFunc("/objects/{id}", s.handleUpdateObject).Methods(http.MethodPatch)
	workspace.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)
	workspace.HandleFunc("/presence", s.handlePresence).Methods(http.MethodGet)
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	workspace := mux.Vars(r)["workspace"]
	records, err := s.store.LoadAll(r.Context(), workspace)
	if err != nil {
		s.logger.Error("object load failed", "workspace", workspace, "error", err)
		writeError(w, http.StatusServiceUnavailable, backend.ErrCodeUnavailable, "object store unavailable")
		return
	}
	if records == nil {
		records = []backend.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": records})
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	workspace := mux.Vars(r)["workspace"]

	var record backend.Record
	if !decodeBody(w, r, &record) {
		return
	}
	if record.WorkspaceID == "" {
		record.WorkspaceID = workspace
	}
	if record.WorkspaceID != workspace {
		writeError(w, http.StatusBadRequest, backend.ErrCodeWrongWorkspace,
			"record workspace "+record.WorkspaceID+" does not match path workspace "+workspace)
		return
	}
	if err := record.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, backend.ErrCodeInvalidParam, err.Error())
		return
	}

	stored, err := s.store.Insert(r.Context(), record)
	if err != nil {
		s.logger.Error("object insert failed", "workspace", workspace, "object", record.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, backend.ErrCodeUnavailable, "object store unavailable")
		return
	}

	s.feed.broadcast(workspace, backend.ChangeEvent{Kind: backend.ChangeCreate, Record: stored})
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleUpdateObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workspace, id := vars["workspace"], vars["id"]

	var patch backend.ObjectPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.UpdatedAt <= 0 {
		writeError(w, http.StatusBadRequest, backend.ErrCodeMissingParam, "patch missing updatedAt")
		return
	}

	stored, err := s.store.Update(r.Context(), workspace, id, patch)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, backend.ErrCodeNotFound, "object not found: "+id)
		return
	}
	if err != nil {
		s.logger.Error("object update failed", "workspace", workspace, "object", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, backend.ErrCodeUnavailable, "object store unavailable")
		return
	}

	s.feed.broadcast(workspace, backend.ChangeEvent{Kind: backend.ChangeUpdate, Record: stored})
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.feed.serve(w, r, mux.Vars(r)["workspace"])
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	workspace := mux.Vars(r)["workspace"]
	query := r.URL.Query()
	userID := query.Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, backend.ErrCodeMissingParam, "presence requires a user parameter")
		return
	}
	displayName := query.Get("name")
	if displayName == "" {
		displayName = userID
	}
	s.presence.serve(w, r, workspace, backend.Participant{
		UserID:      userID,
		DisplayName: displayName,
		Color:       query.Get("color"),
	})
}

// decodeBody parses the JSON request body into v, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, backend.ErrCodeBadJSON, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the structured error shape the client decodes into
// *backend.Error.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"errcode": code,
		"error":   message,
	})
}
