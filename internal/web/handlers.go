package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/civicdata/datastore/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Datastore is the service surface the HTTP layer depends on.
type Datastore interface {
	Import(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error)
	Drop(ctx context.Context, identifier, version string) error
	List(ctx context.Context) ([]datastore.ImportStatus, error)
	RunQuery(ctx context.Context, q datastore.Query) (map[string]any, error)
}

// SourceRegistrar records where a resource's data can be fetched from.
type SourceRegistrar interface {
	Register(ctx context.Context, identifier, version, source string) error
}

// importRequest is the body of POST /api/v1/datastore/imports.
// Identifier is generated when absent. Source is the remote or local
// location of the resource data; it is required the first time a resource
// is imported and optional afterwards.
type importRequest struct {
	Identifier string `json:"identifier,omitempty"`
	Version    string `json:"version,omitempty"`
	Source     string `json:"source,omitempty"`
	Deferred   bool   `json:"deferred,omitempty"`
}

// importResponse wraps the per-collaborator results of an import.
type importResponse struct {
	Identifier string                      `json:"identifier"`
	Version    string                      `json:"version,omitempty"`
	Results    map[string]datastore.Result `json:"results"`
}

// handleImport starts an import for a resource. With deferred set the
// request returns immediately after enqueueing; otherwise it blocks
// through localization and import.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Identifier == "" {
		req.Identifier = uuid.New().String()
	}

	ctx := r.Context()
	logger := logging.WithFields(ctx,
		"identifier", req.Identifier,
		"version", req.Version,
	)

	if req.Source != "" {
		if err := s.registrar.Register(ctx, req.Identifier, req.Version, req.Source); err != nil {
			logger.Error("source registration failed", "error", err)
			s.respondError(w, r, err)
			return
		}
	}

	results, err := s.service.Import(ctx, req.Identifier, req.Deferred, req.Version)
	if err != nil {
		logger.Error("import failed", "error", err)
		s.respondError(w, r, err)
		return
	}

	logger.Info("import accepted", "deferred", req.Deferred)
	status := http.StatusOK
	if req.Deferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, importResponse{
		Identifier: req.Identifier,
		Version:    req.Version,
		Results:    results,
	})
}

// handleListImports reports the status of every known import job.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// handleDrop removes a resource's storage, job records, and localized files.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "missing identifier")
		return
	}
	version := r.URL.Query().Get("version")

	ctx := r.Context()
	if err := s.service.Drop(ctx, identifier, version); err != nil {
		logging.FromContext(ctx).Error("drop failed",
			"identifier", identifier,
			"version", version,
			"error", err,
		)
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(ctx).Info("resource dropped",
		"identifier", identifier,
		"version", version,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "dropped", "identifier": identifier})
}

// handleQuery executes an abstract query against an imported resource.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q datastore.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	response, err := s.service.RunQuery(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
