package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/core"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// MaxBodySize caps JSON request bodies (scripts and descriptor lists included).
const MaxBodySize = 10 * 1024 * 1024

// sqlRequest is the body of POST /sql.
type sqlRequest struct {
	SQL    string `json:"sql"`
	RowCap int    `json:"row_cap,omitempty"`
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status string                 `json:"status"`
	Init   core.InitLimiterStatus `json:"init"`
}

// sessionParams extracts the session identifiers from the route.
func sessionParams(r *http.Request) (string, string) {
	return chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID")
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.Configuration, "invalid request body", err)
	}
	return nil
}

// handleHealth reports liveness and initialization slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Init:   s.service.Limiter().Status(),
	})
}

// handleInitSession binds sources and builds the unified view.
func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	var req core.InitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.InitSession(WithRequestMetadata(r.Context(), r), userID, sessionID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBindSource binds or re-binds one source.
func (s *Server) handleBindSource(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	var src binder.Source
	if err := decodeJSON(w, r, &src); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.BindSource(WithRequestMetadata(r.Context(), r), userID, sessionID, src)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExecuteSQL runs one ad-hoc statement. Syntax and runtime failures
// are returned as a 200 with success=false.
func (s *Server) handleExecuteSQL(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	var req sqlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.ExecuteSQL(WithRequestMetadata(r.Context(), r), userID, sessionID, req.SQL, req.RowCap)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleQuickAnalysis analyzes views or one artifact.
func (s *Server) handleQuickAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	var req core.AnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.QuickAnalysis(WithRequestMetadata(r.Context(), r), userID, sessionID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListViews lists views with columns; ?counts=false skips row counts.
func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	withCounts := true
	if v := r.URL.Query().Get("counts"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, apperr.Newf(apperr.Configuration, "invalid counts value %q", v))
			return
		}
		withCounts = b
	}

	res, err := s.service.ListViews(r.Context(), userID, sessionID, withCounts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListFiles lists session artifacts.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	res, err := s.service.ListFiles(r.Context(), userID, sessionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteFile deletes one artifact.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)
	name := chi.URLParam(r, "name")

	res, err := s.service.DeleteFile(WithRequestMetadata(r.Context(), r), userID, sessionID, name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRunScript runs a caller script in the session directory.
func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := sessionParams(r)

	var req core.ScriptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.RunScript(WithRequestMetadata(r.Context(), r), userID, sessionID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReset wipes a session, a user or everything.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req core.ResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Reset(WithRequestMetadata(r.Context(), r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
