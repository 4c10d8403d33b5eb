package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"mtmatch/internal/matching"
	"mtmatch/internal/store"
)

// errorBody is the uniform error envelope. The correlation id echoes the
// request id so a client report can be joined against the server log.
type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err.Error())
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.respondJSON(w, status, errorBody{Error: msg, CorrelationID: middleware.GetReqID(r.Context())})
}

// respondStoreError maps the known error classes onto status codes; anything
// unrecognized is a 500.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, matching.ErrMessageNotFound):
		s.respondError(w, r, http.StatusNotFound, err.Error())
	default:
		s.log.Error("request failed", "error", err.Error(), "path", r.URL.Path)
		s.respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"degraded": s.deps.Embedder.Degraded(),
	})
}

func (s *Server) handleMessageStatistics(w http.ResponseWriter, r *http.Request) {
	byStatus, err := s.deps.Store.CountMessagesByStatus(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	byType, err := s.deps.Store.CountMessagesByType(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	var total int64
	for _, n := range byStatus {
		total += n
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"byStatus": byStatus,
		"byType":   byType,
	})
}

func (s *Server) handleTemplateStatistics(w http.ResponseWriter, r *http.Request) {
	total, err := s.deps.Store.CountTemplates(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	byType, err := s.deps.Store.CountTemplatesByType(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"byType": byType,
	})
}

func (s *Server) handleTransactionStatistics(w http.ResponseWriter, r *http.Request) {
	byStatus, err := s.deps.Store.CountTransactionsByStatus(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	var total int64
	for _, n := range byStatus {
		total += n
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"byStatus": byStatus,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.deps.Config.All(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"static":    s.deps.Config.Static(),
		"overrides": overrides,
	})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if !s.decode(w, r, &updates) {
		return
	}
	if len(updates) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "empty configuration update")
		return
	}
	for key, value := range updates {
		if err := s.deps.Config.Set(r.Context(), key, value); err != nil {
			s.respondStoreError(w, r, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"updated": len(updates)})
}

// Preferences are display settings owned by the frontend; the server only
// stores them, it never interprets them.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.deps.Store.AllPreferences(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if !s.decode(w, r, &updates) {
		return
	}
	if len(updates) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "empty preferences update")
		return
	}
	for key, value := range updates {
		if err := s.deps.Store.SetPreference(r.Context(), key, value); err != nil {
			s.respondStoreError(w, r, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"updated": len(updates)})
}
