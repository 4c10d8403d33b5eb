package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Matcher.Match(r.Context(), chi.URLParam(r, "messageId"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	// A manual-review outcome is a 200, not an error.
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID  string `json:"messageId"`
		TemplateID string `json:"templateId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.MessageID == "" || req.TemplateID == "" {
		s.respondError(w, r, http.StatusBadRequest, "messageId and templateId are required")
		return
	}
	confidences, err := s.deps.Matcher.PreviewFieldConfidences(r.Context(), req.MessageID, req.TemplateID)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"fieldConfidences": confidences})
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Matcher.Reanalyze(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Store.ListTransactions(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"transactions": txs, "count": len(txs)})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.deps.Store.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tx)
}
