package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mtmatch/internal/analysis"
	"mtmatch/internal/core"
	"mtmatch/internal/swift"
)

func (s *Server) handleExtractTemplates(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Extractor.Extract(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.deps.Store.ListTemplates(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"templates": tpls, "count": len(tpls)})
}

func (s *Server) handleTemplatesByType(w http.ResponseWriter, r *http.Request) {
	messageType := chi.URLParam(r, "messageType")
	if !core.ValidMessageType(messageType) {
		s.respondError(w, r, http.StatusBadRequest, "unknown message type: "+messageType)
		return
	}
	tpls, err := s.deps.Store.ListTemplatesByType(r.Context(), messageType)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"templates": tpls, "count": len(tpls)})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.deps.Store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleTemplateMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetTemplate(r.Context(), id); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	msgs, err := s.deps.Store.ListMessagesByTemplate(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// handleTestMatch scores raw content against every template of a type without
// touching any state.
func (s *Server) handleTestMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RawContent  string `json:"rawContent"`
		MessageType string `json:"messageType"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.RawContent == "" || req.MessageType == "" {
		s.respondError(w, r, http.StatusBadRequest, "rawContent and messageType are required")
		return
	}
	if !core.ValidMessageType(req.MessageType) {
		s.respondError(w, r, http.StatusBadRequest, "unknown message type: "+req.MessageType)
		return
	}

	results, err := s.deps.Matcher.TestAgainstAllTemplates(r.Context(), req.RawContent, req.MessageType)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// handleAnalyzeContent previews the narrative analysis of raw content against
// one template. Analyzer failures degrade to the sentinel, matching the
// persisted-path contract.
func (s *Server) handleAnalyzeContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RawContent string `json:"rawContent"`
		TemplateID string `json:"templateId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.RawContent == "" || req.TemplateID == "" {
		s.respondError(w, r, http.StatusBadRequest, "rawContent and templateId are required")
		return
	}
	tpl, err := s.deps.Store.GetTemplate(r.Context(), req.TemplateID)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}

	extracted := swift.Parse(req.RawContent).FieldMap()
	var structured *core.StructuredAnalysis
	if s.deps.Analyzer != nil {
		structured, err = s.deps.Analyzer.Analyze(r.Context(), req.RawContent, tpl.TemplateContent, extracted)
	}
	if s.deps.Analyzer == nil || err != nil {
		note := ""
		if err != nil {
			note = err.Error()
		}
		structured = analysis.Sentinel(note)
	}
	s.respondJSON(w, http.StatusOK, structured)
}
