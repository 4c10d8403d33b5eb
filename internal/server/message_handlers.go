package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mtmatch/internal/core"
	"mtmatch/internal/pipeline"
)

// maxUploadBytes bounds bulk uploads (32 MiB).
const maxUploadBytes = 32 << 20

func (s *Server) handleIngestMessage(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if !s.decode(w, r, &req) {
		return
	}
	if req.RawContent == "" {
		s.respondError(w, r, http.StatusBadRequest, "rawContent is required")
		return
	}
	if req.MessageType != "" && !core.ValidMessageType(req.MessageType) {
		s.respondError(w, r, http.StatusBadRequest, "unknown message type: "+req.MessageType)
		return
	}

	msg, err := s.deps.Pipeline.Ingest(r.Context(), req)
	if errors.Is(err, pipeline.ErrUnknownType) {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, msg)
}

// handleBulkUpload accepts either a multipart "file" part or a raw text body
// and splits it on header envelopes.
func (s *Server) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var raw []byte
	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, "multipart upload without a file part")
			return
		}
		defer file.Close()
		raw, err = io.ReadAll(file)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
			return
		}
	} else {
		var readErr error
		raw, readErr = io.ReadAll(r.Body)
		if readErr != nil {
			s.respondError(w, r, http.StatusBadRequest, "failed to read request body: "+readErr.Error())
			return
		}
	}
	if len(raw) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "empty upload")
		return
	}

	result, err := s.deps.Pipeline.IngestBulk(r.Context(), string(raw))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	messageType := r.URL.Query().Get("type")
	if status != "" && !core.ValidProcessingStatus(status) {
		s.respondError(w, r, http.StatusBadRequest, "unknown status: "+status)
		return
	}
	if messageType != "" && !core.ValidMessageType(messageType) {
		s.respondError(w, r, http.StatusBadRequest, "unknown message type: "+messageType)
		return
	}

	msgs, err := s.deps.Store.ListMessages(r.Context(), status, messageType)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (s *Server) handleUnmatchedMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 0)
	size := queryInt(q.Get("size"), 20)
	sortBy := q.Get("sortBy")
	sortDirection := q.Get("sortDirection")

	msgs, total, err := s.deps.Store.ListUnmatched(r.Context(), page, size, sortBy, sortDirection)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    total,
		"page":     page,
		"size":     size,
	})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.deps.Store.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
