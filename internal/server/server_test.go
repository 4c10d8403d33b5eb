package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mtmatch/internal/config"
	"mtmatch/internal/embedding"
	"mtmatch/internal/matching"
	"mtmatch/internal/pipeline"
	"mtmatch/internal/store"
	"mtmatch/internal/templates"
	"mtmatch/internal/vectorstore"
)

const testToken = "test-token"

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	vs, err := vectorstore.NewSQLiteStore(st.DB(), embedding.DefaultDimension)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	embedder, err := embedding.NewService(nil, embedding.Options{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	cfgs := config.NewService(&config.Config{}, st)

	deps := Deps{
		Store:     st,
		Vectors:   vs,
		Pipeline:  pipeline.NewPipeline(st, vs, embedder),
		Extractor: templates.NewExtractor(st, vs, cfgs, 42),
		Matcher:   matching.NewMatcher(st, vs, embedder, nil, cfgs),
		Embedder:  embedder,
		Config:    cfgs,
	}
	return New(deps, config.Server{
		Host:         "127.0.0.1",
		Port:         0,
		AuthToken:    token,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t, testToken)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health payload: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t, testToken)

	rec := doJSON(t, srv, http.MethodGet, "/api/messages", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error payload: %v", err)
	}
	if body.Error == "" || body.CorrelationID == "" {
		t.Errorf("error envelope incomplete: %+v", body)
	}

	if rec := doJSON(t, srv, http.MethodGet, "/api/messages", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong token, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/api/messages", testToken, nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with the right token, got %d", rec.Code)
	}
}

func TestEmptyTokenDisablesAPI(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodGet, "/api/messages", "anything", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("an unset token must disable the API with 403, got %d", rec.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	srv := newTestServer(t, testToken)

	rec := doJSON(t, srv, http.MethodPost, "/api/messages", testToken, map[string]string{
		"messageType": "MT700",
		"rawContent":  ":20:LC123\n:32B:USD100000,00\n:59:BENE\n",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var msg map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if msg["status"] != "EMBEDDED" {
		t.Errorf("expected EMBEDDED, got %v", msg["status"])
	}

	id, _ := msg["id"].(string)
	if id == "" {
		t.Fatal("response missing message id")
	}
	if rec := doJSON(t, srv, http.MethodGet, "/api/messages/"+id, testToken, nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 fetching the ingested message, got %d", rec.Code)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, testToken)

	rec := doJSON(t, srv, http.MethodPost, "/api/messages", testToken, map[string]string{
		"messageType": "MT999",
		"rawContent":  ":20:X\n",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown message type should be 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/messages", testToken, map[string]string{
		"messageType": "MT700",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing rawContent should be 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/messages", testToken, map[string]string{
		"rawContent": ":20:NOHEADER\n",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unresolvable message type should be 400, got %d", rec.Code)
	}
}

func TestListMessagesValidatesFilters(t *testing.T) {
	srv := newTestServer(t, testToken)

	if rec := doJSON(t, srv, http.MethodGet, "/api/messages?status=BOGUS", testToken, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status filter should be 400, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/api/messages?type=MT999", testToken, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type filter should be 400, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/api/messages?status=EMBEDDED", testToken, nil); rec.Code != http.StatusOK {
		t.Errorf("valid filter should be 200, got %d", rec.Code)
	}
}

func TestUnknownIDsReturn404(t *testing.T) {
	srv := newTestServer(t, testToken)
	paths := []string{
		"/api/messages/ghost",
		"/api/templates/ghost",
		"/api/transactions/ghost",
	}
	for _, p := range paths {
		rec := doJSON(t, srv, http.MethodGet, p, testToken, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", p, rec.Code)
		}
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
			t.Errorf("%s: malformed error envelope: %s", p, rec.Body.String())
		}
	}
}

func TestMatchUnknownMessageReturns404(t *testing.T) {
	srv := newTestServer(t, testToken)
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions/match/ghost", testToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExtractEndpointEmptyBacklog(t *testing.T) {
	srv := newTestServer(t, testToken)
	rec := doJSON(t, srv, http.MethodPost, "/api/templates/extract", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if result["totalMessages"] != float64(0) {
		t.Errorf("expected an empty run, got %v", result)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	srv := newTestServer(t, testToken)

	rec := doJSON(t, srv, http.MethodPut, "/api/config", testToken, map[string]string{
		"similarity.threshold": "0.9",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/config", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Overrides map[string]string `json:"overrides"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid config payload: %v", err)
	}
	if body.Overrides["similarity.threshold"] != "0.9" {
		t.Errorf("override not persisted: %v", body.Overrides)
	}

	// The matcher reads overrides through the same service, so a raised
	// threshold must be visible on the next read.
	if got := srv.deps.Config.GetFloat(context.Background(), "similarity.threshold", 0.85); got != 0.9 {
		t.Errorf("expected updated threshold 0.9, got %f", got)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	srv := newTestServer(t, testToken)

	rec := doJSON(t, srv, http.MethodPut, "/api/preferences", testToken, map[string]string{
		"theme": "dark",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/preferences", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var prefs map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("invalid preferences payload: %v", err)
	}
	if prefs["theme"] != "dark" {
		t.Errorf("preference not persisted: %v", prefs)
	}

	if rec := doJSON(t, srv, http.MethodPut, "/api/preferences", testToken, map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty update should be 400, got %d", rec.Code)
	}
}
