package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mindmesh/mindmesh/internal/api/middleware"

	"github.com/go-chi/chi/v5"
)

func TestAgentIDFromMindRoute(t *testing.T) {
	var got string

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/api/v1/cognitive/mind/{agentID}", func(w http.ResponseWriter, req *http.Request) {
		got = middleware.AgentID(req)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cognitive/mind/agent-7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got != "agent-7" {
		t.Errorf("AgentID() = %q, want %q", got, "agent-7")
	}
}

func TestAgentIDEmptyOffMindRoutes(t *testing.T) {
	var got string

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		got = middleware.AgentID(req)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got != "" {
		t.Errorf("AgentID() = %q, want empty", got)
	}
}

func TestLoggerPassesStatusThrough(t *testing.T) {
	handler := middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	if w.Body.String() != "short and stout" {
		t.Errorf("body = %q, not passed through", w.Body.String())
	}
}

func TestTelemetryPassesStatusThrough(t *testing.T) {
	handler := middleware.Telemetry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cognitive/process", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}
