package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"entity-store/config"
	"entity-store/events"
	"entity-store/stores"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg, err := config.FromEnv(func(string) string { return "" })
	if err != nil {
		t.Fatal(err)
	}
	backend, err := stores.Open(context.Background(), cfg.Storage)
	if err != nil {
		t.Fatal(err)
	}
	r, err := newRouter(cfg, backend, events.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		method, target, body string
		status               int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/ben", "", http.StatusOK},
		{http.MethodGet, "/api/superheroes", "", http.StatusOK},
		{http.MethodGet, "/api/images", "", http.StatusOK},
		{http.MethodPost, "/api/superheroes", `{"superheroName":"Batman","originalName":"Bruce Wayne"}`, http.StatusCreated},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{http.MethodPatch, "/api/ben", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != tt.status {
			t.Errorf("%s %s: status %d, want %d (%s)", tt.method, tt.target, rr.Code, tt.status, rr.Body.String())
		}
	}
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/ben", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allowed origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/ben", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
