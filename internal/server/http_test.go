package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewHTTPHandler_Health(t *testing.T) {
	h := NewHTTPHandler(Deps{Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestNewHTTPHandler_NotFound(t *testing.T) {
	h := NewHTTPHandler(Deps{Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without auth routes", rec.Code)
	}
}

func TestNewHTTPHandler_RecoversPanics(t *testing.T) {
	h := NewHTTPHandler(Deps{Log: zerolog.Nop(), Health: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
