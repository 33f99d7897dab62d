package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"replenish/internal/config"
	"replenish/internal/jobs"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg, _ := config.Load()
	cfg.LogMode = "release"
	return New(cfg, jobs.NewRunner(nil), jobs.New(cfg, nil))
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestPOPullRejectsBadCutoff(t *testing.T) {
	srv := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/po-pull?created_from=yesterday", nil)
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}
