package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"cwl-mount/internal/config"
	"cwl-mount/internal/metrics"

	"github.com/goccy/go-json"
)

type fakeCache struct{}

func (fakeCache) Len() int     { return 3 }
func (fakeCache) Bytes() int64 { return 1024 }

func newTestHandler() (*Handler, *metrics.Metrics) {
	m := metrics.New()
	cfg := config.Config{LogGroupName: "/aws/app", MountPoint: "/mnt/logs"}
	return NewHandler(cfg, m, fakeCache{}), m
}

func TestHandleMetrics(t *testing.T) {
	h, m := newTestHandler()
	atomic.AddInt64(&m.FetchesTotal, 2)

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fetches_total=2\n") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler()

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.LogGroupName != "/aws/app" || resp.MountPoint != "/mnt/logs" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.CacheEntries != 3 || resp.CacheBytes != 1024 {
		t.Errorf("cache stats = %d/%d", resp.CacheEntries, resp.CacheBytes)
	}
}

func TestUnknownPath(t *testing.T) {
	h, _ := newTestHandler()

	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collect", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
