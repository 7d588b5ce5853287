package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"cwl-mount/internal/config"
	"cwl-mount/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// CacheStats 는 /health 에 보여 줄 캐시 상태 (worker.Coordinator).
type CacheStats interface {
	Len() int
	Bytes() int64
}

type Handler struct {
	cfg     config.Config
	metrics *metrics.Metrics
	cache   CacheStats
	started time.Time
}

func NewHandler(cfg config.Config, m *metrics.Metrics, cache CacheStats) *Handler {
	return &Handler{
		cfg:     cfg,
		metrics: m,
		cache:   cache,
		started: time.Now(),
	}
}

// healthResponse 는 /health 응답 본문.
type healthResponse struct {
	Status       string `json:"status"`
	LogGroupName string `json:"log_group_name"`
	MountPoint   string `json:"mount_point"`
	Uptime       string `json:"uptime"`
	CacheEntries int    `json:"cache_entries"`
	CacheBytes   int64  `json:"cache_bytes"`
}

// HandleMetrics
//
// 마운트 상태를 나타내는 카운터 값들을 key=value 텍스트로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

// HandleHealth
//
// 프로세스가 살아 있고 마운트가 떠 있으면 200.
// 원격 상태는 보지 않는다 (원격 장애는 read 의 EIO 로 드러난다).
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		LogGroupName: h.cfg.LogGroupName,
		MountPoint:   h.cfg.MountPoint,
		Uptime:       time.Since(h.started).Truncate(time.Second).String(),
	}
	if h.cache != nil {
		resp.CacheEntries = h.cache.Len()
		resp.CacheBytes = h.cache.Bytes()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("write health response")
	}
}

// Mux 는 /metrics, /health 를 등록한 ServeMux.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", h.HandleHealth)
	return mux
}

// Server 는 부가 HTTP listener.
type Server struct {
	srv *http.Server
}

// New 는 addr 에서 h 를 서빙하는 Server 를 만든다.
//
// 응답이 작은 관측용 엔드포인트뿐이므로 timeout 은 짧게 잡는다.
func New(addr string, h *Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      h.Mux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
}

// Start 는 별도 goroutine 에서 ListenAndServe 를 돌린다.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("metrics listener started")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener terminated")
		}
	}()
}

// Shutdown 은 listener 를 닫는다.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
