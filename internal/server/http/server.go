package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/locqueue"
	"github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/runtime"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	mux := http.NewServeMux()
	s := &Server{rt: rt, logger: logger.With(logpkg.Component("http")), srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/locations", s.handleAddLocation)
	mux.HandleFunc("/v1/flush", s.handleFlush)
	mux.HandleFunc("/v1/queue/stats", s.handleStats)
	mux.HandleFunc("/v1/queue/entries", s.handleEntries)
	mux.HandleFunc("/v1/queue/reset", s.handleReset)
	mux.HandleFunc("/v1/autoflush/start", s.handleAutoFlushStart)
	mux.HandleFunc("/v1/autoflush/stop", s.handleAutoFlushStop)
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var sample locqueue.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seq, err := s.rt.Queue().AddLocation(r.Context(), sample)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, locqueue.ErrInvalidSample) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]uint64{"seq": seq})
}

type flushResp struct {
	Flushed bool `json:"flushed"`
	// Remaining is the queue size after the attempt.
	Remaining int                      `json:"remaining"`
	Result    *locqueue.DeliveryResult `json:"result,omitempty"`
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res := s.rt.Queue().Flush(r.Context())
	size, err := s.rt.Queue().QueueSize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, flushResp{Flushed: res != nil, Remaining: size, Result: res})
}

type statsResp struct {
	Queue          string `json:"queue"`
	Size           int    `json:"size"`
	LastSeq        uint64 `json:"lastSeq"`
	LastAppliedSeq uint64 `json:"lastAppliedSeq"`
	FlushThreshold int    `json:"flushThreshold"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	q := s.rt.Queue()
	size, err := q.QueueSize(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	lastSeq, err := q.LastSeq(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	applied, err := q.LastAppliedSeq(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	cfg := s.rt.Config()
	writeJSON(w, http.StatusOK, statsResp{
		Queue:          cfg.QueueName,
		Size:           size,
		LastSeq:        lastSeq,
		LastAppliedSeq: applied,
		FlushThreshold: cfg.FlushThreshold,
	})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.rt.Queue().Entries(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.rt.Queue().Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("queue reset via api")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAutoFlushStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	interval := s.rt.Config().FlushInterval()
	if ms := r.URL.Query().Get("intervalMs"); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("intervalMs must be a positive integer"))
			return
		}
		interval = time.Duration(n) * time.Millisecond
	}
	s.rt.Queue().StartAutoFlush(interval)
	writeJSON(w, http.StatusOK, map[string]any{"intervalMs": interval.Milliseconds()})
}

func (s *Server) handleAutoFlushStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.rt.Queue().StopAutoFlush()
	w.WriteHeader(http.StatusNoContent)
}
