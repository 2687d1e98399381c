package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/sanitize"
	"github.com/aretw0/weft/pkg/domain"
	core "github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Engine is the graph runtime served over HTTP.
type Engine interface {
	Graph() *core.Graph
	Invoke(ctx context.Context, threadID string, input domain.Values) (*domain.Result, error)
	Stream(ctx context.Context, threadID string, input domain.Values) iter.Seq2[domain.Observation, error]
	State(ctx context.Context, threadID string) (*domain.Snapshot, error)
	History(ctx context.Context, threadID string) ([]*domain.Snapshot, error)
	Threads(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, threadID string) error
	Fork(ctx context.Context, src string, step int, dst string) (*domain.Snapshot, error)
}

// Server serves one Engine.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	redactor *middleware.Redactor
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithStreams shares a stream manager whose Hooks feed the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// WithRedactor masks matching keys in every response.
func WithRedactor(r *middleware.Redactor) Option {
	return func(s *Server) { s.redactor = r }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// RunRequest is the body of POST /runs and POST /runs/stream.
type RunRequest struct {
	ThreadID string        `json:"thread_id,omitempty"`
	Input    domain.Values `json:"input,omitempty"`
}

// ForkRequest is the body of POST /threads/{id}/fork.
type ForkRequest struct {
	Step     int    `json:"step"`
	ThreadID string `json:"thread_id,omitempty"`
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	server := &Server{Engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(server)
	}
	if server.Streams == nil {
		server.Streams = NewStreamManager(server.logger)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/graph", server.GetGraph)
	if server.metrics != nil {
		r.Method(http.MethodGet, "/metrics", server.metrics)
	}

	r.Post("/runs", server.Run)
	r.Post("/runs/stream", server.RunStream)

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", server.ListThreads)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(threadIDParam)
			r.Get("/", server.GetThread)
			r.Delete("/", server.DeleteThread)
			r.Get("/history", server.GetHistory)
			r.Post("/fork", server.ForkThread)
			r.Get("/events", server.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// threadID returns the unescaped {id} parameter. Child thread ids contain
// '/' and '#', so clients send them percent-encoded.
func threadID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if u, err := url.PathUnescape(id); err == nil {
		return u
	}
	return id
}

// threadIDParam rejects malformed thread ids before any handler runs.
func threadIDParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sanitize.ThreadID(threadID(r)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "weft-http",
		"version": strings.TrimSpace(weft.Version),
		"graph":   s.Engine.Graph().Name(),
	})
}

// GetGraph handles GET /graph. format=mermaid returns a diagram, with the
// progress of thread_id overlaid when given.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g := s.Engine.Graph()
	if r.URL.Query().Get("format") != "mermaid" {
		s.writeJSON(w, http.StatusOK, g.Describe())
		return
	}

	var overlay *graph.Overlay
	if id := r.URL.Query().Get("thread_id"); id != "" {
		history, err := s.Engine.History(r.Context(), id)
		if err != nil {
			s.fail(w, "GetGraph", err)
			return
		}
		overlay = graph.OverlayFrom(history)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(g, overlay))
}

// Run handles POST /runs and replies with the final result.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRun(w, r)
	if !ok {
		return
	}
	res, err := s.Engine.Invoke(r.Context(), req.ThreadID, req.Input)
	if err != nil {
		s.fail(w, "Run", err)
		return
	}
	res.Values = s.redact(res.Values)
	s.writeJSON(w, http.StatusOK, res)
}

// RunStream handles POST /runs/stream, writing one JSON observation per line
// as supersteps commit. A failure is written as a final {"error": ...} line.
func (s *Server) RunStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRun(w, r)
	if !ok {
		return
	}
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for obs, err := range s.Engine.Stream(r.Context(), req.ThreadID, req.Input) {
		if err != nil {
			s.logger.Warn("RunStream failed", "err", err, "thread_id", obs.ThreadID)
			enc.Encode(map[string]string{"error": err.Error()})
			return
		}
		obs.Values = s.redact(obs.Values)
		for node, update := range obs.Updates {
			obs.Updates[node] = s.redact(update)
		}
		if err := enc.Encode(obs); err != nil {
			s.logger.Debug("RunStream client gone", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.Engine.Threads(r.Context())
	if err != nil {
		s.fail(w, "ListThreads", err)
		return
	}
	if threads == nil {
		threads = []string{}
	}
	s.writeJSON(w, http.StatusOK, threads)
}

// GetThread handles GET /threads/{id}.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.State(r.Context(), threadID(r))
	if err != nil {
		s.fail(w, "GetThread", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.redactSnapshot(snap))
}

// DeleteThread handles DELETE /threads/{id}.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), threadID(r)); err != nil {
		s.fail(w, "DeleteThread", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /threads/{id}/history. diff=true returns the
// changes between consecutive checkpoints instead of full snapshots.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.Engine.History(r.Context(), threadID(r))
	if err != nil {
		s.fail(w, "GetHistory", err)
		return
	}
	for i, snap := range history {
		history[i] = s.redactSnapshot(snap)
	}

	if diff, _ := strconv.ParseBool(r.URL.Query().Get("diff")); diff {
		diffs := make([]*domain.SnapshotDiff, 0, len(history))
		var prev *domain.Snapshot
		for _, snap := range history {
			diffs = append(diffs, domain.Diff(prev, snap))
			prev = snap
		}
		s.writeJSON(w, http.StatusOK, diffs)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// ForkThread handles POST /threads/{id}/fork.
func (s *Server) ForkThread(w http.ResponseWriter, r *http.Request) {
	var body ForkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("ForkThread: invalid request body", "err", err)
		return
	}
	if body.ThreadID != "" {
		if err := sanitize.ThreadID(body.ThreadID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	snap, err := s.Engine.Fork(r.Context(), threadID(r), body.Step, body.ThreadID)
	if err != nil {
		s.fail(w, "ForkThread", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.redactSnapshot(snap))
}

// SubscribeEvents handles GET /threads/{id}/events (SSE). Each event is the
// JSON diff of a committed checkpoint. watch=a,b keeps only diffs touching
// one of the listed keys.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	id := threadID(r)

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		for _, key := range strings.Split(watch, ",") {
			watchList = append(watchList, strings.TrimSpace(key))
		}
	}

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: subscribed", "thread_id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "thread_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !touches(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// touches reports whether the encoded diff changes one of keys.
func touches(msg string, keys []string) bool {
	var diff domain.SnapshotDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, key := range keys {
		if _, ok := diff.Values[key]; ok {
			return true
		}
		if _, ok := diff.Appended[key]; ok {
			return true
		}
	}
	return false
}

func (s *Server) decodeRun(w http.ResponseWriter, r *http.Request) (RunRequest, bool) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid run request body", "err", err)
		return req, false
	}
	if req.ThreadID != "" {
		if err := sanitize.ThreadID(req.ThreadID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return req, false
		}
	}
	input, err := sanitize.Values(req.Input)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("run input rejected", "err", err)
		return req, false
	}
	req.Input = input
	return req, true
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", code)
	}
	http.Error(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCheckpointExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, sanitize.ErrInputTooLarge),
		errors.Is(err, sanitize.ErrInvalidThreadID),
		rejectedInput(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStepLimitExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// rejectedInput reports a reducer failure caused by the caller's input
// rather than by a node.
func rejectedInput(err error) bool {
	var re *domain.ReducerError
	return errors.As(err, &re) && re.Node == domain.Start
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) redact(v domain.Values) domain.Values {
	if s.redactor == nil {
		return v
	}
	return s.redactor.Values(v)
}

func (s *Server) redactSnapshot(snap *domain.Snapshot) *domain.Snapshot {
	if s.redactor == nil {
		return snap
	}
	return s.redactor.Snapshot(snap)
}
