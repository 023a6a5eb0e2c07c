// Package api exposes the probability service over HTTP and WebSocket.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pickem-lab/internal/correlation"
	"pickem-lab/internal/observability"
	"pickem-lab/internal/probability"
	"pickem-lab/internal/propkey"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultRequestTimeout bounds a single query when Options leaves it unset.
const DefaultRequestTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

// WSConfig configures WebSocket connections.
type WSConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout closes a connection that sends nothing, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// AllowedOrigins lists the Origin values accepted on upgrade. Empty
	// accepts every origin, which suits a public read-only endpoint.
	AllowedOrigins []string
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Options for creating a Server.
type Options struct {
	Service        *probability.Service // required
	RequestTimeout time.Duration
	WS             *WSConfig // nil uses DefaultWSConfig
	Logger         *log.Logger
}

// Server routes API requests to the probability service.
type Server struct {
	svc      *probability.Service
	timeout  time.Duration
	ws       WSConfig
	logger   *log.Logger
	started  time.Time
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer creates a server with all routes registered.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	wsCfg := DefaultWSConfig()
	if opts.WS != nil {
		wsCfg = *opts.WS
	}

	s := &Server{
		svc:     opts.Service,
		timeout: timeout,
		ws:      wsCfg,
		logger:  logger,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/correlated-probability", s.handleCorrelated)
	s.mux.HandleFunc("GET /api/probability", s.handleProbability)
	s.mux.HandleFunc("POST /api/prop-correlation", s.handlePropCorrelation)
	s.mux.HandleFunc("GET /api/players/lookup", s.handleLookup)
	s.mux.HandleFunc("GET /api/players/{name}", s.handlePlayer)
	s.mux.HandleFunc("GET /api/queries", s.handleQueries)
	s.mux.HandleFunc("GET /ws/correlate", s.handleWS)

	// Health check
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	s.mux.Handle("GET /metrics", observability.Handler())

	s.mux.HandleFunc("GET /status", s.handleStatus)
}

// originChecker accepts requests without an Origin header and, when origins
// are listed, only those origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// Handler returns the root handler: routes wrapped with request IDs and
// request metrics.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(withRequestID(r.Context(), id))

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		s.mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		observability.RecordHTTPRequest(route, rec.code)
	})
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Started       time.Time `json:"started"`
	BatchID       string    `json:"batch_id,omitempty"`
	NumSims       uint64    `json:"num_sims,omitempty"`
	BatchTime     int64     `json:"batch_timestamp,omitempty"`
	BatchLoadedAt time.Time `json:"batch_loaded_at,omitempty"`
	CachedBitmaps int       `json:"cached_bitmaps"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "waiting_for_batch",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Started: s.started,
	}
	if b := s.svc.Loaded(); b != nil {
		resp.Status = "running"
		resp.BatchID = b.ID
		resp.NumSims = b.Metadata.NumSims
		resp.BatchTime = b.Metadata.Timestamp
		resp.BatchLoadedAt = b.LoadedAt
		resp.CachedBitmaps = b.CachedBitmaps()
	}
	observability.SetUptime(time.Since(s.started).Seconds())

	writeJSON(w, http.StatusOK, resp)
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, propkey.ErrMalformed),
		errors.Is(err, correlation.ErrTooFewProps),
		errors.Is(err, correlation.ErrTooManyProps),
		errors.Is(err, probability.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, probability.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, probability.ErrQueryLogDisabled),
		errors.Is(err, probability.ErrBatchChanged):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeError logs server-side failures and writes {success:false, error}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Printf("[%s] %s %s: %v", requestID(r.Context()), r.Method, r.URL.Path, err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the response code. It passes hijacking through
// for WebSocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.code = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
