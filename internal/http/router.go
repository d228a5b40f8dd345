// Package httpx wires HTTP endpoints to services.
package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/service/match"
	"github.com/cengZa/zhiyin-backend/internal/service/team"
	"github.com/cengZa/zhiyin-backend/internal/service/user"
	"github.com/cengZa/zhiyin-backend/internal/ws"
)

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitWrite     = 60
	rateLimitRead      = 120
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	users    user.Service
	teams    team.Service
	match    match.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, userSvc user.Service, teamSvc team.Service, matchSvc match.Service, hub *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		users:  userSvc,
		teams:  teamSvc,
		match:  matchSvc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/register", r.audit(r.withRateLimit("/auth/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/logout", r.audit(r.handlerAuthRate("/auth/logout", rateLimitWrite, rateWindowDefault, r.handleLogout)))
	r.mux.HandleFunc("/users/me", r.audit(r.handlerAuthRate("/users/me", rateLimitRead, rateWindowDefault, r.handleMe)))
	r.mux.HandleFunc("/users/update", r.audit(r.handlerAuthRate("/users/update", rateLimitWrite, rateWindowDefault, r.handleUserUpdate)))
	r.mux.HandleFunc("/users/search", r.audit(r.handlerAuthRate("/users/search", rateLimitRead, rateWindowDefault, r.handleUserSearch)))
	r.mux.HandleFunc("/users/match", r.audit(r.handlerAuthRate("/users/match", rateLimitRead, rateWindowDefault, r.handleUserMatch)))
	r.mux.HandleFunc("/teams", r.audit(r.handlerAuthRate("/teams", rateLimitWrite, rateWindowDefault, r.handleTeams)))
	r.mux.HandleFunc("/teams/", r.audit(r.handlerAuthRate("/teams/", rateLimitWrite, rateWindowDefault, r.handleTeamSubroutes)))
	r.mux.HandleFunc("/ws/teams", r.audit(r.handlerAuthRate("/ws/teams", rateLimitStream, rateWindowRealtime, r.handleTeamEventsWS)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if r.dbHealth != nil {
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeServiceError maps a coordinator failure to an HTTP status.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var invalidState *domain.InvalidStateError
	var systemErr *domain.SystemError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrTeamFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotAMember), errors.Is(err, domain.ErrLimitExceeded):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidState):
		writeError(w, http.StatusBadRequest, invalidState.Error())
	case errors.Is(err, domain.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, "team is busy, try again")
	case errors.As(err, &systemErr):
		r.logger.Error("internal inconsistency", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

// SetContext lets inner middleware expose the enriched request context to the
// audit wrapper.
func (rec *statusRecorder) SetContext(ctx context.Context) {
	rec.ctx = ctx
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(payload []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(payload)
	rec.bytes += n
	return n, err
}

// Hijack exposes the underlying connection for websocket upgrades.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Flush forwards flushes for SSE streams.
func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// audit logs every request and feeds the request metrics.
func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			fields = append(fields, "user_id", info.UserID)
		}
		r.logger.Info("http request", fields...)
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)
	}
}

func clientIP(req *http.Request) string {
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
