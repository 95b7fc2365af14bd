package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"filesmanager/files-manager/internal/audit"
	"filesmanager/files-manager/internal/auth"
	"filesmanager/files-manager/internal/config"
	"filesmanager/files-manager/internal/observability"
)

const (
	msgUnauthorized       = "Unauthorized"
	msgMissingEmail       = "Missing email"
	msgMissingPassword    = "Missing password"
	msgAlreadyExist       = "Already exist"
	msgServiceUnavailable = "Service unavailable"
	msgInternal           = "Internal server error"
	msgMethodNotAllowed   = "Method not allowed"

	statusProbeTimeout = 2 * time.Second
)

type AuthService interface {
	Register(ctx context.Context, email, password string) (auth.User, error)
	Authenticate(ctx context.Context, authorization string) (string, error)
	WhoAmI(ctx context.Context, token string) (auth.Identity, error)
	EndSession(ctx context.Context, token string) error
}

type StatsService interface {
	CountUsers(ctx context.Context) (int64, error)
	CountFiles(ctx context.Context) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type AuditLogger interface {
	Record(e audit.Event) error
}

type Deps struct {
	Auth    AuthService
	Stats   StatsService
	Cache   Pinger
	DB      Pinger
	Audit   AuditLogger
	Metrics *observability.Metrics
	Log     *slog.Logger
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	registerAppHandlers(mux, deps)
	registerUserHandlers(mux, deps)
	registerAuthHandlers(mux, deps)

	return requestMiddleware(mux, deps)
}

func registerAppHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{
			"redis": alive(r.Context(), deps.Cache),
			"db":    alive(r.Context(), deps.DB),
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if deps.Stats == nil {
			writeError(w, http.StatusServiceUnavailable, msgServiceUnavailable)
			return
		}
		users, err := deps.Stats.CountUsers(r.Context())
		if err != nil {
			writeFailure(w, r, deps.Log, "count users", err)
			return
		}
		files, err := deps.Stats.CountFiles(r.Context())
		if err != nil {
			writeFailure(w, r, deps.Log, "count files", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"users": users, "files": files})
	})
}

func registerUserHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, msgServiceUnavailable)
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		// An unreadable body is treated as an empty one.
		_ = json.NewDecoder(r.Body).Decode(&req)

		u, err := deps.Auth.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			auditReq(deps.Audit, r, req.Email, "user.register", audit.OutcomeFailure, err.Error())
			switch {
			case errors.Is(err, auth.ErrMissingEmail):
				writeError(w, http.StatusBadRequest, msgMissingEmail)
			case errors.Is(err, auth.ErrMissingPassword):
				writeError(w, http.StatusBadRequest, msgMissingPassword)
			case errors.Is(err, auth.ErrUserExists):
				writeError(w, http.StatusBadRequest, msgAlreadyExist)
			default:
				writeFailure(w, r, deps.Log, "register user", err)
			}
			return
		}
		auditReq(deps.Audit, r, u.Email, "user.register", audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusCreated, u.Identity())
	})

	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, msgServiceUnavailable)
			return
		}
		id, err := deps.Auth.WhoAmI(r.Context(), r.Header.Get("X-Token"))
		if err != nil {
			deps.Metrics.RecordAuth("me", outcome(err))
			writeAuthError(w, r, deps.Log, "resolve session", err)
			return
		}
		deps.Metrics.RecordAuth("me", audit.OutcomeSuccess)
		writeJSON(w, http.StatusOK, id)
	})
}

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, msgServiceUnavailable)
			return
		}
		token, err := deps.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			deps.Metrics.RecordAuth("connect", outcome(err))
			auditReq(deps.Audit, r, "", "auth.connect", audit.OutcomeFailure, outcome(err))
			writeAuthError(w, r, deps.Log, "authenticate", err)
			return
		}
		deps.Metrics.RecordAuth("connect", audit.OutcomeSuccess)
		auditReq(deps.Audit, r, "", "auth.connect", audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	})

	mux.HandleFunc("/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, msgServiceUnavailable)
			return
		}
		ctx := r.Context()
		token := r.Header.Get("X-Token")
		id, _ := deps.Auth.WhoAmI(ctx, token)
		if err := deps.Auth.EndSession(ctx, token); err != nil {
			deps.Metrics.RecordAuth("disconnect", outcome(err))
			auditReq(deps.Audit, r, id.Email, "auth.disconnect", audit.OutcomeFailure, outcome(err))
			writeAuthError(w, r, deps.Log, "end session", err)
			return
		}
		deps.Metrics.RecordAuth("disconnect", audit.OutcomeSuccess)
		auditReq(deps.Audit, r, id.Email, "auth.disconnect", audit.OutcomeSuccess, "")
		w.WriteHeader(http.StatusNoContent)
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return audit.OutcomeSuccess
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auth.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func alive(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	return p.Ping(ctx) == nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	return false
}

func writeAuthError(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, err error) {
	if errors.Is(err, auth.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	writeFailure(w, r, log, op, err)
}

func writeFailure(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, err error) {
	status, msg := http.StatusInternalServerError, msgInternal
	if errors.Is(err, auth.ErrStoreUnavailable) {
		status, msg = http.StatusServiceUnavailable, msgServiceUnavailable
	}
	log.ErrorContext(r.Context(), op+" failed",
		"request_id", requestIDFromContext(r.Context()),
		"status", status,
		"error", err,
	)
	writeError(w, status, msg)
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func requestMiddleware(next *http.ServeMux, deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		_, route := next.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		deps.Metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		deps.Log.InfoContext(r.Context(), "http request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, actor, action, result, detail string) {
	if a == nil {
		return
	}
	_ = a.Record(audit.Event{
		Actor:     actor,
		Action:    action,
		Outcome:   result,
		RequestID: requestIDFromContext(r.Context()),
		RemoteIP:  clientIP(r),
		Detail:    detail,
	})
}
