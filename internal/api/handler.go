package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/tableagent/internal/agent"
	"github.com/duckmesh/tableagent/internal/auth"
	"github.com/duckmesh/tableagent/internal/config"
	"github.com/duckmesh/tableagent/internal/observability"
	"github.com/duckmesh/tableagent/internal/storage"
	"github.com/duckmesh/tableagent/internal/tools"
)

type ReadinessCheck func(ctx context.Context) error

var routes = []string{
	"/v1/health",
	"/v1/ready",
	"/v1/metrics",
	"/v1/schema",
	"/v1/query",
	"/v1/tools",
	"/v1/ask",
}

// Asker answers one natural-language prompt. *agent.Runner implements it.
type Asker interface {
	Run(ctx context.Context, prompt string) (agent.Result, error)
}

type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	ReadinessTimeout time.Duration
	AuthMiddleware   func(http.Handler) http.Handler
	Toolbox          *tools.Toolbox
	Agent            Asker
	AskLimiter       *RateLimiter
	AskTimeout       time.Duration
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.ReadinessTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.Handle("GET /v1/schema", auth.RequireRole(auth.RoleDataReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})))
	protected.Handle("POST /v1/query", auth.RequireRole(auth.RoleDataReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})))
	protected.Handle("GET /v1/tools", auth.RequireRole(auth.RoleDataReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListTools(deps, w, r)
	})))
	protected.Handle("POST /v1/ask", auth.RequireRole(auth.RoleAgentUser, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("GET /v1/tools", protectedHandler)
	mux.Handle("POST /v1/ask", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware(routes...),
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckDatasetLoaded reports ready once the toolbox serving the dataset exists.
func CheckDatasetLoaded(toolbox *tools.Toolbox) ReadinessCheck {
	return func(_ context.Context) error {
		if toolbox == nil {
			return errors.New("dataset is not loaded")
		}
		if _, ok := toolbox.Lookup(tools.QueryDataTool); !ok {
			return errors.New("query tool is not registered")
		}
		return nil
	}
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CheckDatabase reports the dataset's source database as unreachable.
func CheckDatabase(db Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("dataset database: %w", err)
		}
		return nil
	}
}

// CheckObject reports the dataset object as missing or the store as
// unreachable.
func CheckObject(store storage.ObjectStore, key string) ReadinessCheck {
	return func(ctx context.Context) error {
		if _, err := store.Stat(ctx, key); err != nil {
			return fmt.Errorf("dataset object: %w", err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
