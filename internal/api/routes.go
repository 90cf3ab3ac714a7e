package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dtreewatch/internal/logging"
	"dtreewatch/internal/metrics"
	"dtreewatch/internal/version"
)

// Status is the JSON body of /api/status.
type Status struct {
	Entries     int      `json:"entries"`
	ActiveRoots []string `json:"active_roots"`
	Reads       int      `json:"reads"`
	Rebuilds    int      `json:"rebuilds"`
	Overflows   int      `json:"overflows"`
	Version     string   `json:"version"`
}

// StatusFunc collects a Status snapshot from the engine.
type StatusFunc func(ctx context.Context) (Status, error)

type Options struct {
	Executor       Executor
	Status         StatusFunc
	Metrics        *metrics.Registry
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

const statusTimeout = 5 * time.Second

// NewHandler returns the HTTP surface of the watcher: the websocket console,
// the status endpoint and Prometheus metrics.
func NewHandler(options Options) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws/console", &ConsoleHandler{
		Executor:       options.Executor,
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	})
	mux.Handle("/metrics", requireToken(options.AuthToken, options.Metrics.Handler()))
	mux.Handle("/api/status", requireToken(options.AuthToken, statusHandler(options.Status)))
	return loggingMiddleware(options.Logger, mux)
}

func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !validateToken(r, token) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusHandler(status StatusFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		if status == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "status unavailable"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()
		snapshot, err := status(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		snapshot.Version = version.Version
		writeJSON(w, http.StatusOK, snapshot)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("api request", map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r)
	})
}
