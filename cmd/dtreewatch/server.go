package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"dtreewatch/internal/api"
	"dtreewatch/internal/config"
	"dtreewatch/internal/logging"
	"dtreewatch/internal/metrics"
	"dtreewatch/internal/watcher"
)

const serverShutdownTimeout = 5 * time.Second

// startHTTPServer serves the remote console, status and metrics on
// settings.Listen. The returned func shuts the server down.
func startHTTPServer(ctx context.Context, settings config.Settings, executor api.Executor, engine *watcher.Engine, registry *metrics.Registry, logger *logging.Logger) (func(), error) {
	listener, err := net.Listen("tcp", settings.Listen)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(api.Options{
		Executor:       executor,
		Status:         engineStatus(engine),
		Metrics:        registry,
		Logger:         logger,
		AuthToken:      settings.Token,
		AllowedOrigins: settings.AllowedOrigins,
	})
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.Info("dtreewatch listening", map[string]string{
		"addr": listener.Addr().String(),
	})
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", map[string]string{
				"error": err.Error(),
			})
			_ = server.Close()
		}
		<-served
	}, nil
}

func engineStatus(engine *watcher.Engine) api.StatusFunc {
	return func(ctx context.Context) (api.Status, error) {
		var status api.Status
		err := engine.Do(ctx, func(engine *watcher.Engine) error {
			stats := engine.Stats()
			status = api.Status{
				Entries:     stats.Entries,
				ActiveRoots: engine.Roots().Active(),
				Reads:       stats.Reads,
				Rebuilds:    stats.Rebuilds,
				Overflows:   stats.Overflows,
			}
			return nil
		})
		return status, err
	}
}
