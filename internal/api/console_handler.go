package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dtreewatch/internal/logging"
	"dtreewatch/internal/watcher"

	"github.com/gorilla/websocket"
)

// Executor runs one operator command line and returns its output.
type Executor interface {
	Exec(ctx context.Context, line string) (string, error)
}

const consoleCommandTimeout = 30 * time.Second

type consoleOutputPayload struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

type consoleLogPayload struct {
	Type  string           `json:"type"`
	Entry logging.LogEntry `json:"entry"`
}

// ConsoleHandler serves the operator console over a websocket. Each text
// frame from the client is one command line; replies and log entries are
// sent back as JSON frames.
type ConsoleHandler struct {
	Executor       Executor
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *ConsoleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Executor == nil {
		writeWSError(w, r, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "console unavailable",
		})
		return
	}

	raw, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	raw.SetReadLimit(wsMaxMessageSize)
	conn := &wsConn{conn: raw}

	h.Logger.Info("console client connected", map[string]string{
		"remote_addr": r.RemoteAddr,
	})
	defer h.Logger.Info("console client disconnected", map[string]string{
		"remote_addr": r.RemoteAddr,
	})

	entries, cancel := h.Logger.Subscribe()
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	if entries != nil {
		go forwardLogEntries(conn, entries, done)
	}

	for {
		messageType, message, err := raw.ReadMessage()
		if err != nil {
			_ = raw.Close()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		line := string(message)
		ctx, cancelCommand := context.WithTimeout(r.Context(), consoleCommandTimeout)
		output, execErr := h.Executor.Exec(ctx, line)
		cancelCommand()

		payload := consoleOutputPayload{Type: "output", Command: line, Output: output}
		if execErr != nil {
			payload.Error = execErr.Error()
		}
		if err := conn.WriteJSON(payload); err != nil {
			_ = raw.Close()
			return
		}
		if errors.Is(execErr, watcher.ErrStopped) {
			conn.Close(websocket.CloseGoingAway, "engine stopped")
			return
		}
	}
}

func forwardLogEntries(conn *wsConn, entries <-chan logging.LogEntry, done <-chan struct{}) {
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := conn.WriteJSON(consoleLogPayload{Type: "log", Entry: entry}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
