package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"dtreewatch/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
	// Command lines are short; longer frames close the connection.
	wsMaxMessageSize = 4096
)

type wsError struct {
	Status    int
	CloseCode int
	Message   string
	Err       error
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(payload)
}

func (c *wsConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(wsWriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, truncateCloseReason(reason)), deadline)
	_ = c.conn.Close()
}

func requireWSToken(w http.ResponseWriter, r *http.Request, token string, logger *logging.Logger) bool {
	if validateToken(r, token) {
		return true
	}
	writeWSError(w, r, logger, wsError{Status: http.StatusUnauthorized, Message: "unauthorized"})
	return false
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowedOrigins)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// writeWSError answers a request that was never upgraded.
func writeWSError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, wsErr wsError) {
	if wsErr.Status == 0 {
		wsErr.Status = http.StatusInternalServerError
	}
	wsErr.Message = strings.TrimSpace(wsErr.Message)
	if wsErr.Message == "" {
		wsErr.Message = http.StatusText(wsErr.Status)
	}
	logWSError(logger, r, wsErr)
	http.Error(w, wsErr.Message, wsErr.Status)
}

func logWSError(logger *logging.Logger, r *http.Request, wsErr wsError) {
	if logger == nil || r == nil {
		return
	}
	fields := map[string]string{
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
		"status":      strconv.Itoa(wsErr.Status),
		"close_code":  strconv.Itoa(wsErr.closeCode()),
		"message":     wsErr.Message,
	}
	if wsErr.Err != nil {
		fields["error"] = wsErr.Err.Error()
	}
	if wsErr.Status >= http.StatusInternalServerError {
		logger.Error("console websocket error", fields)
		return
	}
	logger.Warn("console websocket error", fields)
}

func (wsErr wsError) closeCode() int {
	if wsErr.CloseCode != 0 {
		return wsErr.CloseCode
	}
	switch wsErr.Status {
	case http.StatusBadRequest:
		return websocket.CloseProtocolError
	case http.StatusServiceUnavailable:
		return websocket.CloseTryAgainLater
	}
	if wsErr.Status >= http.StatusInternalServerError {
		return websocket.CloseInternalServerErr
	}
	return websocket.ClosePolicyViolation
}

// truncateCloseReason keeps a close frame within the 125 byte control frame
// limit.
func truncateCloseReason(reason string) string {
	const maxReasonBytes = 123
	if len(reason) <= maxReasonBytes {
		return reason
	}
	return reason[:maxReasonBytes]
}
