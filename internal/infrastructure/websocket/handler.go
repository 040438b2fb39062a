package websocket

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests onto the progress-stream connection,
// gating each upgrade on an Authenticator before handing the socket to a
// Client.
type Handler struct {
	hub    *Hub
	auth   Authenticator
	logger *slog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Warn("websocket authentication failed", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, subject, h.hub, conn)

	h.logger.Info("websocket client connected", "client_id", clientID, "subject", subject, "remote_addr", r.RemoteAddr)

	h.hub.register <- client

	if execID := r.URL.Query().Get("execution_id"); execID != "" {
		h.hub.Subscribe(client, execID)
	}

	go client.writePump()
	go client.readPump()
}

// SetCheckOrigin overrides the upgrader's origin check.
func SetCheckOrigin(f func(r *http.Request) bool) {
	upgrader.CheckOrigin = f
}

// SetBufferSizes overrides the upgrader's read/write buffer sizes.
func SetBufferSizes(readSize, writeSize int) {
	upgrader.ReadBufferSize = readSize
	upgrader.WriteBufferSize = writeSize
}
