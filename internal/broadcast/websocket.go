package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// heartbeatInterval paces server-side keepalive pings.
const heartbeatInterval = 30 * time.Second

// WebSocketHandler upgrades dashboard connections and relays hub events.
type WebSocketHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a dashboard WebSocket handler.
func NewWebSocketHandler(hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Dashboard connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "dashboard disconnected"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	if err := h.writeEvent(ctx, ws, domain.NewEvent(domain.EventConnected, map[string]string{
		"message": "Connected to TerraMind",
	})); err != nil {
		return
	}

	// Read loop: answer client pings, detect disconnect.
	go func() {
		defer cancel()
		h.readLoop(ctx, ws)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			if err := h.writeEvent(ctx, ws, event); err != nil {
				slog.Debug("Dashboard write failed", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				slog.Debug("Dashboard heartbeat failed", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Dashboard closed by client")
			}
			return
		}
		if string(message) == "ping" {
			if err := ws.Write(ctx, websocket.MessageText, []byte("pong")); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeEvent(ctx context.Context, ws *websocket.Conn, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
