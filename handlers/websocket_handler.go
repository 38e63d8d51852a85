package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *pyramid.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler accepts upgrades only from allowedOrigins; "*" allows
// any origin.
func NewWebSocketHandler(hub *pyramid.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowAll || origin == "" {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWs подписывает клиента на живые обновления пирамиды.
// Клиент подключается к /ws/pyramids/{pyramidID}.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой.
		h.logger.Warn("websocket upgrade failed", slog.Int("pyramid_id", pyramidID), slog.Any("error", err))
		return
	}

	client := pyramid.NewClient(h.hub, conn, pyramidID)
	if !h.hub.Subscribe(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	h.logger.Debug("websocket client subscribed", slog.String("room", client.Room()))
}
