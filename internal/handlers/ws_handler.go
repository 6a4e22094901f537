package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/realtime"
)

// SocketServer upgrades and serves websocket connections.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, token string, channel realtime.Channel)
}

type WSHandler struct {
	hub SocketServer
}

func NewWSHandler(hub SocketServer) *WSHandler {
	return &WSHandler{hub: hub}
}

// RegisterWSRoutes mounts the sockets. The token may be a path segment or
// the ?token= query parameter.
func (h *WSHandler) RegisterWSRoutes(e *echo.Echo) {
	e.GET("/ws/messenger/:token", h.serve(realtime.ChannelMessenger))
	e.GET("/ws/messenger", h.serve(realtime.ChannelMessenger))
	e.GET("/ws/notifications/:token", h.serve(realtime.ChannelNotifications))
	e.GET("/ws/notifications", h.serve(realtime.ChannelNotifications))
}

func (h *WSHandler) serve(channel realtime.Channel) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.Param("token")
		if token == "" {
			token = c.QueryParam("token")
		}
		h.hub.ServeWS(c.Response(), c.Request(), token, channel)
		return nil
	}
}
