package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chatmirror/chatmirror/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the read API is open to any origin, so is the event stream
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscribe upgrades the request to a websocket and attaches it to the
// hub. Subscribers receive no replay of missed events; clients
// reconcile through the read API after (re)connecting.
func Subscribe(hub *realtime.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already written the error response
			c.Logger().Warnf("ws: upgrade failed: %v", err)
			return nil
		}
		hub.Register(conn)
		return nil
	}
}
