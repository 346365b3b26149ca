package handler

import (
	"net/http"

	"roadstream/internal/logger"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AlertHub tracks alert subscribers. *websocket.HubService implements it.
type AlertHub interface {
	Register(conn *websocket.Conn) bool
	Unregister(conn *websocket.Conn)
}

// AlertsWebsocketHandler subscribes a viewer to live alert events. The
// connection stays registered until the viewer goes away.
func AlertsWebsocketHandler(hub AlertHub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		if !hub.Register(connection) {
			connection.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			connection.Close()
			return
		}
		defer hub.Unregister(connection)

		logger.Info("Alert subscriber connected from %s", r.RemoteAddr)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Alert subscriber disconnected normally")
				} else {
					logger.Warning("Alert subscriber disconnected: %v", err)
				}
				return
			}
		}
	}
}
