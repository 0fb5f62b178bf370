package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// websocketHandler handles GET /ws: upgrades the connection and delegates
// to the ConnectionManager. Same-origin requests and non-browser clients
// always pass; cross-origin browsers must match an allowed pattern.
func (s *Server) websocketHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedWSOrigins,
	})
	if err != nil {
		// Accept already wrote the handshake failure response.
		return nil
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connMgr.HandleConnection(c.Request().Context(), conn)
	return nil
}
