package services

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func (a *Api) WsUpgrade() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Notifications registers a client for save outcome events. The client id in
// the path is the same id the UI passes as clientId on /generate.
func (a *Api) Notifications() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {

		clientId := strings.TrimSpace(conn.Params("id"))
		if clientId == "" {
			conn.WriteMessage(websocket.CloseMessage, []byte("missing client id"))
			conn.Close()
			return
		}

		client := &WSClient{
			id:   clientId,
			conn: conn,
			send: make(chan []byte, 16),
		}
		a.hub.Add(client)

		go client.writeLoop()
		client.readPump(func() {
			a.hub.Remove(clientId)
		})
	})
}
