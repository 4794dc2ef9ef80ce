package services

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 10 * time.Second
	wsReadWait     = 60 * time.Second
	wsReadLimit    = 1 << 20
)

// WSClient is one browser tab waiting for save notifications. Events are
// queued on send; a full queue drops the client rather than blocking a save.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (c *WSClient) writeLoop() {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only consumes pongs and close frames; clients never send data.
func (c *WSClient) readPump(onDone func()) {
	defer onDone()

	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
