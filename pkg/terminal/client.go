package terminal

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"
)

func getWriteWait() time.Duration {
	return configuration.GetDuration("Terminal", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Terminal", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Terminal", "max_message_size_kb", 64) * 1024)
}

var newline = []byte{'\n'}

// Client is one websocket connection. Outgoing frames are queued on
// send and written by a single writer goroutine.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	shutdown chan struct{}
	session  *Session
	handler  *Handler
	ip       string
}

// Send queues a frame for delivery, dropping it when the client
// cannot keep up.
func (c *Client) Send(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		logger.Warn(logger.AreaWebSocket, "send buffer full for %s, dropping frame", c.ip)
		return false
	}
}

// Close signals the writer goroutine to stop.
func (c *Client) Close() {
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}
}

// readPump reads frames from the connection and feeds them to the
// session until the connection dies.
func (c *Client) readPump() {
	defer c.handler.cleanupClient(c)

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn(logger.AreaWebSocket, "unexpected close from %s: %v", c.ip, err)
			} else {
				logger.Debug(logger.AreaWebSocket, "connection closed for %s: %v", c.ip, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.session.HandleFrame(message)
	}
}

// writePump writes queued frames and keeps the connection alive with
// pings. It owns all writes on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch whatever else is already queued into this frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case queued := <-c.send:
					w.Write(newline)
					w.Write(queued)
				default:
				}
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug(logger.AreaWebSocket, "ping failed for %s: %v", c.ip, err)
				return
			}

		case <-c.shutdown:
			return
		}
	}
}
