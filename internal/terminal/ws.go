package terminal

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: implement proper origin checking
		return true
	},
}

// clientFrame is a client-to-server message.
type clientFrame struct {
	Type string `json:"type"` // input, resize
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// Client is one WebSocket connection attached to a session.
type Client struct {
	session *Session
	conn    *websocket.Conn
	send    chan []byte
}

// ServeWS upgrades the request and attaches the connection to the session.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request, sessionID string) {
	session := r.Get(sessionID)
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Error("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}

	client := &Client{
		session: session,
		conn:    conn,
		send:    make(chan []byte, 256),
	}
	session.attach(client)
	go client.writePump()
	go client.readPump()
}

// enqueue hands a frame to the write pump, dropping it if the client has
// fallen too far behind.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

// readPump parses client frames until the connection drops. A frame that
// fails to parse gets an error frame back; the connection stays open.
func (c *Client) readPump() {
	defer func() {
		c.session.detach(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.enqueue(encodeFrame(Frame{Type: "error", Data: "malformed frame"}))
			continue
		}
		switch frame.Type {
		case "input":
			c.session.HandleInput(frame.Data)
		case "resize":
			c.session.Resize(frame.Cols, frame.Rows)
		default:
			c.enqueue(encodeFrame(Frame{Type: "error", Data: "unknown frame type: " + frame.Type}))
		}
	}
}

// writePump forwards queued frames to the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
