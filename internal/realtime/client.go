package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/anonto42/reviewinn/backend/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256

	inboundRate  = 20
	inboundBurst = 40
)

var clientIDCounter atomic.Uint64

// Client is one websocket connection of an authenticated user.
type Client struct {
	id      uint64
	userID  uint
	channel Channel
	hub     *Hub
	conn    *websocket.Conn
	limiter *rate.Limiter
	log     zerolog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint, channel Channel) *Client {
	id := clientIDCounter.Add(1)
	return &Client{
		id:      id,
		userID:  userID,
		channel: channel,
		hub:     hub,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		log:     hub.log.With().Uint64("client_id", id).Uint("user_id", userID).Str("channel", string(channel)).Logger(),
		send:    make(chan []byte, sendQueueSize),
	}
}

// UserID returns the authenticated owner of the connection.
func (c *Client) UserID() uint { return c.userID }

// enqueue queues a frame without blocking. When the queue is full the oldest
// frame is dropped.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for {
		select {
		case c.send <- frame:
			return true
		default:
		}
		select {
		case <-c.send:
			metrics.WSMessagesDropped.Inc()
		default:
		}
	}
}

// sendFrame marshals v and queues it.
func (c *Client) sendFrame(v interface{}) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal websocket frame")
		return false
	}
	return c.enqueue(b)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// shutdown sends a going-away close frame and drops the socket. The read
// pump then fails and unregisters the client.
func (c *Client) shutdown() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
	c.close()
	_ = c.conn.Close()
}

// readPump processes inbound frames serially until the connection drops.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.sendFrame(errorFrame("rate limit exceeded"))
			continue
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendFrame(errorFrame("invalid frame"))
			continue
		}
		c.hub.dispatch(ctx, c, in)
	}
}

// writePump drains the queue to the socket and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
