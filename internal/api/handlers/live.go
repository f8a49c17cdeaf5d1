package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
	"github.com/offersplus/backend/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = 30 * time.Second

	maxMessageSize = 4096

	// Pending states per client. A slow client only ever sees the newest.
	sendBuffer = 4
)

// LiveMessage is a command sent by a live view client.
type LiveMessage struct {
	Type      string               `json:"type"`
	Filters   *session.FilterPatch `json:"filters,omitempty"`
	Page      int                  `json:"page,omitempty"`
	PageSize  int                  `json:"pageSize,omitempty"`
	SortBy    string               `json:"sortBy,omitempty"`
	SortOrder string               `json:"sortOrder,omitempty"`
}

// ServerMessage is pushed to a live view client.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// LiveHandler serves live filtered views over websockets. Each connection
// owns one session.Controller.
type LiveHandler struct {
	fetcher  session.Fetcher
	opts     session.Options
	upgrader websocket.Upgrader
	baseCtx  context.Context
}

// NewLiveHandler returns a handler whose sessions live no longer than
// base. checkOrigin may be nil to accept same-origin requests only.
func NewLiveHandler(base context.Context, f session.Fetcher, opts session.Options, checkOrigin func(*http.Request) bool) *LiveHandler {
	if base == nil {
		base = context.Background()
	}
	return &LiveHandler{
		fetcher: f,
		opts:    opts,
		baseCtx: base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type liveClient struct {
	conn *websocket.Conn
	ctl  *session.Controller
	send chan []byte
	done chan struct{}
}

// enqueue queues data for the writer, dropping the oldest pending message
// when the buffer is full.
func (c *liveClient) enqueue(data []byte) {
	for {
		select {
		case <-c.done:
			return
		case c.send <- data:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *liveClient) push(msgType string, payload any) {
	data, err := json.Marshal(ServerMessage{Type: msgType, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *liveClient) pushError(message string) {
	c.push("error", map[string]string{"message": message})
}

// ServeHTTP handles GET /api/h1b/live.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx := context.WithValue(h.baseCtx, logger.SessionIDKey, uuid.NewString())
	c := &liveClient{
		conn: conn,
		ctl:  session.NewController(ctx, h.fetcher, h.opts),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	metrics.LiveSessions.Inc()
	logger.InfoContext(ctx, "live session opened", "remote", r.RemoteAddr)

	// Hijacked connections outlive http.Server.Shutdown; close them with base.
	stop := context.AfterFunc(h.baseCtx, func() { conn.Close() })
	defer stop()

	remove := c.ctl.OnChange(func(s session.State) { c.push("state", s) })
	c.push("state", c.ctl.State())
	c.ctl.Refresh()

	go c.writePump()
	c.readPump(ctx)

	remove()
	c.ctl.Close()
	close(c.done)
	metrics.LiveSessions.Dec()
	logger.InfoContext(ctx, "live session closed")
}

func (c *liveClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "live session unexpected close", "error", err)
			}
			return
		}
		var msg LiveMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.pushError("invalid message: " + err.Error())
			continue
		}
		c.apply(msg)
	}
}

func (c *liveClient) apply(msg LiveMessage) {
	switch msg.Type {
	case "filters":
		if msg.Filters == nil {
			c.pushError("filters message requires filters")
			return
		}
		c.ctl.UpdateFilters(*msg.Filters)
	case "clear":
		c.ctl.ClearFilters()
	case "page":
		c.ctl.SetPage(msg.Page)
	case "pageSize":
		c.ctl.SetPageSize(msg.PageSize)
	case "sort":
		c.ctl.SetSort(msg.SortBy, msg.SortOrder)
	case "refresh":
		c.ctl.Refresh()
	default:
		c.pushError("unknown message type: " + msg.Type)
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
