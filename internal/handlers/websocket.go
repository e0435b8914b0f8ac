package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/middleware"
	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/signaling"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Presence records which staff are online, typically across instances.
type Presence interface {
	Join(ctx context.Context, staff models.OnlineStaff) error
	Leave(ctx context.Context, connID string) error
	Members(ctx context.Context) ([]models.OnlineStaff, error)
}

// Client represents a WebSocket client connection. It is the outbox the hub
// delivers to; a client whose buffer is full is closed rather than blocking
// the hub.
type Client struct {
	ID   string
	Conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *zap.Logger
}

func newClient(id string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:   id,
		Conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  logger.WithModule("websocket").With(zap.String("conn_id", id)),
	}
}

// Enqueue queues data for the write pump without blocking.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("send buffer full, closing connection")
		c.Close()
		return false
	}
}

// Close stops the write pump, which closes the socket and in turn ends the
// read pump. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SocketHandler upgrades visitor and staff connections and pumps frames
// between them and the hub.
type SocketHandler struct {
	hub        *signaling.Hub
	presence   Presence
	sendBuffer int
	log        *zap.Logger
}

// NewSocketHandler builds a SocketHandler. presence may be nil.
func NewSocketHandler(hub *signaling.Hub, sendBuffer int, presence Presence) *SocketHandler {
	return &SocketHandler{
		hub:        hub,
		presence:   presence,
		sendBuffer: sendBuffer,
		log:        logger.WithModule("websocket"),
	}
}

// Visitor handles anonymous visitor connections.
func (h *SocketHandler) Visitor(c *gin.Context) {
	h.serve(c, models.RoleVisitor, models.Identity{})
}

// Staff handles connections authenticated by middleware.JWTAuth.
func (h *SocketHandler) Staff(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	h.serve(c, models.RoleStaff, models.Identity{
		UserID:     claims.UserID,
		Name:       claims.Name,
		Department: claims.Department,
	})
}

func (h *SocketHandler) serve(c *gin.Context, role models.Role, identity models.Identity) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.String("role", string(role)), zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), ws, h.sendBuffer)
	conn, err := h.hub.Connect(client.ID, role, identity, client)
	if err != nil {
		h.log.Error("failed to register connection", zap.String("conn_id", client.ID), zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registration failed"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}
	middleware.MarkConnection(c, conn.ID, string(role))

	if role == models.RoleStaff && h.presence != nil {
		staff := models.OnlineStaff{ConnID: conn.ID, Identity: identity, ConnectedAt: conn.ConnectedAt}
		if err := h.presence.Join(context.Background(), staff); err != nil {
			h.log.Warn("presence join failed", zap.String("conn_id", conn.ID), zap.Error(err))
		}
	}

	go client.writePump()
	go h.readPump(client, role)
}

func (h *SocketHandler) readPump(c *Client, role models.Role) {
	defer func() {
		h.hub.Disconnect(c.ID)
		if role == models.RoleStaff && h.presence != nil {
			if err := h.presence.Leave(context.Background(), c.ID); err != nil {
				h.log.Warn("presence leave failed", zap.String("conn_id", c.ID), zap.Error(err))
			}
		}
		c.Close()
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		h.hub.Handle(ctx, c.ID, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("failed to write message", zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
