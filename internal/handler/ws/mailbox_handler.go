package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/internal/service/appointment"
	"mediconnect-backend/pkg/constants"
	apperrors "mediconnect-backend/pkg/errors"
	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/metrics"
	"mediconnect-backend/pkg/response"
)

// MessageTypeSnapshot tags every frame the hub sends
const MessageTypeSnapshot = "snapshot"

// MailboxMessage is one mailbox snapshot frame
type MailboxMessage struct {
	Type string `json:"type"`
	domain.Snapshot
	Timestamp time.Time `json:"timestamp"`
}

// MailboxHub streams signaling mailbox snapshots to call participants
// over WebSocket. Each client owns one appointment subscription.
type MailboxHub struct {
	service  *appointment.Service
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*MailboxClient]bool

	register   chan *MailboxClient
	unregister chan *MailboxClient
	done       chan struct{}
	stopOnce   sync.Once

	maxConnections int
	semaphore      chan struct{}
}

// MailboxClient is one subscribed WebSocket connection
type MailboxClient struct {
	hub           *MailboxHub
	conn          *websocket.Conn
	send          chan []byte
	userID        string
	appointmentID string
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewMailboxHub creates the hub and starts its registry loop. Requests
// carrying an Origin header must match allowedOrigins; non-browser
// clients send none and authenticate with their bearer token alone.
func NewMailboxHub(service *appointment.Service, m *metrics.Metrics, allowedOrigins []string, maxConnections int) *MailboxHub {
	if maxConnections <= 0 {
		maxConnections = constants.WebSocketMaxConnections
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	h := &MailboxHub{
		service: service,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins[origin]
			},
		},
		clients:        make(map[string]map[*MailboxClient]bool),
		register:       make(chan *MailboxClient),
		unregister:     make(chan *MailboxClient),
		done:           make(chan struct{}),
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
	}

	go h.run()

	return h
}

func (h *MailboxHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.appointmentID] == nil {
				h.clients[client.appointmentID] = make(map[*MailboxClient]bool)
			}
			h.clients[client.appointmentID][client] = true
			h.mu.Unlock()
			h.metrics.AddWebSocketConnections(1)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.appointmentID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					client.cancel()
					<-h.semaphore
					h.metrics.AddWebSocketConnections(-1)
					if len(clients) == 0 {
						delete(h.clients, client.appointmentID)
					}
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					client.cancel()
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// Connections reports how many clients watch appointmentID
func (h *MailboxHub) Connections(appointmentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[appointmentID])
}

// Shutdown closes every connection and stops the hub
func (h *MailboxHub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ServeWS upgrades a participant and streams the appointment's mailbox
// GET /v1/appointments/:id/mailbox/ws
func (h *MailboxHub) ServeWS(c *gin.Context) {
	select {
	case <-h.done:
		response.Error(c, http.StatusServiceUnavailable, string(apperrors.ErrCodeServiceUnavail), "Server shutting down")
		return
	default:
	}

	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	appointmentID := c.Param("id")

	// Reject strangers before upgrading so they see a normal HTTP error
	if _, err := h.service.Get(c.Request.Context(), appointmentID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.Error(c, http.StatusServiceUnavailable, string(apperrors.ErrCodeServiceUnavail), "Server at capacity, please try again later")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("appointment_id", appointmentID),
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(logger.WithAppointmentID(context.Background(), appointmentID))
	client := &MailboxClient{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, constants.WebSocketSendBuffer),
		userID:        userID,
		appointmentID: appointmentID,
		ctx:           ctx,
		cancel:        cancel,
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		<-h.semaphore
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	stop, err := h.service.Watch(ctx, appointmentID, userID, client.deliver)
	if err != nil {
		logger.Warn("Mailbox subscription failed",
			zap.String("appointment_id", appointmentID),
			zap.String("user_id", userID),
			zap.Error(err))
		client.close()
		return
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
}

// deliver queues a snapshot; a client that cannot keep up is dropped
func (c *MailboxClient) deliver(snap domain.Snapshot) {
	payload, err := json.Marshal(MailboxMessage{
		Type:      MessageTypeSnapshot,
		Snapshot:  snap,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to encode mailbox snapshot", zap.Error(err))
		return
	}

	select {
	case <-c.ctx.Done():
	case c.send <- payload:
		c.hub.metrics.RecordWebSocketMessage("out")
	default:
		logger.Warn("Mailbox subscriber too slow, disconnecting",
			zap.String("appointment_id", c.appointmentID),
			zap.String("user_id", c.userID))
		c.close()
	}
}

func (c *MailboxClient) close() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
		c.cancel()
	}
}

// readPump only services control frames; clients never write to the mailbox
// over this socket
func (c *MailboxClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("appointment_id", c.appointmentID),
					zap.String("user_id", c.userID),
					zap.Error(err))
			}
			return
		}
		c.hub.metrics.RecordWebSocketMessage("in")
	}
}

func (c *MailboxClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
