package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mediconnect-backend/internal/domain"
	apperrors "mediconnect-backend/pkg/errors"
	"mediconnect-backend/pkg/logger"
)

const maxResubscribeBackoff = 5 * time.Second

// frame is one mailbox message as the hub sends it
type frame struct {
	Type string `json:"type"`
	domain.Snapshot
}

func (c *Client) mailboxURL(appointmentID string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + appointmentPath(appointmentID, "/mailbox/ws")
}

func (c *Client) dial(ctx context.Context, appointmentID string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.DialContext(ctx, c.mailboxURL(appointmentID), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if errors.Is(err, websocket.ErrBadHandshake) {
				return nil, decodeEnvelope(resp, nil)
			}
		}
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodeServiceUnavail, "Mailbox stream unreachable", http.StatusServiceUnavailable, err)
	}
	return conn, nil
}

// subscription owns the current stream connection and reopens it when the
// service drops it. Every reopened stream starts with the current snapshot.
type subscription struct {
	client        *Client
	appointmentID string
	fn            func(domain.Snapshot)
	ctx           context.Context
	cancel        context.CancelFunc
	stopped       atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

// Subscribe opens the mailbox stream. fn runs on one goroutine so calls
// never overlap. Cancelling stops delivery, though a call already underway
// may still finish.
func (c *Client) Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error) {
	conn, err := c.dial(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client:        c,
		appointmentID: appointmentID,
		fn:            fn,
		ctx:           subCtx,
		cancel:        cancel,
		conn:          conn,
	}
	go s.run(conn)
	go func() {
		<-subCtx.Done()
		s.stop()
	}()
	return s.stop, nil
}

func (s *subscription) stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (s *subscription) run(conn *websocket.Conn) {
	log := logger.FromContext(s.ctx).With(zap.String("appointment_id", s.appointmentID))
	backoff := s.client.backoff

	for {
		err := s.read(conn)
		if s.stopped.Load() {
			return
		}
		log.Warn("Mailbox stream dropped, resubscribing", zap.Error(err))

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxResubscribeBackoff {
				backoff = maxResubscribeBackoff
			}

			next, err := s.client.dial(s.ctx, s.appointmentID)
			if err == nil {
				if !s.adopt(next) {
					return
				}
				conn = next
				backoff = s.client.backoff
				break
			}
			// losing access to the appointment will not heal on retry
			if apperrors.HasCode(err, apperrors.ErrCodeNotParticipant) || apperrors.HasCode(err, apperrors.ErrCodeAppointmentNotFound) {
				log.Warn("Mailbox stream closed by service", zap.Error(err))
				return
			}
			log.Debug("Mailbox resubscribe failed", zap.Error(err))
		}
	}
}

// adopt installs a reopened connection unless the subscription stopped
func (s *subscription) adopt(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		_ = conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *subscription) read(conn *websocket.Conn) error {
	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read mailbox frame: %w", err)
		}
		if msg.Type != "snapshot" {
			continue
		}
		if msg.AppointmentID == "" {
			msg.AppointmentID = s.appointmentID
		}
		if s.stopped.Load() {
			return nil
		}
		s.fn(msg.Snapshot)
	}
}
