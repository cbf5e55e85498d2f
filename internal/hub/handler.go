package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"barber-booking-api/internal/metrics"
	"barber-booking-api/internal/relay"
)

var ErrRateLimited = errors.New("too many requests")

type Options struct {
	// AllowedOrigins restricts the Origin header; empty allows any origin.
	AllowedOrigins []string
	// InvokeRate and InvokeBurst bound SendBookingUpdate calls per connection.
	InvokeRate  float64
	InvokeBurst int
}

// Handler upgrades requests on the booking hub endpoint and runs one client
// per connection until it goes away.
type Handler struct {
	relay    *relay.Relay
	log      *zap.Logger
	upgrader websocket.Upgrader
	rps      rate.Limit
	burst    int
}

func NewHandler(r *relay.Relay, log *zap.Logger, opts Options) *Handler {
	if opts.InvokeRate <= 0 {
		opts.InvokeRate = 5
	}
	if opts.InvokeBurst <= 0 {
		opts.InvokeBurst = 10
	}
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		relay: r,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		rps:   rate.Limit(opts.InvokeRate),
		burst: opts.InvokeBurst,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		lim:  rate.NewLimiter(h.rps, h.burst),
		log:  h.log,
	}

	reg := h.relay.Registry()
	reg.Add(c)
	metrics.HubConnections.WithLabelValues("ws").Inc()
	h.log.Info("hub client connected", zap.String("client_id", c.id), zap.Int("total", reg.Len()))

	go c.writePump()
	h.readPump(r.Context(), c)

	reg.Remove(c.id)
	c.close()
	metrics.HubConnections.WithLabelValues("ws").Dec()
	h.log.Info("hub client disconnected", zap.String("client_id", c.id))
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("ws read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if stop := h.handleFrame(ctx, c, msg); stop {
			return
		}
	}
}

// handleFrame reports whether the client asked to close.
func (h *Handler) handleFrame(ctx context.Context, c *Client, msg []byte) bool {
	var f inbound
	if err := json.Unmarshal(msg, &f); err != nil {
		h.log.Debug("ws bad frame", zap.String("client_id", c.id), zap.Error(err))
		return false
	}

	switch f.Type {
	case framePing:
		b, _ := json.Marshal(outbound{Type: framePing})
		_ = c.enqueue(b)
	case frameClose:
		return true
	case frameInvocation:
		err := h.invoke(ctx, c, f)
		if err != nil {
			h.log.Debug("ws invocation failed",
				zap.String("client_id", c.id),
				zap.String("target", f.Target),
				zap.Error(err))
		}
		if f.InvocationID != "" {
			b, _ := encodeCompletion(f.InvocationID, err)
			_ = c.enqueue(b)
		}
	}
	return false
}

func (h *Handler) invoke(ctx context.Context, c *Client, f inbound) error {
	if f.Target != relay.MethodSendBookingUpdate {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, f.Target)
	}
	if !c.lim.Allow() {
		metrics.RateLimitExceeded.WithLabelValues("ws").Inc()
		return ErrRateLimited
	}
	u, err := decodeUpdate(f.Arguments)
	if err != nil {
		return err
	}
	return h.relay.SendBookingUpdate(ctx, u)
}
