package websocketadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	eventsv1 "parley/contracts/gen/events/v1"
	domainerrors "parley/contexts/meeting-collaboration/realtime-coordinator/domain/errors"
)

const (
	defaultSendBuffer      = 64
	defaultWriteTimeout    = 10 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultMaxMessageBytes = 64 << 10
	defaultRateLimit       = 20
	defaultRateBurst       = 40
)

type Options struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	RateLimit       float64
	RateBurst       int
	Logger          *slog.Logger
}

// Conn adapts a gorilla websocket to the coordinator's connection port.
// Outgoing frames go through a bounded FIFO drained by WritePump, so Send
// never blocks the broadcaster.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger

	closeOnce sync.Once
}

func NewConn(id string, ws *websocket.Conn, opts Options) *Conn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = defaultRateBurst
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		opts:    opts,
		logger:  logger,
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Send(event eventsv1.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

// Reply queues a frame addressed to this connection only. It shares the FIFO
// with broadcasts so a reply never overtakes an earlier event.
func (c *Conn) Reply(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

// Allow reports whether another inbound message fits the connection's rate.
func (c *Conn) Allow() bool {
	return c.limiter.Allow()
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) enqueue(payload []byte) error {
	select {
	case <-c.done:
		return domainerrors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return domainerrors.ErrSlowConsumer
	}
}

// WritePump drains the send queue and keeps the peer alive with pings. It
// returns once the connection is closed or a write fails, closing the socket.
func (c *Conn) WritePump() error {
	ticker := time.NewTicker(c.opts.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteTimeout),
			)
			return nil
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ReadPump hands every inbound text frame to handle, one at a time, until the
// peer goes away or ctx ends.
func (c *Conn) ReadPump(ctx context.Context, handle func(ctx context.Context, message []byte)) error {
	defer func() {
		_ = c.Close()
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
			}
			c.logger.Debug("websocket read ended",
				"event", "realtime_ws_read_ended",
				"module", "meeting-collaboration/realtime-coordinator",
				"layer", "adapter",
				"conn_id", c.id,
				"error", err.Error(),
			)
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(ctx, message)
	}
}
