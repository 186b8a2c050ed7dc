package broadcast

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnConfig tunes a websocket observer.
//   - SendBuffer: queued messages before the observer counts as slow (default 64).
//   - PingInterval: heartbeat period (default 5s).
//   - WriteTimeout: deadline for one frame write (default 10s).
//   - MaxMessageSize: largest inbound frame accepted (default 4KiB).
type ConnConfig struct {
	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	Logger         *zap.Logger
}

func (c *ConnConfig) setDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Conn is an Observer over a gorilla websocket. A single writer goroutine
// owns all writes; Send only enqueues.
type Conn struct {
	id     string
	ws     *websocket.Conn
	cfg    ConnConfig
	logger *zap.Logger

	out       chan []byte
	done      chan struct{}
	written   chan struct{}
	closeOnce sync.Once
	closeCode atomic.Int32
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn, cfg ConnConfig) *Conn {
	cfg.setDefaults()
	id := uuid.NewString()
	c := &Conn{
		id:      id,
		ws:      ws,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("observer", id)),
		out:     make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
	c.closeCode.Store(websocket.CloseNormalClosure)
	return c
}

// ID implements Observer.
func (c *Conn) ID() string { return c.id }

// Send enqueues msg without blocking.
func (c *Conn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowObserver
	}
}

// Close stops the writer with a normal closure. It is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Shutdown closes the connection telling the client the server is going away.
func (c *Conn) Shutdown() {
	c.closeCode.Store(websocket.CloseGoingAway)
	_ = c.Close()
}

// Done is closed once the observer is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Serve runs the writer goroutine and the read loop on the calling goroutine.
// It returns when the client disconnects, sends "close", or Close is called.
func (c *Conn) Serve() {
	go c.writeLoop()
	c.readLoop()
	_ = c.Close()
	<-c.written
}

func (c *Conn) readLoop() {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	pongWait := 3 * c.cfg.PingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("observer read failed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind == websocket.TextMessage && strings.TrimSpace(string(data)) == "close" {
			c.logger.Debug("observer asked to close")
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.written)
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	defer func() { _ = c.ws.Close() }()
	for {
		select {
		case msg := <-c.out:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("observer write failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("observer ping failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-c.done:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			payload := websocket.FormatCloseMessage(int(c.closeCode.Load()), "")
			_ = c.ws.WriteControl(websocket.CloseMessage, payload, deadline)
			return
		}
	}
}

func (c *Conn) write(kind int, msg []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, msg)
}
