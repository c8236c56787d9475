package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

type ClientConfig struct {
	URL          string
	DialTimeout  time.Duration
	Headers      http.Header
	PingInterval time.Duration
	OnText       func(data []byte) error
	OnBinary     func(data []byte) error
	// OnClose is called once when the peer or the network ends the
	// connection. It is not called after a local Close.
	OnClose func(reason string, err error)
	Logger  *slog.Logger
}

// Client owns a client side websocket. All writes go through a single writer
// goroutine, all reads through a single reader goroutine which invokes the
// handlers inline and in arrival order.
type Client struct {
	conn    net.Conn
	out     chan wsutil.Message
	done    chan struct{}
	once    sync.Once
	closing atomic.Bool
	onClose func(reason string, err error)
	logger  *slog.Logger
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) error {
	return c.Write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) error {
	return c.Write(ws.OpPing, data)
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a normal closure frame and waits for the peer to answer or ctx
// to expire, then tears the socket down. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closing.Store(true)

	select {
	case <-c.done:
		return nil
	default:
	}

	if err := c.Write(ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing")); err != nil {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.finish("", nil)
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) finish(reason string, err error) {
	first := false
	c.once.Do(func() {
		first = true
		close(c.done)
		_ = c.conn.Close()
	})
	if !first || c.closing.Load() {
		return
	}

	c.logger.Debug("websocket closed", slog.String("reason", reason), slog.Any("err", err))
	if c.onClose != nil {
		c.onClose(reason, err)
	}
}

// Connect dials config.URL. ctx bounds the dial only; the connection lives
// until Close or until the peer goes away.
func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "websocket"))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, br, _, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("connected to websocket")

	// br holds frames that arrived together with the handshake response.
	var src io.Reader = conn
	if br != nil {
		src = br
	}

	client := &Client{
		conn:    conn,
		out:     make(chan wsutil.Message, 1000),
		done:    make(chan struct{}),
		onClose: config.OnClose,
		logger:  logger,
	}

	onText := config.OnText
	if onText == nil {
		onText = func([]byte) error { return nil }
	}
	onBinary := config.OnBinary
	if onBinary == nil {
		onBinary = onText
	}

	go client.writeLoop(config.PingInterval)
	go client.readLoop(src, onText, onBinary)

	return client, nil
}

func (c *Client) writeLoop(pingInterval time.Duration) {
	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		var msg wsutil.Message
		select {
		case <-c.done:
			return
		case <-tick:
			msg = wsutil.Message{OpCode: ws.OpPing, Payload: []byte("ping")}
		case msg = <-c.out:
		}

		if err := wsutil.WriteClientMessage(c.conn, msg.OpCode, msg.Payload); err != nil {
			c.finish("Connection lost", err)
			return
		}
	}
}

func (c *Client) readLoop(src io.Reader, onText, onBinary func([]byte) error) {
	for {
		messages, err := wsutil.ReadServerMessage(src, nil)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.finish("Connection closed", nil)
				return
			}
			c.finish("Connection lost", err)
			return
		}

		for _, msg := range messages {
			switch msg.OpCode {
			case ws.OpPing:
				_ = c.Write(ws.OpPong, msg.Payload)
			case ws.OpPong:
			case ws.OpClose:
				code, reason := ws.ParseCloseFrameData(msg.Payload)
				c.finish(fmt.Sprintf("Connection closed (code %d: %s)", code, reason), nil)
				return
			case ws.OpText:
				if err := onText(msg.Payload); err != nil {
					c.logger.Error("text message handler failed", slog.Any("err", err))
				}
			case ws.OpBinary:
				if err := onBinary(msg.Payload); err != nil {
					c.logger.Error("binary message handler failed", slog.Any("err", err))
				}
			}
		}
	}
}
