package voicebridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/voicebridge-go/events"
	"github.com/codewandler/voicebridge-go/internal/metrics"
	"github.com/codewandler/voicebridge-go/internal/websocket"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	closeTimeout          = 500 * time.Millisecond
)

// ConnectionHandler receives everything a ConnectionManager observes. It is
// supplied at construction and released on Disconnect.
type ConnectionHandler interface {
	HandleState(state ConnectionState)
	HandleEvent(evt events.Event)
	// HandleDisconnect is called at most once, when an established connection
	// ends without a local Disconnect.
	HandleDisconnect(reason string)
}

type ConnectionConfig struct {
	URL     string
	Setup   events.Setup
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// ConnectionManager owns one socket to the model endpoint. It is created per
// session attempt and never reused.
type ConnectionManager struct {
	url     string
	setup   events.Setup
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	client  *websocket.Client
	handler ConnectionHandler
	closed  bool

	ready      atomic.Bool
	hs         handshake
	notifyOnce sync.Once
}

// handshake is resolved exactly once by whichever of success, socket
// failure, timeout or Disconnect happens first.
type handshake struct {
	once sync.Once
	done chan struct{}
	err  error
}

func (h *handshake) resolve(err error) bool {
	won := false
	h.once.Do(func() {
		h.err = err
		close(h.done)
		won = true
	})
	return won
}

func NewConnectionManager(cfg ConnectionConfig, handler ConnectionHandler) *ConnectionManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &ConnectionManager{
		url:     cfg.URL,
		setup:   cfg.Setup,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		handler: handler,
		hs:      handshake{done: make(chan struct{})},
	}
}

// Connect opens the socket, sends the setup frame and waits for setupComplete.
// It returns nil once the handshake completed. The whole exchange is bounded
// by the connect timeout.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.publish(ConnectionState{Phase: Connecting})
	m.logger.Info("connecting", slog.String("model", m.setup.Model))

	hsCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	client, err := websocket.Connect(hsCtx, websocket.ClientConfig{
		URL:         m.url,
		DialTimeout: m.timeout,
		Logger:      m.logger,
		OnText:      m.receive,
		OnClose:     m.socketClosed,
	})
	if err != nil {
		if hsCtx.Err() != nil {
			return m.fail(m.abortErr(ctx, hsCtx))
		}
		return m.fail(&ConnectionError{Reason: "Connection failed", Err: err})
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		closeClient(client)
		return ErrDisconnected
	}
	m.client = client
	m.mu.Unlock()

	m.publish(ConnectionState{Phase: SettingUp})
	if err := m.write(m.setup); err != nil {
		m.hs.resolve(&ConnectionError{Reason: "Failed to send setup", Err: err})
	}

	select {
	case <-m.hs.done:
	case <-hsCtx.Done():
		m.hs.resolve(m.abortErr(ctx, hsCtx))
	}
	<-m.hs.done

	if m.hs.err != nil {
		return m.fail(m.hs.err)
	}
	m.logger.Info("connected")
	return nil
}

func (m *ConnectionManager) abortErr(ctx, hsCtx context.Context) error {
	if ctx.Err() == nil && errors.Is(hsCtx.Err(), context.DeadlineExceeded) {
		return &ConnectionError{Reason: "Connection timed out", Err: ErrHandshakeTimeout}
	}
	return fmt.Errorf("connect: %w", ctx.Err())
}

func (m *ConnectionManager) fail(err error) error {
	if errors.Is(err, ErrDisconnected) {
		return err
	}
	m.logger.Error("connect failed", slog.Any("err", err))
	m.publish(ConnectionState{Phase: Error, Message: failureReason(err)})
	m.teardown()
	return err
}

func failureReason(err error) string {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return err.Error()
}

// Send writes frame to the socket. Realtime input is rejected with
// ErrNotReady until setupComplete arrived and again after goAway.
func (m *ConnectionManager) Send(frame events.Outbound) error {
	if events.IsRealtimeInput(frame) && !m.ready.Load() {
		m.metrics.FrameDropped("not_ready")
		return ErrNotReady
	}
	return m.write(frame)
}

func (m *ConnectionManager) write(frame events.Outbound) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return ErrDisconnected
	}

	kind := events.Kind(frame)
	data, err := events.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := client.WriteText(data); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	m.metrics.FrameSent(kind)
	return nil
}

func (m *ConnectionManager) IsReady() bool {
	return m.ready.Load()
}

// Disconnect closes the socket and releases the handler. It is idempotent
// and safe to call concurrently with Connect.
func (m *ConnectionManager) Disconnect() {
	m.hs.resolve(ErrDisconnected)
	handler, first := m.teardown()
	if first && handler != nil {
		handler.HandleState(ConnectionState{Phase: Disconnected})
	}
}

func (m *ConnectionManager) teardown() (ConnectionHandler, bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false
	}
	m.closed = true
	handler, client := m.handler, m.client
	m.handler, m.client = nil, nil
	m.mu.Unlock()

	m.ready.Store(false)
	m.notifyOnce.Do(func() {})
	if client != nil {
		closeClient(client)
	}
	return handler, true
}

func closeClient(client *websocket.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = client.Close(ctx)
}

func (m *ConnectionManager) currentHandler() ConnectionHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

func (m *ConnectionManager) publish(state ConnectionState) {
	if h := m.currentHandler(); h != nil {
		h.HandleState(state)
	}
}

func (m *ConnectionManager) receive(data []byte) error {
	evts := events.Decode(data)
	if len(evts) == 0 {
		m.logger.Debug("dropping unrecognized frame", slog.Int("len", len(data)))
		return nil
	}

	for _, evt := range evts {
		if _, ok := evt.(events.SetupComplete); ok {
			select {
			case <-m.hs.done:
				// late or duplicate
				continue
			default:
			}
			m.ready.Store(true)
			m.dispatch(evt)
			m.hs.resolve(nil)
			continue
		}
		if _, ok := evt.(events.GoAway); ok {
			// the server accepts no more input
			m.ready.Store(false)
		}
		m.dispatch(evt)
	}
	return nil
}

func (m *ConnectionManager) dispatch(evt events.Event) {
	if h := m.currentHandler(); h != nil {
		h.HandleEvent(evt)
	}
}

func (m *ConnectionManager) socketClosed(reason string, err error) {
	cause := "closed"
	if err != nil {
		cause = "error"
	}
	m.metrics.Disconnect(cause)

	// A pending handshake reports the failure through Connect.
	if m.hs.resolve(&ConnectionError{Reason: reason, Err: err}) {
		return
	}

	m.notifyOnce.Do(func() {
		m.ready.Store(false)
		m.logger.Warn("connection lost", slog.String("reason", reason), slog.Any("err", err))

		h := m.currentHandler()
		if h == nil {
			return
		}
		if err != nil {
			h.HandleState(ConnectionState{Phase: Error, Message: reason})
		} else {
			h.HandleState(ConnectionState{Phase: Disconnected})
		}
		h.HandleDisconnect(reason)
	})
	m.teardown()
}
