// Package voicebridge streams device audio and video to a Gemini Live model
// session and routes the model's tool calls to an execution backend.
package voicebridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/voicebridge-go/audio"
	"github.com/codewandler/voicebridge-go/config"
	"github.com/codewandler/voicebridge-go/events"
	"github.com/codewandler/voicebridge-go/tool"
	nanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/time/rate"
)

// VoiceSession runs at most one live model session at a time. Start, Stop
// and Toggle may be called from any goroutine.
type VoiceSession struct {
	capture  audio.Capture
	playback audio.Playback
	backend  tool.Backend
	config   *sessionConfig
	logger   *slog.Logger

	mu    sync.Mutex
	phase Phase
	cur   *session

	status atomic.Pointer[Status]
	subsMu sync.Mutex
	subs   map[chan Status]struct{}
}

// session holds everything created for one Start attempt.
type session struct {
	id        string
	settings  config.Settings
	logger    *slog.Logger
	conn      *ConnectionManager
	ctrl      *SessionController
	router    *tool.Router
	uplink    chan []byte
	video     *rate.Limiter
	capturing bool

	backendMu  sync.Mutex
	backendErr string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(capture audio.Capture, playback audio.Playback, backend tool.Backend, opts ...Option) *VoiceSession {
	cfg := &sessionConfig{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	v := &VoiceSession{
		capture:  capture,
		playback: playback,
		backend:  backend,
		config:   cfg,
		logger:   cfg.logger,
		subs:     make(map[chan Status]struct{}),
	}
	v.status.Store(&Status{})
	return v
}

func (v *VoiceSession) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// Start connects a new session and starts capturing. It is a no-op unless
// the session is idle. Any failure unwinds everything started so far; a Stop
// while starting makes Start return ErrSessionStopped.
func (v *VoiceSession) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.phase != Idle {
		v.mu.Unlock()
		return nil
	}
	v.phase = Starting
	v.mu.Unlock()
	v.setStatus(v.idleStatus(Starting, ""))

	s, err := v.newSession()
	if err != nil {
		v.logger.Error("session start failed", slog.Any("err", err))
		v.mu.Lock()
		v.phase = Idle
		v.mu.Unlock()
		v.setStatus(v.idleStatus(Idle, failureReason(err)))
		return err
	}

	// From here on Stop can claim s.
	v.mu.Lock()
	v.cur = s
	v.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAttempt := context.AfterFunc(s.ctx, cancel)
	defer stopAttempt()

	s.wg.Add(2)
	go v.pollStatus(s)
	go v.pumpUplink(s)

	v.logger.Info("starting session", slog.String("session", s.id))

	if err := v.backend.CheckConnection(ctx); err != nil {
		s.logger.Warn("tool backend unavailable", slog.Any("err", err))
		s.setBackendErr(err.Error())
	}
	if err := v.backend.ResetSession(ctx); err != nil {
		s.logger.Warn("tool backend session reset failed", slog.Any("err", err))
	}
	if !v.owns(s) {
		return ErrSessionStopped
	}

	if err := s.conn.Connect(ctx); err != nil {
		if !v.owns(s) {
			return ErrSessionStopped
		}
		v.stop(s, failureReason(err))
		return err
	}

	v.mu.Lock()
	if v.cur != s {
		v.mu.Unlock()
		return ErrSessionStopped
	}
	if err := v.capture.Start(captureSink{v: v, s: s}); err != nil {
		v.mu.Unlock()
		rerr := &ResourceError{Device: "microphone", Err: err}
		v.stop(s, rerr.Error())
		return rerr
	}
	s.capturing = true
	v.phase = Active
	v.mu.Unlock()

	v.config.metrics.SessionStarted()
	v.logger.Info("session active", slog.String("session", s.id))
	return nil
}

func (v *VoiceSession) owns(s *session) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur == s
}

// newSession builds the per-attempt components. It does no I/O beyond the
// settings snapshot.
func (v *VoiceSession) newSession() (*session, error) {
	settings, err := v.config.settings.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if v.config.apiKey != "" {
		settings.APIKey = v.config.apiKey
	}
	if v.config.connectTimeout > 0 {
		settings.ConnectTimeout = v.config.connectTimeout
	}

	url := v.config.endpointURL
	if url == "" {
		if url, err = settings.WebsocketURL(); err != nil {
			return nil, &ConnectionError{Reason: err.Error(), Err: err}
		}
	}

	id, err := nanoid.New()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       id,
		settings: settings,
		logger:   v.logger.With(slog.String("session", id)),
		uplink:   make(chan []byte, v.config.uplinkDepth),
		ctx:      sctx,
		cancel:   cancel,
	}
	if settings.VideoFrameInterval > 0 {
		s.video = rate.NewLimiter(rate.Every(settings.VideoFrameInterval), 1)
	} else {
		s.video = rate.NewLimiter(rate.Inf, 1)
	}

	s.router = tool.NewRouter(v.backend, tool.WithLogger(s.logger), tool.WithMetrics(v.config.metrics))
	s.ctrl = NewSessionController(v.hooks(s), s.logger)
	s.conn = NewConnectionManager(ConnectionConfig{
		URL: url,
		Setup: events.Setup{
			Model:             settings.Model,
			SystemInstruction: settings.SystemInstruction,
			Tools:             v.config.tools,
			Activity:          v.config.activity,
			ThinkingBudget:    v.config.thinkingBudget,
		},
		Timeout: settings.ConnectTimeout,
		Logger:  s.logger,
		Metrics: v.config.metrics,
	}, s.ctrl)
	return s, nil
}

func (v *VoiceSession) hooks(s *session) ControllerHooks {
	return ControllerHooks{
		OnAudio: func(data []byte) {
			if err := v.playback.Play(data); err != nil {
				v.logger.Debug("playback", slog.Any("err", err))
			}
		},
		OnInterrupted: v.playback.Stop,
		OnToolCall: func(calls []events.FunctionCall) {
			for _, call := range calls {
				s.router.Handle(s.ctx, call, func(resp tool.Response) {
					if err := s.conn.Send(events.ToolResponse{Responses: []tool.Response{resp}}); err != nil {
						v.logger.Warn("tool response not sent", slog.String("id", resp.ID), slog.Any("err", err))
					}
				})
			}
		},
		OnToolCallCancellation: func(ids []string) {
			s.router.Cancel(ids...)
		},
		OnDisconnected: func(reason string) {
			go v.stop(s, reason)
		},
		OnTurnLatency: v.config.metrics.ObserveTurnLatency,
	}
}

// Stop ends the current session. It is idempotent and safe to call
// concurrently with any other trigger.
func (v *VoiceSession) Stop() {
	v.mu.Lock()
	s := v.cur
	v.mu.Unlock()
	v.stop(s, "")
}

// Toggle starts an idle session and stops a running one.
func (v *VoiceSession) Toggle(ctx context.Context) error {
	if v.Phase() == Idle {
		return v.Start(ctx)
	}
	v.Stop()
	return nil
}

// stop tears down s if it is still the current session. Whoever claims s
// first releases its resources; later callers return immediately.
func (v *VoiceSession) stop(s *session, reason string) {
	v.mu.Lock()
	if s == nil || v.cur != s {
		v.mu.Unlock()
		return
	}
	v.cur = nil
	v.phase = Stopping
	capturing := s.capturing
	v.mu.Unlock()

	v.logger.Info("stopping session", slog.String("session", s.id), slog.String("reason", reason))

	s.router.CancelAll()
	if capturing {
		v.capture.Stop()
	}
	v.playback.Stop()
	s.conn.Disconnect()
	s.cancel()
	s.wg.Wait()

	if capturing {
		v.config.metrics.SessionEnded()
	}

	v.setStatus(v.idleStatus(Idle, reason))
	v.mu.Lock()
	v.phase = Idle
	v.mu.Unlock()
}

func (s *session) setBackendErr(msg string) {
	s.backendMu.Lock()
	s.backendErr = msg
	s.backendMu.Unlock()
}

func (s *session) backendError() string {
	s.backendMu.Lock()
	defer s.backendMu.Unlock()
	return s.backendErr
}

func (v *VoiceSession) current() *session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// SendAudio queues captured PCM at the input rate for the model. It never
// blocks; chunks are dropped while the uplink is congested.
func (v *VoiceSession) SendAudio(pcm []byte) {
	if s := v.current(); s != nil {
		v.enqueue(s, pcm)
	}
}

func (v *VoiceSession) enqueue(s *session, pcm []byte) {
	chunk := append([]byte(nil), pcm...)
	select {
	case s.uplink <- chunk:
	default:
		v.config.metrics.FrameDropped("uplink_full")
	}
}

// pumpUplink is the only sender of audio. Echo suppression is decided here,
// right before the frame is written.
func (v *VoiceSession) pumpUplink(s *session) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case pcm := <-s.uplink:
			if s.ctrl.IsModelSpeaking() {
				v.config.metrics.FrameDropped("echo")
				continue
			}
			err := s.conn.Send(events.AudioChunk{Data: pcm, SampleRate: s.settings.InputSampleRate})
			if err != nil && !errors.Is(err, ErrNotReady) {
				v.logger.Debug("audio not sent", slog.Any("err", err))
			}
		}
	}
}

// SendVideoFrame sends a JPEG frame while the session is ready, at most one
// per configured video interval. Throttled frames return ErrThrottled.
func (v *VoiceSession) SendVideoFrame(jpeg []byte) error {
	s := v.current()
	if s == nil || s.ctrl.State().Phase != Ready {
		return ErrNotReady
	}
	if !s.video.Allow() {
		v.config.metrics.FrameDropped("video_throttled")
		return ErrThrottled
	}
	return s.conn.Send(events.VideoFrame{JPEG: jpeg})
}

func (v *VoiceSession) pollStatus(s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(v.config.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			v.setStatus(v.snapshot(s))
		}
	}
}

// captureSink binds capture callbacks to the session they were started for.
type captureSink struct {
	v *VoiceSession
	s *session
}

func (c captureSink) OnAudioCaptured(pcm []byte) {
	c.v.enqueue(c.s, pcm)
}

func (c captureSink) OnCaptureError(err error) {
	rerr := &ResourceError{Device: "microphone", Err: err}
	c.v.logger.Error("capture failed", slog.Any("err", rerr))
	go c.v.stop(c.s, rerr.Error())
}
