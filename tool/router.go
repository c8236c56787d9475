package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/voicebridge-go/internal/metrics"
)

// Router dispatches model tool calls to a Backend and tracks them by id until
// they are answered or cancelled.
//
// For every id exactly one of {respond, cancel} wins. The winner removes the
// id from the pending table under the router lock, so a backend result that
// arrives after cancellation is dropped.
type Router struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	pending map[string]*pendingCall
	status  Status

	wg sync.WaitGroup
}

type pendingCall struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Collector) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

func NewRouter(backend Backend, opts ...RouterOption) *Router {
	r := &Router{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		pending: make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers call and executes it asynchronously. respond is invoked at
// most once, from the execution goroutine, and never after the call was
// cancelled. Backend failures are answered with an error payload.
func (r *Router) Handle(ctx context.Context, call Call, respond func(Response)) {
	callCtx, cancel := context.WithCancel(ctx)
	p := &pendingCall{name: call.Name, ctx: callCtx, cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.pending[call.ID]; ok {
		// a reused id supersedes the earlier call
		prev.cancel()
	}
	r.pending[call.ID] = p
	r.status = Status{Kind: StatusPending, Name: call.Name}
	r.mu.Unlock()

	r.logger.Debug("tool call dispatched", slog.String("id", call.ID), slog.String("name", call.Name), slog.Any("args", call.Args))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		start := time.Now()
		result, err := r.execute(callCtx, call)
		elapsed := time.Since(start)

		if !r.complete(call, p, err) {
			r.logger.Debug("tool call result dropped", slog.String("id", call.ID), slog.String("name", call.Name))
			return
		}

		if err != nil {
			r.logger.Warn("tool call failed", slog.String("id", call.ID), slog.String("name", call.Name), slog.Any("err", err))
			r.metrics.RecordToolCall(call.Name, "failed", elapsed)
			respond(errorResponse(call, err))
			return
		}

		r.logger.Debug("tool call succeeded", slog.String("id", call.ID), slog.String("name", call.Name), slog.Duration("elapsed", elapsed))
		r.metrics.RecordToolCall(call.Name, "succeeded", elapsed)
		respond(successResponse(call, result))
	}()
}

func (r *Router) execute(ctx context.Context, call Call) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ExecutionError{Kind: ErrorFailed, Tool: call.Name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return r.backend.Execute(ctx, call.Name, call.Args)
}

// complete claims the right to respond for p. It fails when the call was
// cancelled or superseded in the meantime.
func (r *Router) complete(call Call, p *pendingCall, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[call.ID] != p || p.ctx.Err() != nil {
		return false
	}
	delete(r.pending, call.ID)

	if err != nil {
		r.status = Status{Kind: StatusFailed, Name: call.Name, Reason: err.Error()}
	} else {
		r.status = Status{Kind: StatusSucceeded, Name: call.Name}
	}
	return true
}

// Cancel cancels the pending calls with the given ids. Unknown ids are ignored.
func (r *Router) Cancel(ids ...string) {
	var cancelled []*pendingCall

	r.mu.Lock()
	for _, id := range ids {
		p, ok := r.pending[id]
		if !ok {
			continue
		}
		delete(r.pending, id)
		cancelled = append(cancelled, p)
		r.status = Status{Kind: StatusCancelled, Name: p.name}
	}
	r.mu.Unlock()

	for _, p := range cancelled {
		p.cancel()
		r.metrics.RecordToolCall(p.name, "cancelled", 0)
		r.logger.Debug("tool call cancelled", slog.String("name", p.name))
	}
}

// CancelAll cancels every pending call without responding to any of them.
func (r *Router) CancelAll() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]*pendingCall)
	r.status = Status{}
	r.mu.Unlock()

	for _, p := range pending {
		p.cancel()
	}
}

func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Router) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Wait blocks until every dispatched execution goroutine has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}
