package tool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateBackend blocks every Execute until release is closed.
type gateBackend struct {
	release chan struct{}
	result  any
	err     error
	calls   atomic.Int32
}

func newGateBackend() *gateBackend {
	return &gateBackend{release: make(chan struct{})}
}

func (b *gateBackend) CheckConnection(context.Context) error { return nil }
func (b *gateBackend) ResetSession(context.Context) error    { return nil }

func (b *gateBackend) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	b.calls.Add(1)
	<-b.release
	return b.result, b.err
}

type recorder struct {
	mu        sync.Mutex
	responses []Response
	ch        chan Response
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Response, 16)}
}

func (r *recorder) respond(resp Response) {
	r.mu.Lock()
	r.responses = append(r.responses, resp)
	r.mu.Unlock()
	r.ch <- resp
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses)
}

func TestRouter_RespondsOnSuccess(t *testing.T) {
	b := newGateBackend()
	b.result = "done"
	rec := newRecorder()
	r := NewRouter(b)

	r.Handle(context.Background(), Call{ID: "c1", Name: ExecuteName, Args: map[string]any{"task": "x"}}, rec.respond)
	require.Equal(t, 1, r.Pending())
	assert.Equal(t, StatusPending, r.Status().Kind)

	close(b.release)
	r.Wait()

	require.Equal(t, 1, rec.count())
	resp := <-rec.ch
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, ExecuteName, resp.Name)
	assert.Equal(t, "done", resp.Response["result"])
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, StatusSucceeded, r.Status().Kind)
}

func TestRouter_FailureIsReportedNotRaised(t *testing.T) {
	b := newGateBackend()
	b.err = &ExecutionError{Kind: ErrorUnreachable, Tool: ExecuteName, Err: errors.New("connection refused")}
	close(b.release)
	rec := newRecorder()
	r := NewRouter(b)

	r.Handle(context.Background(), Call{ID: "c1", Name: ExecuteName}, rec.respond)
	r.Wait()

	resp := <-rec.ch
	assert.Contains(t, resp.Response["error"], "connection refused")
	assert.Equal(t, "unreachable", resp.Response["kind"])
	status := r.Status()
	assert.Equal(t, StatusFailed, status.Kind)
	assert.Contains(t, status.Reason, "connection refused")
}

func TestRouter_NilResultIsSuccess(t *testing.T) {
	b := newGateBackend()
	close(b.release)
	rec := newRecorder()
	r := NewRouter(b)

	r.Handle(context.Background(), Call{ID: "c1", Name: "noop"}, rec.respond)
	r.Wait()

	resp := <-rec.ch
	assert.Equal(t, true, resp.Response["success"])
}

func TestRouter_CancelSuppressesLateCompletion(t *testing.T) {
	b := newGateBackend()
	b.result = "late"
	rec := newRecorder()
	r := NewRouter(b)

	r.Handle(context.Background(), Call{ID: "c1", Name: ExecuteName}, rec.respond)
	r.Handle(context.Background(), Call{ID: "c2", Name: ExecuteName}, rec.respond)

	r.Cancel("c1", "unknown")
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, StatusCancelled, r.Status().Kind)

	close(b.release)
	r.Wait()

	require.Equal(t, 1, rec.count())
	resp := <-rec.ch
	assert.Equal(t, "c2", resp.ID)
}

func TestRouter_CancelAllRespondsToNothing(t *testing.T) {
	b := newGateBackend()
	rec := newRecorder()
	r := NewRouter(b)

	for _, id := range []string{"a", "b", "c"} {
		r.Handle(context.Background(), Call{ID: id, Name: ExecuteName}, rec.respond)
	}
	require.Equal(t, 3, r.Pending())

	r.CancelAll()
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, StatusIdle, r.Status().Kind)

	close(b.release)
	r.Wait()
	assert.Equal(t, 0, rec.count())
}

func TestRouter_ParentCancellationSuppressesResponse(t *testing.T) {
	b := newGateBackend()
	rec := newRecorder()
	r := NewRouter(b)

	ctx, cancel := context.WithCancel(context.Background())
	r.Handle(ctx, Call{ID: "c1", Name: ExecuteName}, rec.respond)
	cancel()
	close(b.release)
	r.Wait()

	assert.Equal(t, 0, rec.count())
}

func TestRouter_DuplicateIDSupersedesEarlierCall(t *testing.T) {
	b := newGateBackend()
	rec := newRecorder()
	r := NewRouter(b)

	r.Handle(context.Background(), Call{ID: "c1", Name: "first"}, rec.respond)
	r.Handle(context.Background(), Call{ID: "c1", Name: "second"}, rec.respond)
	close(b.release)
	r.Wait()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "second", (<-rec.ch).Name)
}

type panicBackend struct{}

func (panicBackend) CheckConnection(context.Context) error { return nil }
func (panicBackend) ResetSession(context.Context) error    { return nil }

func (panicBackend) Execute(context.Context, string, map[string]any) (any, error) {
	panic("boom")
}

func TestRouter_BackendPanicBecomesErrorPayload(t *testing.T) {
	rec := newRecorder()
	r := NewRouter(panicBackend{})

	r.Handle(context.Background(), Call{ID: "c1", Name: ExecuteName}, rec.respond)
	r.Wait()

	select {
	case resp := <-rec.ch:
		assert.Contains(t, resp.Response["error"], "boom")
	case <-time.After(time.Second):
		t.Fatal("no response")
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorDenied, KindOf(&ExecutionError{Kind: ErrorDenied, Err: errors.New("401")}))
	assert.Equal(t, ErrorTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, ErrorFailed, KindOf(errors.New("x")))
}
