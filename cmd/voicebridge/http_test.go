package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/codewandler/voicebridge-go"
	"github.com/codewandler/voicebridge-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	phase    voicebridge.Phase
	startErr error
	stops    int
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.phase = voicebridge.Active
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.phase = voicebridge.Idle
}

func (f *fakeController) Toggle(ctx context.Context) error {
	f.mu.Lock()
	idle := f.phase == voicebridge.Idle
	f.mu.Unlock()
	if idle {
		return f.Start(ctx)
	}
	f.Stop()
	return nil
}

func (f *fakeController) Status() voicebridge.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return voicebridge.Status{Phase: f.phase}
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestRouter_StartStopToggle(t *testing.T) {
	ctl := &fakeController{}
	r := newRouter(ctl, nil)

	w, body := do(t, r, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", body["phase"])

	w, body = do(t, r, http.MethodPost, "/session/start")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", body["phase"])

	w, body = do(t, r, http.MethodPost, "/session/toggle")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", body["phase"])

	w, body = do(t, r, http.MethodPost, "/session/toggle")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", body["phase"])

	w, body = do(t, r, http.MethodPost, "/session/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", body["phase"])
	assert.Equal(t, 2, ctl.stops)
}

func TestRouter_StartErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"connection", &voicebridge.ConnectionError{Reason: "Connection timed out", Err: voicebridge.ErrHandshakeTimeout}, http.StatusBadGateway},
		{"microphone", &voicebridge.ResourceError{Device: "microphone", Err: errors.New("busy")}, http.StatusServiceUnavailable},
		{"stopped", voicebridge.ErrSessionStopped, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&fakeController{startErr: tc.err}, nil)
			w, body := do(t, r, http.MethodPost, "/session/start")
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	r := newRouter(&fakeController{}, nil)
	w, _ := do(t, r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code, "no collector, no route")

	m := metrics.NewCollector("voicebridge")
	m.SessionStarted()
	r = newRouter(&fakeController{}, m)
	w, _ = do(t, r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voicebridge_active_sessions 1")
}
