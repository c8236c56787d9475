package voicebridge

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

// mockPeer is a model endpoint stand-in. It records every text frame it
// receives and optionally answers setup with setupComplete.
type mockPeer struct {
	url       string
	frames    chan map[string]any
	connected chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

func newMockPeer(t *testing.T, autoSetup bool) *mockPeer {
	t.Helper()
	p := &mockPeer{
		frames:    make(chan map[string]any, 256),
		connected: make(chan struct{}),
	}

	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		once.Do(func() { close(p.connected) })

		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if op != ws.OpText {
				continue
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			if _, ok := m["setup"]; ok && autoSetup {
				p.write(`{"setupComplete":{}}`)
			}
			p.frames <- m
		}
	}))
	t.Cleanup(srv.Close)

	p.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return p
}

func (p *mockPeer) write(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = wsutil.WriteServerText(p.conn, []byte(msg))
	}
}

func (p *mockPeer) send(t *testing.T, msg string) {
	t.Helper()
	select {
	case <-p.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("peer not connected")
	}
	p.write(msg)
}

func (p *mockPeer) closeWith(t *testing.T, code ws.StatusCode, reason string) {
	t.Helper()
	<-p.connected
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = wsutil.WriteServerMessage(p.conn, ws.OpClose, ws.NewCloseFrameBody(code, reason))
	_ = p.conn.Close()
}

// next returns the next received frame that has the top-level key.
func (p *mockPeer) next(t *testing.T, key string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-p.frames:
			if v, ok := m[key]; ok {
				return v.(map[string]any)
			}
		case <-deadline:
			t.Fatalf("no %q frame received", key)
			return nil
		}
	}
}

// expectNone asserts that no frame with key arrives within d.
func (p *mockPeer) expectNone(t *testing.T, key string, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case m := <-p.frames:
			_, ok := m[key]
			require.False(t, ok, "unexpected %q frame", key)
		case <-deadline:
			return
		}
	}
}
