package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	s := Default()

	_, err := s.WebsocketURL()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	s.APIKey = placeholderKey
	_, err = s.WebsocketURL()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	s.APIKey = "abc"
	u, err := s.WebsocketURL()
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint+"?key=abc", u)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicebridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: models/from-file
connect_timeout: 5s
openclaw:
  host: claw.local
  port: 9000
`), 0o600))

	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("OPENCLAW_PORT", "9100")
	t.Setenv("OPENCLAW_GATEWAY_TOKEN", "secret")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", s.APIKey)
	assert.Equal(t, "models/from-file", s.Model)
	assert.Equal(t, 5*time.Second, s.ConnectTimeout)
	assert.Equal(t, "claw.local", s.OpenClaw.Host)
	assert.Equal(t, 9100, s.OpenClaw.Port)
	assert.Equal(t, "secret", s.OpenClaw.GatewayToken)
	assert.Equal(t, 16_000, s.InputSampleRate)
	assert.True(t, s.OpenClaw.Configured())
	assert.Equal(t, "http://claw.local:9100", s.OpenClaw.BaseURL())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("OPENCLAW_PORT", "not-a-port")
	_, err = Load("")
	assert.ErrorContains(t, err, "OPENCLAW_PORT")
}

func TestProviders(t *testing.T) {
	want := Default()
	want.APIKey = "k"

	got, err := Static(want).Snapshot()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: m1\n"), 0o600))
	p := FileProvider{Path: path}

	s1, err := p.Snapshot()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("model: m2\n"), 0o600))
	s2, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "m1", s1.Model)
	assert.Equal(t, "m2", s2.Model)
}

func TestOpenClaw_Configured(t *testing.T) {
	assert.False(t, OpenClaw{}.Configured())
	assert.False(t, OpenClaw{Host: placeholderHost, GatewayToken: "t"}.Configured())
	assert.False(t, OpenClaw{Host: "h", GatewayToken: placeholderGatewayToken}.Configured())
	assert.True(t, OpenClaw{Host: "h", GatewayToken: "t"}.Configured())

	assert.Equal(t, "https://claw.example:443", OpenClaw{Host: "https://claw.example/", Port: 443}.BaseURL())
}
