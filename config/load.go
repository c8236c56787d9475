package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider hands out an immutable settings snapshot. Sessions take one
// snapshot at start.
type Provider interface {
	Snapshot() (Settings, error)
}

type Static Settings

func (s Static) Snapshot() (Settings, error) {
	return Settings(s), nil
}

// FileProvider reloads its file on every snapshot, so edits apply to the next
// session.
type FileProvider struct {
	Path string
}

func (p FileProvider) Snapshot() (Settings, error) {
	return Load(p.Path)
}

// Load builds settings from the defaults, the YAML file at path (if path is
// not empty) and the environment. A .env file in the working directory is
// read first and does not override variables already set.
func Load(path string) (Settings, error) {
	_ = godotenv.Load()

	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&s, os.Getenv); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func applyEnv(s *Settings, getenv func(string) string) error {
	if v := getenv("GEMINI_API_KEY"); v != "" {
		s.APIKey = v
	}
	if v := getenv("GEMINI_MODEL"); v != "" {
		s.Model = v
	}
	if v := getenv("OPENCLAW_HOST"); v != "" {
		s.OpenClaw.Host = v
	}
	if v := getenv("OPENCLAW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OPENCLAW_PORT %q: %w", v, err)
		}
		s.OpenClaw.Port = port
	}
	if v := getenv("OPENCLAW_GATEWAY_TOKEN"); v != "" {
		s.OpenClaw.GatewayToken = v
	}
	if v := getenv("OPENCLAW_HOOK_TOKEN"); v != "" {
		s.OpenClaw.HookToken = v
	}
	return nil
}
