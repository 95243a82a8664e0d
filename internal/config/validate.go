// If you are AI: This file validates configuration values and returns descriptive errors.

package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks that all configuration values are within acceptable ranges.
// Returns an error describing the first validation failure found.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Bridge.Validate(); err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}
	if err := c.PubSub.Validate(); err != nil {
		return fmt.Errorf("pubsub config: %w", err)
	}
	if err := c.WebSocket.Validate(); err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if c.Terminal.Enabled && c.Log.File == "" {
		return fmt.Errorf("log config: file is required while the terminal host owns the screen")
	}
	for i, p := range c.Ports {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("ports[%d]: name is required", i)
		}
		if strings.TrimSpace(p.Type) == "" {
			return fmt.Errorf("ports[%d]: type is required", i)
		}
	}
	return nil
}

// Validate checks server configuration values.
func (s *ServerConfig) Validate() error {
	if s.Disabled {
		return nil
	}
	if s.HealthPort <= 0 || s.HealthPort > 65535 {
		return fmt.Errorf("health_port must be between 1 and 65535, got %d", s.HealthPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", s.HTTPPort)
	}
	if s.HealthPort == s.HTTPPort {
		return fmt.Errorf("health_port and http_port must be different, both are %d", s.HealthPort)
	}
	return nil
}

// Validate checks buffer sizes.
func (b *BridgeConfig) Validate() error {
	caps := []struct {
		name  string
		value uint32
	}{
		{"midi_capacity", b.MIDICapacity},
		{"key_capacity", b.KeyCapacity},
		{"mouse_capacity", b.MouseCapacity},
		{"signal_capacity", b.SignalCapacity},
		{"topic_capacity", b.TopicCapacity},
	}
	for _, c := range caps {
		if c.value&(c.value-1) != 0 {
			return fmt.Errorf("%s must be a power of two, got %d", c.name, c.value)
		}
	}
	if b.MIDICapacity < 3 {
		return fmt.Errorf("midi_capacity must hold at least one message, got %d", b.MIDICapacity)
	}
	if b.SubjectCapacity < 0 {
		return fmt.Errorf("subject_capacity must be positive, got %d", b.SubjectCapacity)
	}
	if b.MaxPending < 0 {
		return fmt.Errorf("max_pending must be positive, got %d", b.MaxPending)
	}
	return nil
}

// Validate checks broker settings.
func (p *PubSubConfig) Validate() error {
	switch p.Backend {
	case "none":
		return nil
	case "nats", "mqtt":
	default:
		return fmt.Errorf("backend must be none, nats or mqtt, got %q", p.Backend)
	}
	if p.URL == "" {
		return fmt.Errorf("url is required for backend %s", p.Backend)
	}
	if p.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", p.ConnectTimeout)
	}
	return nil
}

// Validate checks websocket settings.
func (w *WebSocketConfig) Validate() error {
	if w.Scheme != "ws" && w.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", w.Scheme)
	}
	if w.HandshakeTimeout < 0 || w.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if w.ReadLimit < 0 {
		return fmt.Errorf("read_limit must be positive, got %d", w.ReadLimit)
	}
	return nil
}
