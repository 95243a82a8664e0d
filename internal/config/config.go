// If you are AI: This file defines the configuration structure for portbridge.
// It uses strict YAML decoding and explicit defaults.

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete bridge configuration.
// All fields must have explicit defaults or be required.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Log       LogConfig       `yaml:"log"`
	Ports     []PortConfig    `yaml:"ports,omitempty"`
}

// ServerConfig defines HTTP status server settings.
type ServerConfig struct {
	HealthPort int  `yaml:"health_port"` // Port for health endpoint
	HTTPPort   int  `yaml:"http_port"`   // Port for the status API
	Disabled   bool `yaml:"disabled"`    // Skip the status server entirely
}

// BridgeConfig sizes the bounded buffers of the event bridge.
type BridgeConfig struct {
	MIDICapacity    uint32 `yaml:"midi_capacity"`    // Raw MIDI bytes
	KeyCapacity     uint32 `yaml:"key_capacity"`     // Key-down events
	MouseCapacity   uint32 `yaml:"mouse_capacity"`   // Mouse events
	SignalCapacity  uint32 `yaml:"signal_capacity"`  // Host channel lifecycle events
	TopicCapacity   uint32 `yaml:"topic_capacity"`   // Pub/sub intake before the subject store
	SubjectCapacity int    `yaml:"subject_capacity"` // Subject-indexed store slots
	MaxPending      int    `yaml:"max_pending"`      // Write-behind cap per port, bytes
}

// PubSubConfig selects and configures the publish/subscribe broker.
type PubSubConfig struct {
	Backend        string        `yaml:"backend"`         // "none", "nats" or "mqtt"
	URL            string        `yaml:"url"`             // Broker URL
	ClientID       string        `yaml:"client_id"`       // Client name reported to the broker
	Subjects       []string      `yaml:"subjects"`        // Subscriptions made at connect
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Per-attempt connect timeout
}

// WebSocketConfig configures the host message channel used for stream and datagram ports.
type WebSocketConfig struct {
	Scheme           string        `yaml:"scheme"`            // URL scheme, "ws" by default
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // Dial handshake timeout
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // Per-message write deadline
	ReadLimit        int64         `yaml:"read_limit"`        // Max inbound message size
}

// TerminalConfig enables the terminal host (keyboard, mouse and resize events).
type TerminalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level string `yaml:"level"` // zerolog level name
	File  string `yaml:"file"`  // Log file; empty logs to stderr
}

// PortConfig declares a port opened at startup.
type PortConfig struct {
	Name string `yaml:"name"`           // endpoint@host[:port] or subject
	Type string `yaml:"type"`           // Transport token, e.g. tcpip_connect
	Echo bool   `yaml:"echo,omitempty"` // Forward console keys to the write side
}

// Load reads configuration from a YAML file.
// Returns an error if the file cannot be read or decoded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields

	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.Server.HealthPort == 0 {
		c.Server.HealthPort = 8080
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8081
	}

	if c.Bridge.MIDICapacity == 0 {
		c.Bridge.MIDICapacity = 1024
	}
	if c.Bridge.KeyCapacity == 0 {
		c.Bridge.KeyCapacity = 256
	}
	if c.Bridge.MouseCapacity == 0 {
		c.Bridge.MouseCapacity = 256
	}
	if c.Bridge.SignalCapacity == 0 {
		c.Bridge.SignalCapacity = 256
	}
	if c.Bridge.TopicCapacity == 0 {
		c.Bridge.TopicCapacity = 256
	}
	if c.Bridge.SubjectCapacity == 0 {
		c.Bridge.SubjectCapacity = 20
	}
	if c.Bridge.MaxPending == 0 {
		c.Bridge.MaxPending = 1 << 20
	}

	if c.PubSub.Backend == "" {
		c.PubSub.Backend = "none"
	}
	if c.PubSub.ClientID == "" {
		c.PubSub.ClientID = "portbridge"
	}
	if c.PubSub.ConnectTimeout == 0 {
		c.PubSub.ConnectTimeout = 5 * time.Second
	}

	if c.WebSocket.Scheme == "" {
		c.WebSocket.Scheme = "ws"
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = 5 * time.Second
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = 2 * time.Second
	}
	if c.WebSocket.ReadLimit == 0 {
		c.WebSocket.ReadLimit = 1 << 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
