// If you are AI: This file provides HTTP API service integration.
// The API reads bridge snapshots directly and hands commands to the consumer loop.

package api

import (
	"context"
	"net/http"
	"time"

	"portbridge/internal/bridge"
)

// StatsSource provides bridge snapshots.
// This allows the API to work without holding the bridge itself.
type StatsSource interface {
	Stats() bridge.Stats
}

// BrokerStatus reports the pub/sub connection, nil when no broker is configured.
type BrokerStatus interface {
	Connected() bool
	Subjects() []string
}

// Commander runs an upstream command verb on the consumer loop.
type Commander interface {
	Submit(ctx context.Context, verb string, args ...string) (string, error)
}

// Service provides HTTP API functionality.
type Service struct {
	stats     StatsSource
	broker    BrokerStatus
	commander Commander
	version   string
	services  []string
	startTime time.Time
}

// NewService creates a new API service.
// services names the enabled subsystems reported by /api/server.
func NewService(stats StatsSource, broker BrokerStatus, version string, services []string) *Service {
	return &Service{
		stats:     stats,
		broker:    broker,
		version:   version,
		services:  services,
		startTime: getCurrentTime(),
	}
}

// SetCommander enables POST /api/command. Without one the route answers 503.
func (s *Service) SetCommander(c Commander) {
	s.commander = c
}

// RegisterRoutes registers API routes on the provided mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server", s.handleServer)
	mux.HandleFunc("/api/ports", s.handlePorts)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/pubsub", s.handlePubSub)
	mux.HandleFunc("/api/command", s.handleCommand)
}

// getCurrentTime returns the current time.
// Extracted for testability.
var getCurrentTime = time.Now
