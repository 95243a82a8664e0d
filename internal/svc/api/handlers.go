// If you are AI: This file implements HTTP API handlers.
// Read handlers only touch bridge snapshots; /api/command waits for the consumer loop.

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"portbridge/internal/bridge"
	"portbridge/internal/command"
	"portbridge/internal/core/port"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	commandTimeout = 5 * time.Second
	maxCommandBody = 4 << 10
)

// ServerResponse represents the /api/server response.
type ServerResponse struct {
	Version         string   `json:"version"`
	Uptime          int64    `json:"uptime"` // seconds
	Started         string   `json:"started"`
	GoVersion       string   `json:"go_version"`
	EnabledServices []string `json:"enabled_services"`
}

// PortsResponse represents the /api/ports response.
type PortsResponse struct {
	Ports []port.Info `json:"ports"`
}

// StatsResponse represents the /api/stats response.
type StatsResponse struct {
	bridge.Stats
	Dropped string `json:"dropped"` // total dropped records across buffers, comma grouped
}

// PubSubResponse represents the /api/pubsub response.
type PubSubResponse struct {
	Enabled   bool     `json:"enabled"`
	Connected bool     `json:"connected"`
	Subjects  []string `json:"subjects"`
}

// CommandRequest is the POST /api/command body.
type CommandRequest struct {
	Verb string   `json:"verb"`
	Args []string `json:"args"`
}

// CommandResponse represents the /api/command response.
type CommandResponse struct {
	Result string `json:"result"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleServer handles GET /api/server.
// Returns server version, uptime, and enabled services.
func (s *Service) handleServer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := ServerResponse{
		Version:         s.version,
		Uptime:          int64(getCurrentTime().Sub(s.startTime).Seconds()),
		Started:         humanize.Time(s.startTime),
		GoVersion:       runtime.Version(),
		EnabledServices: s.services,
	}
	if response.EnabledServices == nil {
		response.EnabledServices = []string{}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handlePorts handles GET /api/ports.
// Returns open ports, newest first.
func (s *Service) handlePorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, PortsResponse{Ports: s.stats.Stats().Ports})
}

// handleStats handles GET /api/stats.
// Returns buffer fill and drop counters plus the port list.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := s.stats.Stats()
	total := st.MIDI.Dropped + st.Keys.Dropped + st.Mouse.Dropped +
		st.Signals.Dropped + st.Topics.Dropped + st.Subjects.Dropped

	s.writeJSON(w, http.StatusOK, StatsResponse{
		Stats:   st,
		Dropped: humanize.Comma(int64(total)),
	})
}

// handlePubSub handles GET /api/pubsub.
func (s *Service) handlePubSub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := PubSubResponse{Subjects: []string{}}
	if s.broker != nil {
		response.Enabled = true
		response.Connected = s.broker.Connected()
		if subjects := s.broker.Subjects(); subjects != nil {
			response.Subjects = subjects
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleCommand handles POST /api/command.
// Runs one verb with up to three arguments on the consumer loop.
func (s *Service) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.commander == nil {
		s.writeError(w, http.StatusServiceUnavailable, "commands not available")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Verb == "" {
		s.writeError(w, http.StatusBadRequest, "verb is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	out, err := s.commander.Submit(ctx, req.Verb, req.Args...)
	if err != nil {
		s.writeError(w, commandStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{Result: out})
}

// commandStatus maps a command error to an HTTP status.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, command.ErrTooManyArgs), errors.Is(err, command.ErrMissingArg):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrUnknownVerb),
		errors.Is(err, command.ErrUnsetEnv),
		errors.Is(err, port.ErrPortClosed),
		errors.Is(err, bridge.ErrUnknownControl):
		return http.StatusNotFound
	case errors.Is(err, command.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, command.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
