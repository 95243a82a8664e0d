// If you are AI: This file defines the pub/sub broker adapters shared contract and selects
// the configured backend.

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"portbridge/internal/config"
	"portbridge/internal/core/subject"
)

// ErrNotConnected is returned by Publish while the broker connection is down.
var ErrNotConnected = errors.New("broker not connected")

// Sink receives inbound messages and connection changes.
type Sink interface {
	OnTopicMessage(subject, payload string)
	OnBrokerState(connected bool)
}

// Broker is a connected publish/subscribe backend.
type Broker interface {
	Connect(ctx context.Context) error
	Publish(subject string, payload []byte) error
	Subscribe(subject string) error
	Unsubscribe(subject string) error
	Connected() bool
	Subjects() []string
	Close() error
}

// New returns the backend selected by cfg.Backend, or nil for "none".
func New(cfg config.PubSubConfig, sink Sink, logger zerolog.Logger) (Broker, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "nats":
		return NewNATS(cfg, sink, logger), nil
	case "mqtt":
		return NewMQTT(cfg, sink, logger), nil
	default:
		return nil, fmt.Errorf("unknown pubsub backend: %s", cfg.Backend)
	}
}

// subjectSet counts references to subscribed patterns and decides which of them go on
// the wire. A pattern covered by another one (keykit.notes under keykit.*) is not
// subscribed separately, so a matching message reaches the bridge once however many
// ports listen on overlapping patterns.
type subjectSet struct {
	mu    sync.Mutex
	order []string
	refs  map[string]int
}

// add takes a reference on subject and reports whether it was new.
func (s *subjectSet) add(subject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == nil {
		s.refs = make(map[string]int)
	}
	s.refs[subject]++
	if s.refs[subject] > 1 {
		return false
	}
	s.order = append(s.order, subject)
	return true
}

// remove drops a reference on subject and reports whether it was the last one.
func (s *subjectSet) remove(subject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.refs[subject]
	if !ok {
		return false
	}
	if n > 1 {
		s.refs[subject] = n - 1
		return false
	}
	delete(s.refs, subject)
	for i, v := range s.order {
		if v == subject {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *subjectSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// active returns the patterns to subscribe on the wire: those no other pattern covers.
func (s *subjectSet) active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.order {
		covered := false
		for _, q := range s.order {
			if q != p && subject.Covers(q, p) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}
