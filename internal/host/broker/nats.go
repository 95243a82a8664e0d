// If you are AI: This file implements the NATS broker adapter.

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"portbridge/internal/config"
)

// NATS publishes and subscribes through a NATS server.
// Subscriptions requested before Connect are made once the connection exists.
type NATS struct {
	cfg  config.PubSubConfig
	sink Sink
	log  zerolog.Logger

	subjects subjectSet

	mu   sync.Mutex
	nc   *nats.Conn
	subs map[string]*nats.Subscription
}

// NewNATS creates an unconnected NATS adapter.
func NewNATS(cfg config.PubSubConfig, sink Sink, logger zerolog.Logger) *NATS {
	n := &NATS{
		cfg:  cfg,
		sink: sink,
		log:  logger.With().Str("component", "nats").Logger(),
		subs: make(map[string]*nats.Subscription),
	}
	for _, s := range cfg.Subjects {
		n.subjects.add(s)
	}
	return n
}

// Connect dials the server. The client keeps retrying in the background, so a server
// that is down at startup is not an error.
func (n *NATS) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := []nats.Option{
		nats.Name(n.cfg.ClientID),
		nats.Timeout(n.cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ConnectHandler(func(*nats.Conn) {
			n.log.Info().Str("url", n.cfg.URL).Msg("connected")
			n.sink.OnBrokerState(true)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.log.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("reconnected")
			n.sink.OnBrokerState(true)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.log.Warn().Err(err).Msg("disconnected")
			n.sink.OnBrokerState(false)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := n.log.Warn().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("async error")
		}),
	}

	nc, err := nats.Connect(n.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to nats %s: %w", n.cfg.URL, err)
	}

	n.mu.Lock()
	n.nc = nc
	n.mu.Unlock()

	if err := n.sync(); err != nil {
		n.log.Warn().Err(err).Msg("subscribe failed")
	}

	if nc.IsConnected() {
		n.sink.OnBrokerState(true)
	} else {
		n.log.Info().Str("url", n.cfg.URL).Msg("server unavailable, retrying in background")
	}
	return nil
}

// Publish sends payload on subject.
func (n *NATS) Publish(subject string, payload []byte) error {
	n.mu.Lock()
	nc := n.nc
	n.mu.Unlock()
	if nc == nil || !nc.IsConnected() {
		return ErrNotConnected
	}
	return nc.Publish(subject, payload)
}

// Subscribe takes a reference on subject. Patterns covered by another subscribed pattern
// share its wire subscription.
func (n *NATS) Subscribe(subject string) error {
	if !n.subjects.add(subject) {
		return nil
	}
	if err := n.sync(); err != nil {
		n.subjects.remove(subject)
		return err
	}
	return nil
}

// Unsubscribe drops a reference on subject. The wire subscription goes with the last one.
func (n *NATS) Unsubscribe(subject string) error {
	if !n.subjects.remove(subject) {
		return nil
	}
	return n.sync()
}

// sync brings the wire subscriptions in line with the active pattern set.
// New patterns are subscribed before the ones they cover are dropped.
func (n *NATS) sync() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nc == nil {
		return nil
	}

	var errs []error
	want := make(map[string]struct{})
	for _, s := range n.subjects.active() {
		want[s] = struct{}{}
		if _, ok := n.subs[s]; ok {
			continue
		}
		sub, err := n.nc.Subscribe(s, n.handle)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", s, err))
			continue
		}
		n.subs[s] = sub
		n.log.Debug().Str("subject", s).Msg("subscribed")
	}
	for s, sub := range n.subs {
		if _, ok := want[s]; ok {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", s, err))
		}
		delete(n.subs, s)
		n.log.Debug().Str("subject", s).Msg("unsubscribed")
	}
	return errors.Join(errs...)
}

// handle forwards one inbound message to the sink.
func (n *NATS) handle(msg *nats.Msg) {
	n.sink.OnTopicMessage(msg.Subject, string(msg.Data))
}

// Connected reports whether the server connection is up.
func (n *NATS) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nc != nil && n.nc.IsConnected()
}

// Subjects returns the subscribed patterns, including ones sharing a wider subscription.
func (n *NATS) Subjects() []string {
	return n.subjects.list()
}

// Close drops every subscription and closes the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	nc := n.nc
	n.nc = nil
	n.subs = make(map[string]*nats.Subscription)
	n.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
	return nil
}
