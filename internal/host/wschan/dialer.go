// If you are AI: This file implements the WebSocket channel dialer.
// Manages lifecycle of all channel connections (dial, track, stop).

package wschan

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"portbridge/internal/config"
	"portbridge/internal/core/port"
)

// Dialer opens WebSocket channels for stream and datagram ports.
// Each connection runs in its own goroutine; Stop cancels them and waits.
type Dialer struct {
	cfg    config.WebSocketConfig
	sink   Sink
	log    zerolog.Logger
	dialer *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[port.ChannelID]*Conn
}

// NewDialer creates a dialer reporting lifecycle signals to sink.
func NewDialer(cfg config.WebSocketConfig, sink Sink, logger zerolog.Logger) *Dialer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dialer{
		cfg:  cfg,
		sink: sink,
		log:  logger.With().Str("component", "wschan").Logger(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[port.ChannelID]*Conn),
	}
}

// Dial starts connecting to rawURL and returns immediately.
// Only malformed URLs fail here; network failures arrive later as an error signal.
func (d *Dialer) Dial(id port.ChannelID, rawURL string, datagram bool) (port.Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse channel url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("channel url %q: scheme must be ws or wss", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("channel url %q: missing host", rawURL)
	}
	if err := d.ctx.Err(); err != nil {
		return nil, fmt.Errorf("dialer stopped: %w", err)
	}

	ctx, cancel := context.WithCancel(d.ctx)
	c := &Conn{
		id:           id,
		url:          rawURL,
		datagram:     datagram,
		sink:         d.sink,
		log:          d.log.With().Uint64("channel", uint64(id)).Str("url", rawURL).Logger(),
		writeTimeout: d.cfg.WriteTimeout,
		readLimit:    d.cfg.ReadLimit,
		cancel:       cancel,
		inbound:      queue.New(),
		onDone:       d.forget,
	}
	c.state.Store(int32(StateConnecting))

	d.mu.Lock()
	d.conns[id] = c
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		c.run(ctx, d.dialer)
	}()
	return c, nil
}

// forget drops a finished connection from tracking.
func (d *Dialer) forget(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conns[c.id] == c {
		delete(d.conns, c.id)
	}
}

// Count returns the number of connections still dialing or reading.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Stop closes every connection and waits for their goroutines to finish.
func (d *Dialer) Stop() error {
	d.cancel()

	d.mu.Lock()
	conns := make([]*Conn, 0, len(d.conns))
	for _, c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	d.wg.Wait()
	return nil
}
