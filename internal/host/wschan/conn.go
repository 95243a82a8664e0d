// If you are AI: This file implements one host message channel over a WebSocket client connection.
// Inbound messages are kept in a FIFO until the bridge drains them; lifecycle changes are
// reported to the sink as port signals.

package wschan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"portbridge/internal/core/port"
)

// ErrNotConnected is returned by Send before the handshake completes or after close.
var ErrNotConnected = errors.New("websocket not connected")

// State is the connection state of a channel.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateClosing
	StateClosed
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink receives channel lifecycle signals.
type Sink interface {
	OnChannelSignal(id port.ChannelID, sig port.Signal)
}

// Conn is a WebSocket-backed port.Channel.
// Lock expectations: Send, Receive and Close may be called from any goroutine.
// The read loop is the only writer to the inbound queue.
type Conn struct {
	id       port.ChannelID
	url      string
	datagram bool
	sink     Sink
	log      zerolog.Logger

	writeTimeout time.Duration
	readLimit    int64

	state  atomic.Int32
	cancel context.CancelFunc

	mu      sync.Mutex
	ws      *websocket.Conn
	inbound *queue.Queue

	writeMu sync.Mutex
	onDone  func(*Conn)
}

// ID returns the channel id the connection reports signals with.
func (c *Conn) ID() port.ChannelID { return c.id }

// URL returns the dialed URL.
func (c *Conn) URL() string { return c.url }

// Datagram reports whether the channel backs a datagram port.
func (c *Conn) Datagram() bool { return c.datagram }

// State returns the current connection state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Send writes p as one binary message.
func (c *Conn) Send(p []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return ws.WriteMessage(websocket.BinaryMessage, p)
}

// Receive pops the oldest buffered inbound message.
func (c *Conn) Receive() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbound.Length() == 0 {
		return nil, false
	}
	return c.inbound.Remove().([]byte), true
}

// Buffered returns the number of inbound messages not yet received.
func (c *Conn) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbound.Length()
}

// Close closes the connection. No further signals are reported.
func (c *Conn) Close() error {
	prev := State(c.state.Swap(int32(StateClosing)))
	if prev == StateClosed || prev == StateError {
		c.state.Store(int32(prev))
		return nil
	}
	c.cancel()

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	var err error
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = ws.Close()
	}
	c.state.Store(int32(StateClosed))
	return err
}

// run dials and then reads until the connection ends.
func (c *Conn) run(ctx context.Context, dialer *websocket.Dialer) {
	defer func() {
		if c.onDone != nil {
			c.onDone(c)
		}
	}()

	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if c.State() == StateClosing || c.State() == StateClosed {
			return
		}
		c.state.Store(int32(StateError))
		c.log.Debug().Err(err).Msg("websocket dial failed")
		c.sink.OnChannelSignal(c.id, port.SignalError)
		return
	}
	if c.readLimit > 0 {
		ws.SetReadLimit(c.readLimit)
	}

	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		// Closed while dialing.
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	c.log.Debug().Msg("websocket connected")
	c.sink.OnChannelSignal(c.id, port.SignalOpen)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.State() == StateConnected {
				c.log.Debug().Err(err).Msg("websocket closed by peer")
			}
			break
		}
		c.mu.Lock()
		c.inbound.Add(data)
		c.mu.Unlock()
		c.sink.OnChannelSignal(c.id, port.SignalData)
	}

	if c.state.CompareAndSwap(int32(StateConnected), int32(StateClosed)) {
		_ = ws.Close()
		c.sink.OnChannelSignal(c.id, port.SignalClose)
	}
}
