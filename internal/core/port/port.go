// If you are AI: This file implements the Port type: the connection state machine and the
// per-port write-behind queue that defers outbound bytes until the port is connected.

package port

import (
	"fmt"
)

// DefaultMaxPending bounds the write-behind queue when Options.MaxPending is zero.
const DefaultMaxPending = 1 << 20

// Channel is the host-provided message channel behind a port.
// Implementations must not retain p after Send returns.
type Channel interface {
	// Send transmits p as one message.
	Send(p []byte) error
	// Receive returns the next inbound message buffered by the host, if any.
	Receive() ([]byte, bool)
	// Close releases the host channel.
	Close() error
}

// FinalStatus is the one-time terminal indication delivered for a read port.
type FinalStatus uint8

const (
	// FinalEOF is delivered once after the port reaches Closed.
	FinalEOF FinalStatus = iota + 1
	// FinalRefused is delivered once after the port reaches Refused.
	FinalRefused
)

// String returns a human-readable representation of the final status.
func (f FinalStatus) String() string {
	switch f {
	case FinalEOF:
		return "eof"
	case FinalRefused:
		return "refused"
	default:
		return "none"
	}
}

// Options configures a new port.
type Options struct {
	Subject    string // Topic for pub/sub kinds
	MaxPending int    // Cap on pending-outbound bytes (<=0 uses DefaultMaxPending)
	Connected  bool   // Start in Connected instead of Unconnected (non-listen kinds)
	AutoClose  bool   // Close when the consumer releases its handle
}

// Port is one directional or listening endpoint over some transport.
// Lock expectations: Not safe for concurrent use; owned by the consumer side of the bridge.
// Allocation: pending grows by append while unconnected and is released on flush or close.
type Port struct {
	id             ChannelID
	name           string
	kind           Kind
	state          State
	readable       bool
	open           bool
	autoClose      bool
	finalDelivered bool
	pending        []byte
	maxPending     int
	subject        string
	channel        Channel

	slot int // registry arena index, -1 when unlinked
}

// New creates a port. ch may be nil for listen kinds.
func New(id ChannelID, name string, kind Kind, ch Channel, opts Options) *Port {
	p := &Port{
		id:         id,
		name:       name,
		kind:       kind,
		state:      StateUnconnected,
		open:       true,
		autoClose:  opts.AutoClose,
		maxPending: opts.MaxPending,
		subject:    opts.Subject,
		channel:    ch,
		slot:       -1,
	}
	if p.maxPending <= 0 {
		p.maxPending = DefaultMaxPending
	}
	if kind.IsListen() {
		p.state = StateListening
	} else if opts.Connected {
		p.state = StateConnected
	}
	return p
}

// ID returns the channel id.
func (p *Port) ID() ChannelID { return p.id }

// Name returns the name the port was opened with.
func (p *Port) Name() string { return p.name }

// Kind returns the transport kind.
func (p *Port) Kind() Kind { return p.kind }

// Direction returns the data direction.
func (p *Port) Direction() Direction { return p.kind.Direction() }

// State returns the connection state.
func (p *Port) State() State { return p.state }

// Subject returns the pub/sub topic, empty for other kinds.
func (p *Port) Subject() string { return p.subject }

// IsOpen reports whether the port has not been closed by the consumer.
func (p *Port) IsOpen() bool { return p.open }

// Readable reports whether the host signalled inbound data not yet drained.
func (p *Port) Readable() bool { return p.readable }

// AutoClose reports whether releasing the handle closes the port.
func (p *Port) AutoClose() bool { return p.autoClose }

// SetAutoClose changes the release behaviour.
func (p *Port) SetAutoClose(v bool) { p.autoClose = v }

// Pending returns the number of bytes waiting in the write-behind queue.
func (p *Port) Pending() int { return len(p.pending) }

// Channel returns the host channel, nil for listen placeholders.
func (p *Port) Channel() Channel { return p.channel }

// Apply feeds a host lifecycle signal into the state machine.
// Entering Connected flushes the pending queue once; the returned error is the
// flush error, in which case the bytes stay queued.
func (p *Port) Apply(sig Signal) error {
	if !p.open {
		return nil
	}

	switch sig {
	case SignalOpen:
		switch p.state {
		case StateUnconnected:
			p.state = StateConnected
			return p.Flush()
		case StateConnected:
			// Re-delivered open (broker reconnect): retry whatever is still queued.
			return p.Flush()
		}
	case SignalData:
		if p.Direction() != DirWrite {
			p.readable = true
		}
	case SignalClose:
		if !p.state.Terminal() {
			p.state = StateClosed
			p.finalDelivered = false
		}
	case SignalError:
		// Refused is only reachable before the connection opened. Errors on an
		// open connection are followed by a close signal.
		if p.state == StateUnconnected {
			p.state = StateRefused
			p.finalDelivered = false
		}
	}
	return nil
}

// Write implements enqueue-or-send.
// Connected: bytes are sent now; a send failure queues them and still reports
// them accepted. Unconnected: bytes are queued. Closed/Refused: nothing is accepted.
func (p *Port) Write(b []byte) (int, error) {
	if !p.open {
		return 0, ErrPortClosed
	}
	if p.Direction() != DirWrite {
		return 0, ErrNotWritable
	}
	if len(b) == 0 {
		return 0, nil
	}

	switch p.state {
	case StateUnconnected:
		if err := p.enqueue(b); err != nil {
			return 0, err
		}
		return len(b), nil

	case StateConnected:
		if len(p.pending) > 0 {
			// Earlier bytes are still queued: append behind them to keep order.
			if err := p.enqueue(b); err != nil {
				return 0, err
			}
			_ = p.Flush()
			return len(b), nil
		}
		if p.channel == nil {
			if err := p.enqueue(b); err != nil {
				return 0, err
			}
			return len(b), nil
		}
		if err := p.channel.Send(b); err != nil {
			if qerr := p.enqueue(b); qerr != nil {
				return 0, qerr
			}
		}
		return len(b), nil

	case StateClosed, StateRefused:
		return 0, ErrPortClosed

	default:
		return 0, ErrNotWritable
	}
}

// Flush sends the whole pending queue as one write.
// On failure the queue is kept intact.
func (p *Port) Flush() error {
	if len(p.pending) == 0 || p.channel == nil {
		return nil
	}
	if err := p.channel.Send(p.pending); err != nil {
		return fmt.Errorf("flush %d pending bytes on channel %d: %w", len(p.pending), p.id, err)
	}
	p.pending = nil
	return nil
}

// enqueue appends to the write-behind queue, rejecting writes past the cap.
func (p *Port) enqueue(b []byte) error {
	if len(p.pending)+len(b) > p.maxPending {
		return fmt.Errorf("%w: %d queued, %d more, cap %d", ErrPendingFull, len(p.pending), len(b), p.maxPending)
	}
	p.pending = append(p.pending, b...)
	return nil
}

// TakeFinalStatus returns the terminal indication for a read port exactly once.
func (p *Port) TakeFinalStatus() (FinalStatus, bool) {
	if p.Direction() != DirRead || p.finalDelivered {
		return 0, false
	}
	switch p.state {
	case StateClosed:
		p.finalDelivered = true
		return FinalEOF, true
	case StateRefused:
		p.finalDelivered = true
		return FinalRefused, true
	}
	return 0, false
}

// FinalDelivered reports whether the terminal indication has been consumed.
func (p *Port) FinalDelivered() bool { return p.finalDelivered }

// Receive pulls the next inbound message from the host channel.
// The readable flag is cleared once the channel reports nothing buffered.
func (p *Port) Receive() ([]byte, bool) {
	if !p.open || p.channel == nil {
		p.readable = false
		return nil, false
	}
	data, ok := p.channel.Receive()
	if !ok {
		p.readable = false
		return nil, false
	}
	return data, true
}

// release marks the port unusable and drops its buffers.
// The host channel is closed by the owner, which knows whether a sibling port still uses it.
func (p *Port) release() {
	p.open = false
	p.readable = false
	p.pending = nil
	p.name = ""
}

// Info is a read-only snapshot of a port for diagnostics.
type Info struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Direction      string `json:"direction"`
	State          string `json:"state"`
	Subject        string `json:"subject,omitempty"`
	Readable       bool   `json:"readable"`
	Pending        int    `json:"pending"`
	FinalDelivered bool   `json:"final_delivered"`
}

// Info returns a snapshot of the port.
func (p *Port) Info() Info {
	return Info{
		ID:             uint64(p.id),
		Name:           p.name,
		Kind:           p.kind.String(),
		Direction:      p.Direction().String(),
		State:          p.state.String(),
		Subject:        p.subject,
		Readable:       p.readable,
		Pending:        len(p.pending),
		FinalDelivered: p.finalDelivered,
	}
}
