// If you are AI: This file implements the consumer's port operations: open, write, close,
// control and the drain scan that delivers inbound data and one-time terminal status.

package bridge

import (
	"errors"
	"fmt"
	"strconv"

	"portbridge/internal/core/port"
	"portbridge/internal/core/subject"
)

// DrainKind says what a drained record carries.
type DrainKind uint8

const (
	DrainData DrainKind = iota
	DrainEOF
	DrainRefused
)

// String returns a human-readable representation of the kind.
func (k DrainKind) String() string {
	switch k {
	case DrainData:
		return "data"
	case DrainEOF:
		return "eof"
	case DrainRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// Drained is one record returned by DrainPort.
type Drained struct {
	Port    *port.Port
	Kind    DrainKind
	Payload []byte
	Subject string // Concrete subject for pub/sub data
}

// OpenPort opens the port(s) a transport creates for name.
// tcpip_connect returns both handles; other transports return one and leave the other nil.
// Malformed names and unknown transports return nil handles and an error.
func (b *Bridge) OpenPort(name, transport string) (rd, wr *port.Port, err error) {
	if b.closed.Load() {
		return nil, nil, ErrClosed
	}

	t, err := port.ParseTransport(transport)
	if err != nil {
		b.log.Warn().Err(err).Str("name", name).Msg("port open rejected")
		return nil, nil, err
	}
	addr, err := port.ParseName(name)
	if err != nil {
		b.log.Warn().Err(err).Str("transport", transport).Msg("port open rejected")
		return nil, nil, err
	}

	if err := checkAddress(t, addr); err != nil {
		b.log.Warn().Err(err).Str("name", name).Str("transport", t.String()).Msg("port open rejected")
		return nil, nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync()

	readKind, readOK, writeKind, writeOK := t.Kinds()
	opts := port.Options{MaxPending: b.maxPending, AutoClose: true}

	b.nextID++
	id := b.nextID

	var ch port.Channel
	refused := false
	switch {
	case t.NeedsChannel():
		if b.dialer == nil {
			b.nextID--
			return nil, nil, ErrNoDialer
		}
		url := addr.URL(b.scheme)
		ch, err = b.dialer.Dial(id, url, t == port.TransportDatagramSend)
		if err != nil {
			// Surface the failure through the port's final status, like an async refusal.
			b.log.Warn().Err(err).Str("url", url).Msg("channel dial failed")
			ch, refused = nil, true
		}

	case t.IsPubSub():
		if b.broker == nil {
			b.nextID--
			return nil, nil, ErrNoBroker
		}
		opts.Subject = addr.Endpoint
		if t == port.TransportPublish {
			ch = &brokerChannel{broker: b.broker, subject: addr.Endpoint}
			opts.Connected = b.broker.Connected()
		} else if err := b.broker.Subscribe(addr.Endpoint); err != nil {
			b.nextID--
			b.log.Warn().Err(err).Str("subject", addr.Endpoint).Msg("subscribe failed")
			return nil, nil, fmt.Errorf("subscribe %s: %w", addr.Endpoint, err)
		}
	}

	if writeOK {
		wr = port.New(id, name, writeKind, ch, opts)
		b.registry.Add(wr)
	}
	if readOK {
		rd = port.New(id, name, readKind, ch, opts)
		b.registry.Add(rd)
	}
	if refused {
		for _, p := range b.registry.Lookup(id) {
			_ = p.Apply(port.SignalError)
		}
	}

	b.log.Info().
		Uint64("channel", uint64(id)).
		Str("name", name).
		Str("transport", t.String()).
		Bool("read", readOK).
		Bool("write", writeOK).
		Msg("port opened")
	return rd, wr, nil
}

// checkAddress validates the name parts a transport needs.
func checkAddress(t port.Transport, addr port.Address) error {
	if t.IsPubSub() {
		if !subject.Valid(addr.Endpoint) {
			return fmt.Errorf("%w: invalid subject %q", port.ErrBadName, addr.Endpoint)
		}
		if t == port.TransportPublish && subject.HasWildcard(addr.Endpoint) {
			return fmt.Errorf("%w: cannot publish to wildcard subject %q", port.ErrBadName, addr.Endpoint)
		}
		return nil
	}
	if !addr.HasHost() {
		return fmt.Errorf("%w: %s requires endpoint@host", port.ErrBadName, t)
	}
	return nil
}

// WritePort writes data through a write port. See port.Port.Write for the semantics.
func (b *Bridge) WritePort(p *port.Port, data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync()

	if p == nil || !b.registry.Contains(p) {
		return 0, port.ErrPortClosed
	}
	n, err := p.Write(data)
	if errors.Is(err, port.ErrPendingFull) {
		b.log.Warn().Err(err).Str("port", p.Name()).Msg("write rejected")
	}
	return n, err
}

// ClosePort unregisters p. The host channel is closed with the last port using it.
func (b *Bridge) ClosePort(p *port.Port) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync()

	if p == nil || !b.registry.Contains(p) {
		return port.ErrPortClosed
	}
	return b.closeLocked(p)
}

func (b *Bridge) closeLocked(p *port.Port) error {
	id, name, ch := p.ID(), p.Name(), p.Channel()
	pending := p.Pending()
	b.registry.Remove(p)

	if pending > 0 {
		b.log.Warn().Str("port", name).Int("pending", pending).Msg("closing port with unsent bytes")
	}

	if p.Kind() == port.KindPubSubListen && b.broker != nil {
		if err := b.broker.Unsubscribe(p.Subject()); err != nil {
			b.log.Warn().Err(err).Str("subject", p.Subject()).Msg("unsubscribe failed")
		}
		if n := b.store.Purge(b.listening); n > 0 {
			b.log.Debug().Int("messages", n).Str("subject", p.Subject()).Msg("purged unclaimed messages")
		}
	}

	var err error
	if ch != nil && len(b.registry.Lookup(id)) == 0 {
		if err = ch.Close(); err != nil {
			b.log.Debug().Err(err).Uint64("channel", uint64(id)).Msg("channel close failed")
		}
	}
	b.log.Info().Uint64("channel", uint64(id)).Str("name", name).Msg("port closed")
	return err
}

// ReleasePort is called when the consumer drops its last reference to p.
// Auto-close ports are closed; others stay registered until ClosePort.
func (b *Bridge) ReleasePort(p *port.Port) {
	if p == nil || !p.AutoClose() {
		return
	}
	_ = b.ClosePort(p)
}

// DrainPort scans ports most-recent-first and returns the first thing waiting:
// inbound data on a readable or listening port, or the one-time EOF or refusal of a
// read port. ok is false when nothing is waiting.
func (b *Bridge) DrainPort() (d Drained, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync()

	b.registry.Each(func(p *port.Port) bool {
		d, ok = b.drainOne(p)
		return !ok
	})
	return d, ok
}

func (b *Bridge) drainOne(p *port.Port) (Drained, bool) {
	dir := p.Direction()
	if dir == port.DirWrite {
		return Drained{}, false
	}

	if p.Kind().IsPubSub() {
		if msg, ok := b.store.Take(p.Subject()); ok {
			return Drained{Port: p, Kind: DrainData, Payload: msg.Payload, Subject: msg.Subject}, true
		}
		return Drained{}, false
	}

	if p.Readable() || dir == port.DirListen {
		if data, ok := p.Receive(); ok {
			return Drained{Port: p, Kind: DrainData, Payload: data}, true
		}
	}

	if st, ok := p.TakeFinalStatus(); ok {
		kind := DrainEOF
		if st == port.FinalRefused {
			kind = DrainRefused
		}
		return Drained{Port: p, Kind: kind}, true
	}
	return Drained{}, false
}

// Port control commands understood by CtlPort.
const (
	CtlState     = "state"
	CtlPending   = "pending"
	CtlSubject   = "subject"
	CtlChannel   = "channel"
	CtlReadable  = "readable"
	CtlFlush     = "flush"
	CtlAutoClose = "autoclose"
)

// CtlPort queries or adjusts a port. autoclose with an argument sets the flag and
// returns the previous value.
func (b *Bridge) CtlPort(p *port.Port, cmd string, arg string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync()

	if p == nil || !b.registry.Contains(p) {
		return "", port.ErrPortClosed
	}

	switch cmd {
	case CtlState:
		return p.State().String(), nil
	case CtlPending:
		return strconv.Itoa(p.Pending()), nil
	case CtlSubject:
		return p.Subject(), nil
	case CtlChannel:
		return strconv.FormatUint(uint64(p.ID()), 10), nil
	case CtlReadable:
		return strconv.FormatBool(p.Readable()), nil
	case CtlFlush:
		if err := p.Flush(); err != nil {
			return strconv.Itoa(p.Pending()), err
		}
		return "0", nil
	case CtlAutoClose:
		prev := strconv.FormatBool(p.AutoClose())
		if arg != "" {
			v, err := strconv.ParseBool(arg)
			if err != nil {
				return prev, fmt.Errorf("autoclose %q: %w", arg, err)
			}
			p.SetAutoClose(v)
		}
		return prev, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownControl, cmd)
	}
}
