// If you are AI: This file defines the enumerations used by ports: directions, transport kinds,
// connection states, host lifecycle signals and transport request tokens.

package port

import (
	"fmt"
	"strings"
)

// ChannelID is the opaque numeric id shared by all ports created by one open request.
// It is also the id the host channel reports lifecycle events with.
type ChannelID uint64

// BrokerChannel is the reserved id carrying the pub/sub broker connection signal.
const BrokerChannel ChannelID = 0

// Direction is the data direction of a port.
type Direction uint8

const (
	// DirRead ports deliver inbound data to the consumer.
	DirRead Direction = iota
	// DirWrite ports carry outbound data to the host.
	DirWrite
	// DirListen ports are placeholders waiting for inbound traffic.
	DirListen
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirRead:
		return "read"
	case DirWrite:
		return "write"
	case DirListen:
		return "listen"
	default:
		return "unknown"
	}
}

// Kind is the transport kind of a single port.
type Kind uint8

const (
	KindStreamRead Kind = iota
	KindStreamWrite
	KindStreamListen
	KindDatagramWrite
	KindDatagramListen
	KindPubSubWrite
	KindPubSubListen
)

// Direction returns the data direction implied by the kind.
func (k Kind) Direction() Direction {
	switch k {
	case KindStreamRead:
		return DirRead
	case KindStreamWrite, KindDatagramWrite, KindPubSubWrite:
		return DirWrite
	default:
		return DirListen
	}
}

// IsPubSub reports whether the kind belongs to the publish/subscribe overlay.
func (k Kind) IsPubSub() bool {
	return k == KindPubSubWrite || k == KindPubSubListen
}

// IsListen reports whether the kind starts in the Listening placeholder state.
func (k Kind) IsListen() bool {
	return k.Direction() == DirListen
}

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindStreamRead:
		return "stream-read"
	case KindStreamWrite:
		return "stream-write"
	case KindStreamListen:
		return "stream-listen"
	case KindDatagramWrite:
		return "datagram-write"
	case KindDatagramListen:
		return "datagram-listen"
	case KindPubSubWrite:
		return "pubsub-write"
	case KindPubSubListen:
		return "pubsub-listen"
	default:
		return "unknown"
	}
}

// State is the connection state of a port.
type State uint8

const (
	StateUnconnected State = iota
	StateConnected
	StateListening
	StateClosed
	StateRefused
)

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateRefused
}

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	case StateRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// Signal is a lifecycle notification reported by the host channel.
type Signal uint8

const (
	SignalOpen Signal = iota
	SignalData
	SignalClose
	SignalError
)

// ParseSignal maps the host's event tag to a Signal.
func ParseSignal(tag string) (Signal, error) {
	switch tag {
	case "open":
		return SignalOpen, nil
	case "data":
		return SignalData, nil
	case "close":
		return SignalClose, nil
	case "error":
		return SignalError, nil
	default:
		return 0, fmt.Errorf("unknown channel event %q", tag)
	}
}

// String returns the host tag for the signal.
func (s Signal) String() string {
	switch s {
	case SignalOpen:
		return "open"
	case SignalData:
		return "data"
	case SignalClose:
		return "close"
	case SignalError:
		return "error"
	default:
		return "unknown"
	}
}

// Transport is the type token of an open request.
type Transport uint8

const (
	TransportConnect Transport = iota
	TransportListen
	TransportDatagramSend
	TransportDatagramListen
	TransportPublish
	TransportSubscribe
)

var transportTokens = map[string]Transport{
	"tcpip_connect":  TransportConnect,
	"tcpip_listen":   TransportListen,
	"udp_send":       TransportDatagramSend,
	"udp_listen":     TransportDatagramListen,
	"nats_publish":   TransportPublish,
	"nats_subscribe": TransportSubscribe,
}

// ParseTransport maps a transport type token to a Transport.
// Tokens are case-insensitive.
func ParseTransport(token string) (Transport, error) {
	t, ok := transportTokens[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTransport, token)
	}
	return t, nil
}

// String returns the canonical token for the transport.
func (t Transport) String() string {
	for tok, v := range transportTokens {
		if v == t {
			return tok
		}
	}
	return "unknown"
}

// Kinds returns the port kinds created for the transport.
// ok is false for a side the transport does not create.
func (t Transport) Kinds() (read Kind, readOK bool, write Kind, writeOK bool) {
	switch t {
	case TransportConnect:
		return KindStreamRead, true, KindStreamWrite, true
	case TransportListen:
		return KindStreamListen, true, 0, false
	case TransportDatagramSend:
		return 0, false, KindDatagramWrite, true
	case TransportDatagramListen:
		return KindDatagramListen, true, 0, false
	case TransportPublish:
		return 0, false, KindPubSubWrite, true
	case TransportSubscribe:
		return KindPubSubListen, true, 0, false
	default:
		return 0, false, 0, false
	}
}

// IsPubSub reports whether the transport uses the pub/sub broker.
func (t Transport) IsPubSub() bool {
	return t == TransportPublish || t == TransportSubscribe
}

// NeedsChannel reports whether the transport dials a host message channel.
func (t Transport) NeedsChannel() bool {
	return t == TransportConnect || t == TransportDatagramSend
}
