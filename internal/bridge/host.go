// If you are AI: This file defines the host-side collaborators the bridge talks to:
// the message channel dialer for stream/datagram ports and the pub/sub broker.

package bridge

import (
	"errors"

	"portbridge/internal/core/port"
)

var (
	// ErrNoDialer is returned when a stream or datagram port is opened without a host dialer.
	ErrNoDialer = errors.New("no host channel dialer configured")
	// ErrNoBroker is returned when a pub/sub port is opened without a broker.
	ErrNoBroker = errors.New("no pub/sub broker configured")
	// ErrClosed is returned by consumer calls after Close.
	ErrClosed = errors.New("bridge closed")
	// ErrUnknownControl is returned by CtlPort for unrecognised commands.
	ErrUnknownControl = errors.New("unknown port control command")
)

// Dialer opens host message channels.
// Dial must not block on the network: connection progress is reported later
// through the bridge's OnChannelEvent callback, tagged with id.
type Dialer interface {
	Dial(id port.ChannelID, url string, datagram bool) (port.Channel, error)
}

// Broker is the publish/subscribe host collaborator.
// Inbound messages arrive through OnTopicMessage; connection changes through OnBrokerState.
// Subscribe and Unsubscribe are called once per listen port, so a broker counts references.
type Broker interface {
	Publish(subject string, payload []byte) error
	Subscribe(subject string) error
	Unsubscribe(subject string) error
	Connected() bool
}

// brokerChannel adapts a broker subject to the port Channel contract.
type brokerChannel struct {
	broker  Broker
	subject string
}

// Send publishes p on the subject. The payload is copied because brokers may
// hand it to a background writer.
func (c *brokerChannel) Send(p []byte) error {
	return c.broker.Publish(c.subject, append([]byte(nil), p...))
}

// Receive always reports nothing: inbound pub/sub data goes through the subject store.
func (c *brokerChannel) Receive() ([]byte, bool) {
	return nil, false
}

// Close is a no-op; the broker connection is shared.
func (c *brokerChannel) Close() error {
	return nil
}
