// If you are AI: This file parses port names of the form endpoint@host[:port].

package port

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Address is a parsed port name.
type Address struct {
	Endpoint string // Path on the remote host, or the subject for pub/sub
	Host     string // Empty when the name carries no @host part
	Port     int    // 0 when omitted
}

// ParseName parses endpoint@host[:port].
// A name without '@' yields an address with an empty Host; callers that need
// a host must check HasHost.
func ParseName(name string) (Address, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Address{}, fmt.Errorf("%w: empty name", ErrBadName)
	}

	at := strings.LastIndexByte(name, '@')
	if at < 0 {
		return Address{Endpoint: name}, nil
	}

	addr := Address{Endpoint: name[:at]}
	if addr.Endpoint == "" {
		return Address{}, fmt.Errorf("%w: %q has no endpoint", ErrBadName, name)
	}

	hostPart := name[at+1:]
	if hostPart == "" {
		return Address{}, fmt.Errorf("%w: %q has no host after '@'", ErrBadName, name)
	}

	host, portStr, err := net.SplitHostPort(hostPart)
	if err != nil {
		// No port given
		if strings.Contains(hostPart, ":") {
			return Address{}, fmt.Errorf("%w: %q: %v", ErrBadName, name, err)
		}
		addr.Host = hostPart
		return addr, nil
	}
	if host == "" {
		return Address{}, fmt.Errorf("%w: %q has no host", ErrBadName, name)
	}

	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return Address{}, fmt.Errorf("%w: %q: port must be between 1 and 65535", ErrBadName, name)
	}
	addr.Host = host
	addr.Port = p
	return addr, nil
}

// HasHost reports whether the name included an @host part.
func (a Address) HasHost() bool {
	return a.Host != ""
}

// HostPort returns host[:port].
func (a Address) HostPort() string {
	if a.Port == 0 {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// URL returns the channel URL for the address, e.g. ws://host:port/endpoint.
func (a Address) URL(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		Host:   a.HostPort(),
		Path:   "/" + strings.TrimPrefix(a.Endpoint, "/"),
	}
	return u.String()
}

// String returns the canonical name.
func (a Address) String() string {
	if !a.HasHost() {
		return a.Endpoint
	}
	return a.Endpoint + "@" + a.HostPort()
}
