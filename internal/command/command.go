// If you are AI: This file implements the upstream command dispatch: a verb plus up to three
// string arguments routed to a registered handler that returns one result value.

package command

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// MaxArgs is the most arguments a verb accepts.
const MaxArgs = 3

var (
	// ErrUnknownVerb is returned for verbs with no handler.
	ErrUnknownVerb = errors.New("command: unknown verb")
	// ErrUnsupported is returned for verbs this host acknowledges but does not implement.
	ErrUnsupported = errors.New("command: not supported in this build")
	// ErrTooManyArgs is returned when more than MaxArgs arguments are passed.
	ErrTooManyArgs = errors.New("command: too many arguments")
	// ErrMissingArg is returned when a verb's required argument is absent.
	ErrMissingArg = errors.New("command: missing argument")
	// ErrUnsetEnv is returned by env for a variable that is not set, as opposed to set and empty.
	ErrUnsetEnv = errors.New("command: environment variable not set")
	// ErrStopped is returned for commands submitted after the loop that runs them has exited.
	ErrStopped = errors.New("command: consumer loop stopped")
)

// Handler runs one verb.
type Handler func(args []string) (string, error)

// unsupportedVerbs are acknowledged with ErrUnsupported rather than ErrUnknownVerb.
var unsupportedVerbs = []string{"shell", "browse", "help", "warp", "midi_devices"}

// Dispatcher routes verbs to handlers.
// Lock expectations: Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      zerolog.Logger
}

// New creates a dispatcher with the built-in verbs registered.
func New(version string, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		log:      logger.With().Str("component", "command").Logger(),
	}
	d.Register("env", envVerb)
	d.Register("version", func([]string) (string, error) { return version, nil })
	d.Register("localaddresses", localAddresses)
	for _, verb := range unsupportedVerbs {
		d.Register(verb, unsupported(verb))
	}
	return d
}

// Register installs h for verb, replacing any existing handler. Verbs are case-insensitive.
func (d *Dispatcher) Register(verb string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[strings.ToLower(verb)] = h
}

// Verbs returns the registered verbs in sorted order.
func (d *Dispatcher) Verbs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	verbs := make([]string, 0, len(d.handlers))
	for v := range d.handlers {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// Dispatch runs verb with args.
func (d *Dispatcher) Dispatch(verb string, args ...string) (string, error) {
	if len(args) > MaxArgs {
		return "", fmt.Errorf("%w: %s got %d", ErrTooManyArgs, verb, len(args))
	}

	d.mu.RLock()
	h, ok := d.handlers[strings.ToLower(verb)]
	d.mu.RUnlock()
	if !ok {
		d.log.Debug().Str("verb", verb).Msg("unknown verb")
		return "", fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}

	result, err := h(args)
	if err != nil && !errors.Is(err, ErrUnsupported) {
		d.log.Debug().Err(err).Str("verb", verb).Msg("command failed")
	}
	return result, err
}

func envVerb(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("%w: env needs a variable name", ErrMissingArg)
	}
	v, ok := os.LookupEnv(args[0])
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsetEnv, args[0])
	}
	return v, nil
}

// localAddresses returns the host's non-loopback IP addresses, space separated.
// Falls back to 127.0.0.1 when none are found.
func localAddresses([]string) (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}
	var ips []string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ips = append(ips, ipnet.IP.String())
	}
	if len(ips) == 0 {
		return "127.0.0.1", nil
	}
	return strings.Join(ips, " "), nil
}

func unsupported(verb string) Handler {
	return func([]string) (string, error) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, verb)
	}
}
