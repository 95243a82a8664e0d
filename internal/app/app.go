// If you are AI: This file implements the consumer loop: it opens the configured ports and then
// polls the bridge once per tick, draining keys, MIDI, mouse and port traffic.

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"portbridge/internal/bridge"
	"portbridge/internal/command"
	"portbridge/internal/config"
	"portbridge/internal/core/port"
)

// DefaultTick is how long one Poll may wait.
const DefaultTick = 50 * time.Millisecond

// ErrQuit is returned by Run when the user asked to quit.
var ErrQuit = errors.New("quit requested")

// request is a command handed to the consumer loop by another goroutine.
type request struct {
	verb  string
	args  []string
	reply chan reply
}

type reply struct {
	out string
	err error
}

// openPort is a configured port and the handles its transport returned.
type openPort struct {
	cfg config.PortConfig
	rd  *port.Port
	wr  *port.Port
}

// App drives the bridge from the consumer side.
type App struct {
	bridge *bridge.Bridge
	cmd    *command.Dispatcher
	log    zerolog.Logger
	tick   time.Duration
	ports  []*openPort
	status func(string)
	midi   []byte

	requests chan request
	done     chan struct{}
	stopOnce sync.Once

	// Counters for the status line.
	keys      int
	midiBytes int
	portBytes int
}

// New creates the consumer loop over b.
func New(b *bridge.Bridge, cmd *command.Dispatcher, logger zerolog.Logger) *App {
	a := &App{
		bridge: b,
		cmd:    cmd,
		log:    logger.With().Str("component", "app").Logger(),
		tick:   DefaultTick,
		midi:   make([]byte, 256),

		requests: make(chan request),
		done:     make(chan struct{}),
	}
	cmd.Register("ports", a.portsVerb)
	cmd.Register("ctlport", a.ctlPortVerb)
	return a
}

// SetTick changes the Poll wait.
func (a *App) SetTick(d time.Duration) {
	if d > 0 {
		a.tick = d
	}
}

// SetStatus installs a callback that receives a one-line summary after each step.
func (a *App) SetStatus(fn func(string)) {
	a.status = fn
}

// OpenPorts opens every configured port. Ports that fail to open are logged and skipped;
// the returned error joins their failures.
func (a *App) OpenPorts(cfgs []config.PortConfig) error {
	var errs []error
	for _, pc := range cfgs {
		rd, wr, err := a.bridge.OpenPort(pc.Name, pc.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("open %s (%s): %w", pc.Name, pc.Type, err))
			continue
		}
		a.ports = append(a.ports, &openPort{cfg: pc, rd: rd, wr: wr})
	}
	return errors.Join(errs...)
}

// Run steps until ctx is done or the user quits. Open ports are closed on return.
func (a *App) Run(ctx context.Context) error {
	defer a.stopOnce.Do(func() { close(a.done) })
	defer a.closePorts()

	a.log.Info().Int("ports", len(a.ports)).Dur("tick", a.tick).Msg("consumer loop started")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if a.Step(ctx) {
			a.log.Info().Msg("quit requested")
			return ErrQuit
		}
	}
}

// Step polls once and drains everything waiting. Reports whether the user asked to quit.
func (a *App) Step(ctx context.Context) bool {
	quit := false
	switch a.bridge.Poll(ctx, a.tick) {
	case bridge.StatusResize:
		w, h := a.bridge.Size()
		a.log.Debug().Int("width", w).Int("height", h).Msg("resized")
	case bridge.StatusConsole:
		quit = a.drainKeys()
	}

	a.drainMIDI()
	a.drainMouse()
	a.drainPorts()
	a.serveRequests()

	if a.status != nil {
		a.status(a.summary())
	}
	return quit
}

// drainKeys echoes keys to echo ports. Ctrl+C and 'q' quit.
func (a *App) drainKeys() bool {
	for {
		ev, ok := a.bridge.GetConsoleEvent()
		if !ok {
			return false
		}
		a.keys++
		if (ev.Ctrl && ev.Keycode == 'c') || (!ev.Ctrl && ev.Keycode == 'q') {
			return true
		}

		code := ev.Code()
		a.log.Debug().Int("key", code).Bool("ctrl", ev.Ctrl).Msg("key")
		for _, p := range a.ports {
			if !p.cfg.Echo || p.wr == nil {
				continue
			}
			if _, err := a.bridge.WritePort(p.wr, []byte(string(rune(code)))); err != nil {
				a.log.Warn().Err(err).Str("port", p.cfg.Name).Msg("echo write failed")
			}
		}
	}
}

func (a *App) drainMIDI() {
	for {
		n, device := a.bridge.GetMIDI(a.midi)
		if n == 0 {
			return
		}
		a.midiBytes += n
		a.log.Debug().Int("device", device).Hex("data", a.midi[:n]).Msg("midi")
	}
}

func (a *App) drainMouse() {
	for {
		ev, ok := a.bridge.NextMouse()
		if !ok {
			return
		}
		a.log.Debug().
			Str("kind", ev.Kind.String()).
			Int("x", ev.X).
			Int("y", ev.Y).
			Int("buttons", ev.Buttons).
			Msg("mouse")
	}
}

// drainPorts logs inbound data and closes read ports once their final status arrives.
func (a *App) drainPorts() {
	for {
		d, ok := a.bridge.DrainPort()
		if !ok {
			return
		}
		switch d.Kind {
		case bridge.DrainData:
			a.portBytes += len(d.Payload)
			ev := a.log.Info().Str("port", d.Port.Name()).Str("size", humanize.Bytes(uint64(len(d.Payload))))
			if d.Subject != "" {
				ev = ev.Str("subject", d.Subject)
			}
			ev.Bytes("data", d.Payload).Msg("port data")
		default:
			a.log.Info().Str("port", d.Port.Name()).Str("status", d.Kind.String()).Msg("port finished")
			a.forget(d.Port)
			_ = a.bridge.ClosePort(d.Port)
		}
	}
}

// forget drops a closed handle so echo writes stop using it.
func (a *App) forget(p *port.Port) {
	for _, op := range a.ports {
		if op.rd == p {
			op.rd = nil
		}
		if op.wr == p {
			op.wr = nil
		}
	}
}

func (a *App) closePorts() {
	for _, op := range a.ports {
		if op.rd != nil {
			a.bridge.ReleasePort(op.rd)
		}
		if op.wr != nil {
			a.bridge.ReleasePort(op.wr)
		}
	}
	a.ports = nil
}

func (a *App) summary() string {
	return fmt.Sprintf("keys %d  midi %s  ports %d  in %s  (q quits)",
		a.keys,
		humanize.Bytes(uint64(a.midiBytes)),
		len(a.bridge.Ports()),
		humanize.Bytes(uint64(a.portBytes)))
}

// Command runs an upstream command verb. Port verbs read the consumer's port list, so
// Command belongs on the goroutine running Run; other goroutines use Submit.
func (a *App) Command(verb string, args ...string) (string, error) {
	return a.cmd.Dispatch(verb, args...)
}

// Submit hands a command to the consumer loop and waits for its result. It returns
// command.ErrStopped once Run has exited, or ctx's error if the loop does not get to it.
func (a *App) Submit(ctx context.Context, verb string, args ...string) (string, error) {
	req := request{verb: verb, args: args, reply: make(chan reply, 1)}
	select {
	case a.requests <- req:
	case <-a.done:
		return "", command.ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// serveRequests runs every command submitted since the last step.
func (a *App) serveRequests() {
	for {
		select {
		case req := <-a.requests:
			out, err := a.Command(req.verb, req.args...)
			if err != nil {
				a.log.Debug().Err(err).Str("verb", req.verb).Msg("command failed")
			}
			req.reply <- reply{out: out, err: err}
		default:
			return
		}
	}
}

// portsVerb lists open port names, newest first.
func (a *App) portsVerb([]string) (string, error) {
	infos := a.bridge.Ports()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Direction+":"+info.Name)
	}
	return strings.Join(names, " "), nil
}

// ctlPortVerb runs ctlport <name> <command> [arg] against a configured port,
// preferring its write handle.
func (a *App) ctlPortVerb(args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("%w: ctlport needs a port name and a command", command.ErrMissingArg)
	}
	arg := ""
	if len(args) > 2 {
		arg = args[2]
	}
	for _, op := range a.ports {
		if op.cfg.Name != args[0] {
			continue
		}
		p := op.wr
		if p == nil {
			p = op.rd
		}
		if p == nil {
			break
		}
		return a.bridge.CtlPort(p, args[1], arg)
	}
	return "", fmt.Errorf("ctlport %s: %w", args[0], port.ErrPortClosed)
}
