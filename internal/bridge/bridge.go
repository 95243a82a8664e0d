// If you are AI: This file implements the Bridge, the single object joining host callbacks
// (producers) to the consumer's poll/drain calls. It owns every buffer and the port registry.

package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"portbridge/internal/config"
	"portbridge/internal/core/port"
	"portbridge/internal/core/ring"
	"portbridge/internal/core/subject"
)

// Options sizes the bridge buffers.
// Zero values fall back to the defaults used by config.Default.
type Options struct {
	MIDICapacity    uint32
	KeyCapacity     uint32
	MouseCapacity   uint32
	SignalCapacity  uint32
	TopicCapacity   uint32
	SubjectCapacity int
	MaxPending      int
	Scheme          string // URL scheme handed to the dialer
	Logger          zerolog.Logger
}

// OptionsFromConfig builds bridge options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config, logger zerolog.Logger) Options {
	return Options{
		MIDICapacity:    cfg.Bridge.MIDICapacity,
		KeyCapacity:     cfg.Bridge.KeyCapacity,
		MouseCapacity:   cfg.Bridge.MouseCapacity,
		SignalCapacity:  cfg.Bridge.SignalCapacity,
		TopicCapacity:   cfg.Bridge.TopicCapacity,
		SubjectCapacity: cfg.Bridge.SubjectCapacity,
		MaxPending:      cfg.Bridge.MaxPending,
		Scheme:          cfg.WebSocket.Scheme,
		Logger:          logger,
	}
}

func (o *Options) setDefaults() {
	if o.MIDICapacity == 0 {
		o.MIDICapacity = 1024
	}
	if o.KeyCapacity == 0 {
		o.KeyCapacity = 256
	}
	if o.MouseCapacity == 0 {
		o.MouseCapacity = 256
	}
	if o.SignalCapacity == 0 {
		o.SignalCapacity = 256
	}
	if o.TopicCapacity == 0 {
		o.TopicCapacity = 256
	}
	if o.SubjectCapacity <= 0 {
		o.SubjectCapacity = subject.DefaultCapacity
	}
	if o.MaxPending <= 0 {
		o.MaxPending = port.DefaultMaxPending
	}
	if o.Scheme == "" {
		o.Scheme = "ws"
	}
}

// Bridge buffers host input until the consumer polls for it.
//
// Lock expectations:
//   - Host callbacks (On*) may run on any goroutine. They serialise on inMu and only
//     touch the rings, the modifier/mouse snapshot and atomics, so each ring keeps a
//     single producer.
//   - Consumer calls serialise on mu, which guards the registry, the subject store and
//     the read side of every ring.
//   - Poll waits without holding either lock.
//
// Allocation: All rings are allocated once in New; ports allocate their pending queues.
type Bridge struct {
	log zerolog.Logger

	// Producer side.
	inMu       sync.Mutex
	midi       *ring.RingBuffer[byte]
	keys       *ring.RingBuffer[KeyEvent]
	mouse      *ring.RingBuffer[MouseEvent]
	signals    *ring.RingBuffer[channelSignal]
	topics     *ring.RingBuffer[subject.Message]
	mods       Modifiers  // guarded by inMu
	mouseState MouseState // guarded by inMu
	midiDevice atomic.Int32
	size       atomic.Uint64 // width<<32 | height, one store per resize
	resized    atomic.Bool
	wake       chan struct{}
	closed     atomic.Bool

	// Consumer side.
	mu            sync.Mutex
	registry      *port.Registry
	store         *subject.Store
	nextID        port.ChannelID
	dialer        Dialer
	broker        Broker
	scheme        string
	maxPending    int
	topicsDropped uint64 // last intake drop count reported
	unmatched     uint64 // topic messages no listen port wanted
	sigsDropped   uint64
}

// New creates a bridge with empty buffers and no ports.
func New(opts Options) *Bridge {
	opts.setDefaults()
	return &Bridge{
		log:        opts.Logger.With().Str("component", "bridge").Logger(),
		midi:       ring.NewRingBuffer[byte](opts.MIDICapacity, ring.BackpressureDropNewest),
		keys:       ring.NewRingBuffer[KeyEvent](opts.KeyCapacity, ring.BackpressureDropNewest),
		mouse:      ring.NewRingBuffer[MouseEvent](opts.MouseCapacity, ring.BackpressureDropNewest),
		signals:    ring.NewRingBuffer[channelSignal](opts.SignalCapacity, ring.BackpressureDropNewest),
		topics:     ring.NewRingBuffer[subject.Message](opts.TopicCapacity, ring.BackpressureDropNewest),
		wake:       make(chan struct{}, 1),
		registry:   port.NewRegistry(),
		store:      subject.NewStore(opts.SubjectCapacity),
		scheme:     opts.Scheme,
		maxPending: opts.MaxPending,
	}
}

// SetDialer installs the host channel dialer used by stream and datagram ports.
func (b *Bridge) SetDialer(d Dialer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialer = d
}

// SetBroker installs the pub/sub broker.
func (b *Bridge) SetBroker(br Broker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broker = br
}

// Close closes every open port and wakes any pending Poll.
// Host callbacks arriving afterwards are discarded.
func (b *Bridge) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	for _, p := range b.registry.List() {
		b.closeLocked(p)
	}
	b.mu.Unlock()

	b.notify()
	b.log.Debug().Msg("bridge closed")
	return nil
}

// Closed reports whether Close has been called.
func (b *Bridge) Closed() bool {
	return b.closed.Load()
}

// notify wakes a waiting Poll. Never blocks.
func (b *Bridge) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// sync applies queued channel signals and moves intake topic messages into the store.
// Must be called with mu held.
func (b *Bridge) sync() {
	for {
		cs, ok := b.signals.Read()
		if !ok {
			break
		}
		b.applySignal(cs)
	}
	if d := b.signals.Dropped(); d != b.sigsDropped {
		b.log.Warn().Uint64("dropped", d-b.sigsDropped).Msg("channel signal buffer overflow")
		b.sigsDropped = d
	}

	for !b.store.Full() {
		msg, ok := b.topics.Read()
		if !ok {
			break
		}
		// Late deliveries for a subject nobody listens on any more would pin store slots.
		if !b.listening(msg.Subject) {
			b.unmatched++
			continue
		}
		b.store.Put(msg)
	}
	if d := b.topics.Dropped(); d != b.topicsDropped {
		b.log.Warn().Uint64("dropped", d-b.topicsDropped).Msg("pub/sub message buffer overflow")
		b.topicsDropped = d
	}
}

// listening reports whether an open pub/sub listen port matches subj.
func (b *Bridge) listening(subj string) bool {
	found := false
	b.registry.Each(func(p *port.Port) bool {
		found = p.Kind() == port.KindPubSubListen && subject.Match(p.Subject(), subj)
		return !found
	})
	return found
}

// applySignal feeds one lifecycle signal to every port sharing the channel id.
func (b *Bridge) applySignal(cs channelSignal) {
	if cs.id == port.BrokerChannel {
		b.registry.Each(func(p *port.Port) bool {
			if p.Kind() == port.KindPubSubWrite {
				b.apply(p, cs.sig)
			}
			return true
		})
		return
	}
	for _, p := range b.registry.Lookup(cs.id) {
		b.apply(p, cs.sig)
	}
}

func (b *Bridge) apply(p *port.Port, sig port.Signal) {
	before := p.State()
	if err := p.Apply(sig); err != nil {
		b.log.Warn().Err(err).Str("port", p.Name()).Msg("flush failed, bytes kept pending")
	}
	if after := p.State(); after != before {
		b.log.Debug().
			Uint64("channel", uint64(p.ID())).
			Str("port", p.Name()).
			Str("from", before.String()).
			Str("to", after.String()).
			Msg("port state changed")
	}
}
