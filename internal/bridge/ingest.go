// If you are AI: This file implements the ingestion points the host calls when an event happens.
// Each one records the event into its bounded buffer and returns immediately.

package bridge

import (
	"portbridge/internal/core/port"
	"portbridge/internal/core/subject"
)

// OnMIDI records one MIDI message. The three bytes are stored only if all fit.
func (b *Bridge) OnMIDI(device int, status, data1, data2 byte) {
	if b.closed.Load() {
		return
	}
	b.inMu.Lock()
	ok := b.midi.WriteAll(status, data1, data2)
	b.inMu.Unlock()
	if ok {
		b.midiDevice.Store(int32(device))
		b.notify()
	}
}

// OnKey records a key transition. Only key-down transitions are buffered;
// both update the modifier snapshot.
func (b *Bridge) OnKey(down bool, ev KeyEvent) {
	if b.closed.Load() {
		return
	}
	b.inMu.Lock()
	b.mods = ev.Modifiers()
	if down {
		b.keys.Write(ev)
	}
	b.inMu.Unlock()
	if down {
		b.notify()
	}
}

// OnMouseMove records a pointer move with the buttons currently held.
func (b *Bridge) OnMouseMove(x, y int, mods Modifiers) {
	b.onMouse(MouseMove, x, y, -1, mods)
}

// OnMouseButton records a button transition. mask is the host button bitmask after the
// transition; it is normalised with NormalizeButtons.
func (b *Bridge) OnMouseButton(down bool, x, y, mask int, mods Modifiers) {
	kind := MouseUp
	if down {
		kind = MouseDown
	}
	b.onMouse(kind, x, y, mask, mods)
}

func (b *Bridge) onMouse(kind MouseKind, x, y, mask int, mods Modifiers) {
	if b.closed.Load() {
		return
	}
	b.inMu.Lock()
	b.mods = mods
	b.mouseState.X, b.mouseState.Y = x, y
	if mask >= 0 {
		b.mouseState.Buttons = NormalizeButtons(mask)
	}
	b.mouse.Write(MouseEvent{
		X:         x,
		Y:         y,
		Buttons:   b.mouseState.Buttons,
		Modifiers: mods,
		Kind:      kind,
	})
	b.inMu.Unlock()
	b.notify()
}

// OnResize records a new viewport size and raises the resize flag.
func (b *Bridge) OnResize(width, height int) {
	if b.closed.Load() {
		return
	}
	b.size.Store(uint64(uint32(width))<<32 | uint64(uint32(height)))
	b.resized.Store(true)
	b.notify()
}

// OnChannelEvent records a host channel lifecycle event by tag: "open", "data", "close" or "error".
// Unknown tags are ignored.
func (b *Bridge) OnChannelEvent(id port.ChannelID, tag string) {
	sig, err := port.ParseSignal(tag)
	if err != nil {
		b.log.Debug().Uint64("channel", uint64(id)).Str("tag", tag).Msg("ignoring channel event")
		return
	}
	b.OnChannelSignal(id, sig)
}

// OnChannelSignal records a host channel lifecycle signal.
func (b *Bridge) OnChannelSignal(id port.ChannelID, sig port.Signal) {
	if b.closed.Load() {
		return
	}
	b.inMu.Lock()
	b.signals.Write(channelSignal{id: id, sig: sig})
	b.inMu.Unlock()
	b.notify()
}

// OnTopicMessage records an inbound pub/sub message for later matching against subscribe ports.
func (b *Bridge) OnTopicMessage(subj, payload string) {
	if b.closed.Load() {
		return
	}
	b.inMu.Lock()
	b.topics.Write(subject.Message{Subject: subj, Payload: []byte(payload)})
	b.inMu.Unlock()
	b.notify()
}

// OnBrokerState records a broker connection change. Connecting releases the pending
// queues of pub/sub write ports; disconnecting leaves them to queue on send failure.
func (b *Bridge) OnBrokerState(connected bool) {
	if !connected {
		b.log.Info().Msg("pub/sub broker disconnected")
		return
	}
	b.log.Info().Msg("pub/sub broker connected")
	b.OnChannelSignal(port.BrokerChannel, port.SignalOpen)
}
