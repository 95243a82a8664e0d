// If you are AI: This file implements the consumer's wait and input drain calls.

package bridge

import (
	"context"
	"time"
)

// Status is the result of Poll.
type Status uint8

const (
	StatusTimeout Status = iota
	StatusConsole
	StatusResize
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusTimeout:
		return "timeout"
	case StatusConsole:
		return "console"
	case StatusResize:
		return "resize"
	default:
		return "unknown"
	}
}

// Poll yields for up to wait, returning early when a host event arrives or ctx is done.
// A pending resize is reported (and cleared) ahead of buffered keys; otherwise the result
// is StatusTimeout and the caller drains MIDI, mouse and ports itself.
func (b *Bridge) Poll(ctx context.Context, wait time.Duration) Status {
	if wait > 0 && !b.resized.Load() && b.keys.Len() == 0 && !b.closed.Load() {
		timer := time.NewTimer(wait)
		select {
		case <-b.wake:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	if b.resized.Swap(false) {
		return StatusResize
	}
	if b.keys.Len() > 0 {
		return StatusConsole
	}
	return StatusTimeout
}

// StatConsole reports whether a key is waiting.
func (b *Bridge) StatConsole() bool {
	return b.keys.Len() > 0
}

// GetConsole pops the next key-down and returns its console keycode.
func (b *Bridge) GetConsole() (int, bool) {
	ev, ok := b.GetConsoleEvent()
	if !ok {
		return 0, false
	}
	return ev.Code(), true
}

// GetConsoleEvent pops the next key-down record unchanged.
func (b *Bridge) GetConsoleEvent() (KeyEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keys.Read()
}

// Modifiers returns the modifier snapshot left by the last key or mouse event.
func (b *Bridge) Modifiers() Modifiers {
	b.inMu.Lock()
	defer b.inMu.Unlock()
	return b.mods
}

// GetMIDI drains up to len(buf) buffered MIDI bytes.
// device is the input that most recently produced a message.
func (b *Bridge) GetMIDI(buf []byte) (n int, device int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = b.midi.ReadInto(buf)
	return n, int(b.midiDevice.Load())
}

// NextMouse pops the next mouse transition.
func (b *Bridge) NextMouse() (MouseEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mouse.Read()
}

// Mouse returns the last reported pointer position and buttons.
func (b *Bridge) Mouse() MouseState {
	b.inMu.Lock()
	defer b.inMu.Unlock()
	return b.mouseState
}

// Size returns the last reported viewport size.
func (b *Bridge) Size() (width, height int) {
	v := b.size.Load()
	return int(int32(v >> 32)), int(int32(v))
}
