// If you are AI: This file defines the small immutable event records host callbacks produce.

package bridge

import (
	"portbridge/internal/core/port"
)

// ctrlHBackspace is the keycode Ctrl+H is delivered as.
const ctrlHBackspace = 8

// Modifiers is a snapshot of the modifier keys.
type Modifiers struct {
	Ctrl  bool
	Shift bool
	Alt   bool
}

// KeyEvent is one buffered key-down transition.
type KeyEvent struct {
	Keycode int
	Ctrl    bool
	Shift   bool
	Alt     bool
}

// Modifiers returns the modifier part of the event.
func (e KeyEvent) Modifiers() Modifiers {
	return Modifiers{Ctrl: e.Ctrl, Shift: e.Shift, Alt: e.Alt}
}

// Code returns the console keycode for the event.
// Ctrl+H is delivered as backspace (8); every other key is passed through.
func (e KeyEvent) Code() int {
	if e.Ctrl && (e.Keycode == 'h' || e.Keycode == 'H') {
		return ctrlHBackspace
	}
	return e.Keycode
}

// MouseKind is the transition a mouse event records.
type MouseKind uint8

const (
	MouseMove MouseKind = iota
	MouseDown
	MouseUp
)

// String returns a human-readable representation of the kind.
func (k MouseKind) String() string {
	switch k {
	case MouseMove:
		return "move"
	case MouseDown:
		return "down"
	case MouseUp:
		return "up"
	default:
		return "unknown"
	}
}

// Normalised mouse buttons.
const (
	ButtonNone      = 0
	ButtonPrimary   = 1
	ButtonSecondary = 2
)

// MouseEvent is one buffered mouse transition.
type MouseEvent struct {
	X, Y      int
	Buttons   int // ButtonNone, ButtonPrimary or ButtonSecondary
	Modifiers Modifiers
	Kind      MouseKind
}

// MouseState is the last reported pointer position and buttons.
type MouseState struct {
	X, Y    int
	Buttons int
}

// NormalizeButtons maps a host button bitmask (bit n set while button n is held,
// bit 0 being the primary button) to ButtonNone, ButtonPrimary or ButtonSecondary.
func NormalizeButtons(mask int) int {
	switch {
	case mask&1 != 0:
		return ButtonPrimary
	case mask != 0:
		return ButtonSecondary
	default:
		return ButtonNone
	}
}

// channelSignal is a host channel lifecycle event waiting to be applied.
type channelSignal struct {
	id  port.ChannelID
	sig port.Signal
}
