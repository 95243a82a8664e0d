// If you are AI: This file implements the terminal host driver: it reads tcell screen events and
// feeds them to the bridge's keyboard, mouse and resize ingestion points.

package terminal

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"portbridge/internal/bridge"
)

// Sink receives converted input events.
type Sink interface {
	OnKey(down bool, ev bridge.KeyEvent)
	OnMouseMove(x, y int, mods bridge.Modifiers)
	OnMouseButton(down bool, x, y, mask int, mods bridge.Modifiers)
	OnResize(width, height int)
}

// Driver owns a tcell screen and translates its events.
type Driver struct {
	screen tcell.Screen
	sink   Sink
	log    zerolog.Logger

	mu       sync.Mutex
	buttons  tcell.ButtonMask
	finiOnce sync.Once
}

// New creates a driver on the process terminal.
func New(sink Sink, logger zerolog.Logger) (*Driver, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return NewWithScreen(screen, sink, logger), nil
}

// NewWithScreen creates a driver on an existing screen.
func NewWithScreen(screen tcell.Screen, sink Sink, logger zerolog.Logger) *Driver {
	return &Driver{
		screen: screen,
		sink:   sink,
		log:    logger.With().Str("component", "terminal").Logger(),
	}
}

// Init initialises the screen, enables mouse reporting and reports the initial size.
func (d *Driver) Init() error {
	if err := d.screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	d.screen.EnableMouse()
	d.screen.Clear()
	w, h := d.screen.Size()
	d.sink.OnResize(w, h)
	return nil
}

// Run delivers events until ctx is done or the screen is shut down.
func (d *Driver) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			d.Shutdown()
		case <-done:
		}
	}()

	for {
		ev := d.screen.PollEvent()
		if ev == nil {
			return ctx.Err()
		}
		d.handle(ev)
	}
}

// Shutdown restores the terminal. Safe to call more than once.
func (d *Driver) Shutdown() {
	d.finiOnce.Do(d.screen.Fini)
}

// Status draws text on the last screen row.
func (d *Driver) Status(text string) {
	w, h := d.screen.Size()
	if h == 0 {
		return
	}
	style := tcell.StyleDefault.Reverse(true)
	x := 0
	for _, r := range text {
		if x >= w {
			break
		}
		d.screen.SetContent(x, h-1, r, nil, style)
		x++
	}
	for ; x < w; x++ {
		d.screen.SetContent(x, h-1, ' ', nil, style)
	}
	d.screen.Show()
}

// handle converts one tcell event.
func (d *Driver) handle(ev tcell.Event) {
	switch e := ev.(type) {
	case *tcell.EventKey:
		key, ok := convertKey(e)
		if !ok {
			d.log.Debug().Str("key", e.Name()).Msg("unmapped key")
			return
		}
		// Terminals report presses only.
		d.sink.OnKey(true, key)

	case *tcell.EventMouse:
		x, y := e.Position()
		mods := convertMod(e.Modifiers())
		btn := e.Buttons() & (tcell.Button1 | tcell.Button2 | tcell.Button3)

		d.mu.Lock()
		prev := d.buttons
		d.buttons = btn
		d.mu.Unlock()

		switch {
		case btn == prev:
			d.sink.OnMouseMove(x, y, mods)
		case btn&^prev != 0:
			d.sink.OnMouseButton(true, x, y, buttonMask(btn), mods)
		default:
			d.sink.OnMouseButton(false, x, y, buttonMask(btn), mods)
		}

	case *tcell.EventResize:
		w, h := e.Size()
		d.sink.OnResize(w, h)
	}
}

// buttonMask maps tcell buttons to a bitmask with bit 0 primary, bit 1 middle, bit 2 secondary.
func buttonMask(b tcell.ButtonMask) int {
	mask := 0
	if b&tcell.Button1 != 0 {
		mask |= 1
	}
	if b&tcell.Button3 != 0 {
		mask |= 2
	}
	if b&tcell.Button2 != 0 {
		mask |= 4
	}
	return mask
}

func convertMod(m tcell.ModMask) bridge.Modifiers {
	return bridge.Modifiers{
		Shift: m&tcell.ModShift != 0,
		Ctrl:  m&tcell.ModCtrl != 0,
		Alt:   m&(tcell.ModAlt|tcell.ModMeta) != 0,
	}
}

// convertKey maps a key press to a console key event.
// Control characters become the letter with Ctrl set, except Tab, Enter and Escape.
func convertKey(e *tcell.EventKey) (bridge.KeyEvent, bool) {
	mods := convertMod(e.Modifiers())
	ev := bridge.KeyEvent{Shift: mods.Shift, Ctrl: mods.Ctrl, Alt: mods.Alt}

	switch k := e.Key(); {
	case k == tcell.KeyRune:
		ev.Keycode = int(e.Rune())
	case k == tcell.KeyTab:
		ev.Keycode = '\t'
	case k == tcell.KeyEnter:
		ev.Keycode = '\r'
	case k == tcell.KeyEscape:
		ev.Keycode = 27
	case k == tcell.KeyBackspace2:
		ev.Keycode = 8
	case k == tcell.KeyDelete:
		ev.Keycode = 127
	case k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ:
		ev.Keycode = 'a' + int(k-tcell.KeyCtrlA)
		ev.Ctrl = true
	default:
		return bridge.KeyEvent{}, false
	}
	return ev, true
}
