// If you are AI: This file contains unit tests for the bridge's input buffering and polling.

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	b := New(Options{Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestGetConsoleCtrlH(t *testing.T) {
	b := newTestBridge(t)

	b.OnKey(true, KeyEvent{Keycode: 'h', Ctrl: true})
	b.OnKey(true, KeyEvent{Keycode: 'h'})
	b.OnKey(true, KeyEvent{Keycode: 'x', Ctrl: true})

	want := []int{8, 'h', 'x'}
	for i, w := range want {
		code, ok := b.GetConsole()
		if !ok {
			t.Fatalf("key %d: expected a key", i)
		}
		if code != w {
			t.Errorf("key %d: expected %d, got %d", i, w, code)
		}
	}
	if _, ok := b.GetConsole(); ok {
		t.Error("Expected empty console")
	}
}

func TestKeyUpUpdatesModifiersOnly(t *testing.T) {
	b := newTestBridge(t)

	b.OnKey(true, KeyEvent{Keycode: 'a', Shift: true})
	b.OnKey(false, KeyEvent{Keycode: 'a', Alt: true})

	if !b.StatConsole() {
		t.Fatal("Expected one buffered key")
	}
	ev, _ := b.GetConsoleEvent()
	if !ev.Shift || ev.Keycode != 'a' {
		t.Errorf("Expected shifted 'a', got %+v", ev)
	}
	if b.StatConsole() {
		t.Error("Key-up should not be buffered")
	}
	if m := b.Modifiers(); !m.Alt || m.Shift {
		t.Errorf("Expected modifiers from key-up, got %+v", m)
	}
}

func TestKeyOverflowKeepsOldest(t *testing.T) {
	b := New(Options{KeyCapacity: 4, Logger: zerolog.Nop()})
	defer b.Close()

	for i := 0; i < 10; i++ {
		b.OnKey(true, KeyEvent{Keycode: 'a' + i})
	}
	for i := 0; i < 4; i++ {
		code, _ := b.GetConsole()
		if code != 'a'+i {
			t.Errorf("Expected %c, got %c", 'a'+i, code)
		}
	}
	if st := b.Stats(); st.Keys.Dropped != 6 {
		t.Errorf("Expected 6 dropped keys, got %d", st.Keys.Dropped)
	}
}

func TestMIDITriplesAllOrNothing(t *testing.T) {
	b := New(Options{MIDICapacity: 8, Logger: zerolog.Nop()})
	defer b.Close()

	b.OnMIDI(2, 0x90, 60, 100)
	b.OnMIDI(2, 0x80, 60, 0)
	b.OnMIDI(3, 0x90, 62, 90) // only 2 bytes free

	buf := make([]byte, 16)
	n, dev := b.GetMIDI(buf)
	if n != 6 {
		t.Fatalf("Expected 6 bytes, got %d", n)
	}
	if dev != 2 {
		t.Errorf("Expected device 2, got %d", dev)
	}
	want := []byte{0x90, 60, 100, 0x80, 60, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("byte %d: expected %#x, got %#x", i, want[i], buf[i])
		}
	}
	if n, _ := b.GetMIDI(buf); n != 0 {
		t.Errorf("Expected drained buffer, got %d bytes", n)
	}
}

func TestGetMIDIPartialRead(t *testing.T) {
	b := newTestBridge(t)
	b.OnMIDI(0, 0xB0, 7, 127)

	buf := make([]byte, 2)
	if n, _ := b.GetMIDI(buf); n != 2 {
		t.Fatalf("Expected 2 bytes, got %d", n)
	}
	if n, _ := b.GetMIDI(buf); n != 1 || buf[0] != 127 {
		t.Errorf("Expected trailing byte 127, got n=%d %v", n, buf[:n])
	}
}

func TestMouseNormalisation(t *testing.T) {
	b := newTestBridge(t)

	b.OnMouseButton(true, 10, 20, 1, Modifiers{})
	b.OnMouseMove(11, 21, Modifiers{Ctrl: true})
	b.OnMouseButton(false, 11, 21, 0, Modifiers{})
	b.OnMouseButton(true, 12, 22, 4, Modifiers{})

	want := []MouseEvent{
		{X: 10, Y: 20, Buttons: ButtonPrimary, Kind: MouseDown},
		{X: 11, Y: 21, Buttons: ButtonPrimary, Kind: MouseMove, Modifiers: Modifiers{Ctrl: true}},
		{X: 11, Y: 21, Buttons: ButtonNone, Kind: MouseUp},
		{X: 12, Y: 22, Buttons: ButtonSecondary, Kind: MouseDown},
	}
	for i, w := range want {
		ev, ok := b.NextMouse()
		if !ok {
			t.Fatalf("event %d: expected mouse event", i)
		}
		if ev != w {
			t.Errorf("event %d: expected %+v, got %+v", i, w, ev)
		}
	}

	if st := b.Mouse(); st.X != 12 || st.Y != 22 || st.Buttons != ButtonSecondary {
		t.Errorf("Unexpected mouse state %+v", st)
	}
}

func TestNormalizeButtons(t *testing.T) {
	tests := []struct{ mask, want int }{
		{0, ButtonNone},
		{1, ButtonPrimary},
		{3, ButtonPrimary},
		{2, ButtonSecondary},
		{4, ButtonSecondary},
	}
	for _, tt := range tests {
		if got := NormalizeButtons(tt.mask); got != tt.want {
			t.Errorf("NormalizeButtons(%d): expected %d, got %d", tt.mask, tt.want, got)
		}
	}
}

func TestPollPriority(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	if s := b.Poll(ctx, 0); s != StatusTimeout {
		t.Errorf("Expected timeout, got %s", s)
	}

	b.OnKey(true, KeyEvent{Keycode: 'q'})
	b.OnResize(80, 24)

	if s := b.Poll(ctx, time.Second); s != StatusResize {
		t.Errorf("Expected resize first, got %s", s)
	}
	if s := b.Poll(ctx, time.Second); s != StatusConsole {
		t.Errorf("Expected console after resize is cleared, got %s", s)
	}
	if w, h := b.Size(); w != 80 || h != 24 {
		t.Errorf("Expected 80x24, got %dx%d", w, h)
	}
}

func TestSizeNeverTorn(t *testing.T) {
	b := newTestBridge(t)
	b.OnResize(1, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 2; i < 5000; i++ {
			b.OnResize(i, i)
		}
	}()

	for {
		select {
		case <-done:
			if w, h := b.Size(); w != 4999 || h != 4999 {
				t.Errorf("Expected 4999x4999, got %dx%d", w, h)
			}
			return
		default:
		}
		if w, h := b.Size(); w != h {
			t.Fatalf("Torn size read: %dx%d", w, h)
		}
	}
}

func TestPollWakesOnEvent(t *testing.T) {
	b := newTestBridge(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.OnKey(true, KeyEvent{Keycode: 'z'})
	}()

	start := time.Now()
	s := b.Poll(context.Background(), 5*time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Poll did not wake early, took %s", elapsed)
	}
	if s != StatusConsole {
		t.Errorf("Expected console, got %s", s)
	}
}

func TestPollHonoursContext(t *testing.T) {
	b := newTestBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if s := b.Poll(ctx, 5*time.Second); s != StatusTimeout {
		t.Errorf("Expected timeout, got %s", s)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Poll ignored context, took %s", elapsed)
	}
}

func TestCallbacksAfterCloseIgnored(t *testing.T) {
	b := New(Options{Logger: zerolog.Nop()})
	_ = b.Close()

	b.OnKey(true, KeyEvent{Keycode: 'a'})
	b.OnMIDI(0, 0x90, 1, 1)
	if b.StatConsole() {
		t.Error("Key buffered after close")
	}
	if !b.Closed() {
		t.Error("Expected Closed")
	}
	if _, _, err := b.OpenPort("x@localhost", "tcpip_connect"); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
