// If you are AI: This file contains tests for the consumer loop against a bridge with fake host channels.

package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portbridge/internal/bridge"
	"portbridge/internal/command"
	"portbridge/internal/config"
	"portbridge/internal/core/port"
)

type fakeChannel struct {
	mu      sync.Mutex
	sent    []string
	inbound [][]byte
	closed  bool
}

func (c *fakeChannel) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(p))
	return nil
}

func (c *fakeChannel) Receive() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return nil, false
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return msg, true
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeDialer struct {
	channels map[port.ChannelID]*fakeChannel
}

func (d *fakeDialer) Dial(id port.ChannelID, _ string, _ bool) (port.Channel, error) {
	ch := &fakeChannel{}
	d.channels[id] = ch
	return ch, nil
}

func newTestApp(t *testing.T) (*App, *bridge.Bridge, *fakeDialer) {
	t.Helper()
	b := bridge.New(bridge.Options{Logger: zerolog.Nop()})
	d := &fakeDialer{channels: make(map[port.ChannelID]*fakeChannel)}
	b.SetDialer(d)
	t.Cleanup(func() { _ = b.Close() })

	a := New(b, command.New("test", zerolog.Nop()), zerolog.Nop())
	a.SetTick(time.Millisecond)
	return a, b, d
}

func TestOpenPortsSkipsFailures(t *testing.T) {
	a, b, _ := newTestApp(t)

	err := a.OpenPorts([]config.PortConfig{
		{Name: "echo@localhost:9000", Type: "tcpip_connect", Echo: true},
		{Name: "broken", Type: "tcpip_connect"},
		{Name: "x@localhost", Type: "smoke_signal"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrBadName)
	assert.ErrorIs(t, err, port.ErrUnknownTransport)
	assert.Len(t, a.ports, 1)
	assert.Len(t, b.Ports(), 2)
}

func TestStepEchoesKeys(t *testing.T) {
	a, b, d := newTestApp(t)
	require.NoError(t, a.OpenPorts([]config.PortConfig{
		{Name: "echo@localhost:9000", Type: "tcpip_connect", Echo: true},
	}))
	id := a.ports[0].wr.ID()

	b.OnKey(true, bridge.KeyEvent{Keycode: 'a'})
	b.OnKey(true, bridge.KeyEvent{Keycode: 'h', Ctrl: true})
	assert.False(t, a.Step(context.Background()))

	b.OnChannelEvent(id, "open")
	b.OnKey(true, bridge.KeyEvent{Keycode: 'b'})
	assert.False(t, a.Step(context.Background()))

	ch := d.channels[id]
	assert.Equal(t, []string{"a\b", "b"}, ch.sent)
}

func TestStepDrainsPortData(t *testing.T) {
	a, b, d := newTestApp(t)
	require.NoError(t, a.OpenPorts([]config.PortConfig{
		{Name: "echo@localhost:9000", Type: "tcpip_connect"},
	}))
	rd := a.ports[0].rd
	ch := d.channels[rd.ID()]

	ch.inbound = append(ch.inbound, []byte("hello"))
	b.OnChannelEvent(rd.ID(), "data")
	b.OnChannelEvent(rd.ID(), "close")

	var lines []string
	a.SetStatus(func(s string) { lines = append(lines, s) })
	a.Step(context.Background())

	assert.Equal(t, 5, a.portBytes)
	assert.Nil(t, a.ports[0].rd, "read handle should be dropped after EOF")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "in 5 B")
}

func TestRunQuitsOnQ(t *testing.T) {
	a, b, d := newTestApp(t)
	require.NoError(t, a.OpenPorts([]config.PortConfig{
		{Name: "echo@localhost:9000", Type: "tcpip_connect"},
	}))
	id := a.ports[0].rd.ID()

	b.OnKey(true, bridge.KeyEvent{Keycode: 'q'})
	err := a.Run(context.Background())
	assert.ErrorIs(t, err, ErrQuit)
	assert.Empty(t, b.Ports())
	assert.True(t, d.channels[id].closed)
}

func TestRunStopsOnContext(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, a.Run(ctx))
}

func TestStepDrainsMIDIAndMouse(t *testing.T) {
	a, b, _ := newTestApp(t)

	b.OnMIDI(0, 0x90, 60, 100)
	b.OnMouseButton(true, 1, 2, 1, bridge.Modifiers{})
	a.Step(context.Background())

	assert.Equal(t, 3, a.midiBytes)
	_, ok := b.NextMouse()
	assert.False(t, ok)
}

func TestCommandVerbs(t *testing.T) {
	a, _, _ := newTestApp(t)
	require.NoError(t, a.OpenPorts([]config.PortConfig{
		{Name: "echo@localhost:9000", Type: "tcpip_connect"},
	}))

	got, err := a.Command("ports")
	require.NoError(t, err)
	assert.Equal(t, "read:echo@localhost:9000 write:echo@localhost:9000", got)

	got, err = a.Command("ctlport", "echo@localhost:9000", "state")
	require.NoError(t, err)
	assert.Equal(t, "unconnected", got)

	_, err = a.Command("ctlport", "nope", "state")
	assert.ErrorIs(t, err, port.ErrPortClosed)

	_, err = a.Command("ctlport", "echo@localhost:9000")
	assert.ErrorIs(t, err, command.ErrMissingArg)
}

func TestSubmitRunsOnConsumerLoop(t *testing.T) {
	a, _, _ := newTestApp(t)
	require.NoError(t, a.OpenPorts([]config.PortConfig{
		{Name: "echo@localhost:9000", Type: "tcpip_connect"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	got, err := a.Submit(ctx, "ports")
	require.NoError(t, err)
	assert.Equal(t, "read:echo@localhost:9000 write:echo@localhost:9000", got)

	got, err = a.Submit(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, "test", got)

	_, err = a.Submit(ctx, "frobnicate")
	assert.ErrorIs(t, err, command.ErrUnknownVerb)

	cancel()
	require.NoError(t, <-runErr)

	_, err = a.Submit(context.Background(), "version")
	assert.ErrorIs(t, err, command.ErrStopped)
}

func TestSubmitWithoutLoopHonoursContext(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Submit(ctx, "version")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStepServesPendingSubmit(t *testing.T) {
	a, _, _ := newTestApp(t)

	type result struct {
		out string
		err error
	}
	res := make(chan result, 1)
	go func() {
		out, err := a.Submit(context.Background(), "version")
		res <- result{out, err}
	}()

	require.Eventually(t, func() bool {
		a.Step(context.Background())
		select {
		case r := <-res:
			assert.NoError(t, r.err)
			assert.Equal(t, "test", r.out)
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}
