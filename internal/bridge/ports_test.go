// If you are AI: This file contains unit tests for port open, write-behind, drain and close through the bridge.

package bridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"portbridge/internal/core/port"
)

type fakeChannel struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound [][]byte
	failing bool
	closed  bool
}

func (c *fakeChannel) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("not ready")
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
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

func (c *fakeChannel) push(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, []byte(msg))
}

type fakeDialer struct {
	urls     []string
	datagram []bool
	channels map[port.ChannelID]*fakeChannel
	err      error
}

func (d *fakeDialer) Dial(id port.ChannelID, url string, datagram bool) (port.Channel, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.channels == nil {
		d.channels = make(map[port.ChannelID]*fakeChannel)
	}
	d.urls = append(d.urls, url)
	d.datagram = append(d.datagram, datagram)
	ch := &fakeChannel{}
	d.channels[id] = ch
	return ch, nil
}

type published struct {
	subject string
	payload string
}

type fakeBroker struct {
	connected bool
	subs      []string
	unsubs    []string
	pubs      []published
}

func (f *fakeBroker) Publish(subject string, payload []byte) error {
	if !f.connected {
		return errors.New("broker offline")
	}
	f.pubs = append(f.pubs, published{subject, string(payload)})
	return nil
}

func (f *fakeBroker) Subscribe(subject string) error {
	f.subs = append(f.subs, subject)
	return nil
}

func (f *fakeBroker) Unsubscribe(subject string) error {
	f.unsubs = append(f.unsubs, subject)
	return nil
}

func (f *fakeBroker) Connected() bool { return f.connected }

func newPortBridge(t *testing.T) (*Bridge, *fakeDialer, *fakeBroker) {
	t.Helper()
	b := New(Options{Logger: zerolog.Nop()})
	d := &fakeDialer{}
	br := &fakeBroker{}
	b.SetDialer(d)
	b.SetBroker(br)
	t.Cleanup(func() { _ = b.Close() })
	return b, d, br
}

func TestOpenPortConnect(t *testing.T) {
	b, d, _ := newPortBridge(t)

	rd, wr, err := b.OpenPort("echo@localhost:9000", "tcpip_connect")
	if err != nil {
		t.Fatalf("OpenPort failed: %v", err)
	}
	if rd == nil || wr == nil {
		t.Fatal("Expected both handles")
	}
	if rd.ID() != wr.ID() || rd.ID() == port.BrokerChannel {
		t.Errorf("Expected shared non-zero id, got %d and %d", rd.ID(), wr.ID())
	}
	if len(d.urls) != 1 || d.urls[0] != "ws://localhost:9000/echo" {
		t.Errorf("Unexpected dial urls %v", d.urls)
	}
	if rd.State() != port.StateUnconnected {
		t.Errorf("Expected unconnected, got %s", rd.State())
	}
}

func TestOpenPortSingleHandles(t *testing.T) {
	b, d, br := newPortBridge(t)

	tests := []struct {
		name, transport string
		wantRead        bool
		wantWrite       bool
	}{
		{"srv@0.0.0.0:7000", "tcpip_listen", true, false},
		{"beat@localhost:7001", "udp_send", false, true},
		{"in@localhost:7002", "udp_listen", true, false},
		{"keykit.notes", "nats_publish", false, true},
		{"keykit.>", "NATS_SUBSCRIBE", true, false},
	}
	for _, tt := range tests {
		rd, wr, err := b.OpenPort(tt.name, tt.transport)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.transport, err)
			continue
		}
		if (rd != nil) != tt.wantRead || (wr != nil) != tt.wantWrite {
			t.Errorf("%s: unexpected handles rd=%v wr=%v", tt.transport, rd != nil, wr != nil)
		}
	}

	if len(d.datagram) != 1 || !d.datagram[0] {
		t.Errorf("Expected one datagram dial, got %v", d.datagram)
	}
	if len(br.subs) != 1 || br.subs[0] != "keykit.>" {
		t.Errorf("Expected subscription keykit.>, got %v", br.subs)
	}
}

func TestOpenPortRejects(t *testing.T) {
	b, _, _ := newPortBridge(t)

	tests := []struct {
		name, transport string
		want            error
	}{
		{"echo@localhost", "carrier_pigeon", port.ErrUnknownTransport},
		{"echo", "tcpip_connect", port.ErrBadName},
		{"@localhost", "tcpip_connect", port.ErrBadName},
		{"echo@localhost:99999", "tcpip_connect", port.ErrBadName},
		{"keykit.>", "nats_publish", port.ErrBadName},
		{"keykit..x", "nats_subscribe", port.ErrBadName},
	}
	for _, tt := range tests {
		rd, wr, err := b.OpenPort(tt.name, tt.transport)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s/%s: expected %v, got %v", tt.name, tt.transport, tt.want, err)
		}
		if rd != nil || wr != nil {
			t.Errorf("%s/%s: expected nil handles", tt.name, tt.transport)
		}
	}
	if n := len(b.Ports()); n != 0 {
		t.Errorf("Expected no ports, got %d", n)
	}
}

func TestOpenPortWithoutHost(t *testing.T) {
	b := New(Options{Logger: zerolog.Nop()})
	defer b.Close()

	if _, _, err := b.OpenPort("echo@localhost", "tcpip_connect"); !errors.Is(err, ErrNoDialer) {
		t.Errorf("Expected ErrNoDialer, got %v", err)
	}
	if _, _, err := b.OpenPort("a.b", "nats_subscribe"); !errors.Is(err, ErrNoBroker) {
		t.Errorf("Expected ErrNoBroker, got %v", err)
	}
}

func TestWriteBehindFlushOnOpen(t *testing.T) {
	b, d, _ := newPortBridge(t)
	_, wr, _ := b.OpenPort("echo@localhost", "tcpip_connect")
	ch := d.channels[wr.ID()]

	if n, err := b.WritePort(wr, []byte("A")); n != 1 || err != nil {
		t.Fatalf("Expected 1, nil, got %d, %v", n, err)
	}
	if n, err := b.WritePort(wr, []byte("B")); n != 1 || err != nil {
		t.Fatalf("Expected 1, nil, got %d, %v", n, err)
	}
	if len(ch.sent) != 0 {
		t.Fatal("Nothing should be sent before open")
	}

	b.OnChannelEvent(wr.ID(), "open")
	if _, err := b.WritePort(wr, []byte("C")); err != nil {
		t.Fatal(err)
	}

	if len(ch.sent) != 2 {
		t.Fatalf("Expected 2 sends, got %d", len(ch.sent))
	}
	if string(ch.sent[0]) != "AB" {
		t.Errorf("Expected queued bytes flushed as one write AB, got %q", ch.sent[0])
	}
	if string(ch.sent[1]) != "C" {
		t.Errorf("Expected direct send C, got %q", ch.sent[1])
	}
	if wr.Pending() != 0 {
		t.Errorf("Expected empty queue, got %d", wr.Pending())
	}
}

func TestWriteSendFailureQueues(t *testing.T) {
	b, d, _ := newPortBridge(t)
	_, wr, _ := b.OpenPort("echo@localhost", "tcpip_connect")
	ch := d.channels[wr.ID()]
	b.OnChannelEvent(wr.ID(), "open")

	ch.failing = true
	if n, err := b.WritePort(wr, []byte("lost?")); n != 5 || err != nil {
		t.Fatalf("Expected accepted write, got %d, %v", n, err)
	}
	if wr.Pending() != 5 {
		t.Errorf("Expected 5 pending, got %d", wr.Pending())
	}

	ch.failing = false
	if got, err := b.CtlPort(wr, CtlFlush, ""); err != nil || got != "0" {
		t.Errorf("Expected flush to drain queue, got %q, %v", got, err)
	}
	if len(ch.sent) != 1 || string(ch.sent[0]) != "lost?" {
		t.Errorf("Unexpected sends %q", ch.sent)
	}
}

func TestWritePendingCap(t *testing.T) {
	b := New(Options{MaxPending: 4, Logger: zerolog.Nop()})
	defer b.Close()
	b.SetDialer(&fakeDialer{})

	_, wr, _ := b.OpenPort("echo@localhost", "tcpip_connect")
	if _, err := b.WritePort(wr, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	n, err := b.WritePort(wr, []byte("de"))
	if !errors.Is(err, port.ErrPendingFull) || n != 0 {
		t.Errorf("Expected whole write rejected, got %d, %v", n, err)
	}
	if wr.Pending() != 3 {
		t.Errorf("Expected 3 pending, got %d", wr.Pending())
	}
}

func TestWriteToReadPort(t *testing.T) {
	b, _, _ := newPortBridge(t)
	rd, _, _ := b.OpenPort("echo@localhost", "tcpip_connect")

	if _, err := b.WritePort(rd, []byte("x")); !errors.Is(err, port.ErrNotWritable) {
		t.Errorf("Expected ErrNotWritable, got %v", err)
	}
}

func TestDrainDataThenEOFOnce(t *testing.T) {
	b, d, _ := newPortBridge(t)
	rd, _, _ := b.OpenPort("echo@localhost", "tcpip_connect")
	ch := d.channels[rd.ID()]

	b.OnChannelEvent(rd.ID(), "open")
	ch.push("hello")
	b.OnChannelEvent(rd.ID(), "data")
	b.OnChannelEvent(rd.ID(), "close")

	got, ok := b.DrainPort()
	if !ok || got.Kind != DrainData || string(got.Payload) != "hello" || got.Port != rd {
		t.Fatalf("Expected data hello from read port, got %+v, %v", got, ok)
	}
	got, ok = b.DrainPort()
	if !ok || got.Kind != DrainEOF || got.Port != rd {
		t.Fatalf("Expected EOF, got %+v, %v", got, ok)
	}
	if _, ok := b.DrainPort(); ok {
		t.Error("EOF must be delivered exactly once")
	}

	if _, err := b.WritePort(rd, []byte("x")); err == nil {
		t.Error("Expected write on closed read port to fail")
	}
}

func TestDrainRefusedOnce(t *testing.T) {
	b, _, _ := newPortBridge(t)
	rd, wr, _ := b.OpenPort("nobody@localhost:1", "tcpip_connect")

	b.OnChannelEvent(rd.ID(), "error")

	got, ok := b.DrainPort()
	if !ok || got.Kind != DrainRefused || got.Port != rd {
		t.Fatalf("Expected refusal, got %+v, %v", got, ok)
	}
	if _, ok := b.DrainPort(); ok {
		t.Error("Refusal must be delivered exactly once")
	}
	if n, err := b.WritePort(wr, []byte("x")); n != 0 || !errors.Is(err, port.ErrPortClosed) {
		t.Errorf("Expected 0, ErrPortClosed on refused port, got %d, %v", n, err)
	}
}

func TestErrorAfterOpenIgnored(t *testing.T) {
	b, _, _ := newPortBridge(t)
	rd, _, _ := b.OpenPort("echo@localhost", "tcpip_connect")

	b.OnChannelEvent(rd.ID(), "open")
	b.OnChannelEvent(rd.ID(), "error")

	if st, _ := b.CtlPort(rd, CtlState, ""); st != port.StateConnected.String() {
		t.Errorf("Expected connected, got %s", st)
	}
}

func TestDialFailureRefuses(t *testing.T) {
	b := New(Options{Logger: zerolog.Nop()})
	defer b.Close()
	b.SetDialer(&fakeDialer{err: errors.New("bad url")})

	rd, wr, err := b.OpenPort("echo@localhost", "tcpip_connect")
	if err != nil {
		t.Fatalf("Dial failure should surface through the port, got %v", err)
	}
	if wr.State() != port.StateRefused {
		t.Errorf("Expected refused, got %s", wr.State())
	}
	got, ok := b.DrainPort()
	if !ok || got.Kind != DrainRefused || got.Port != rd {
		t.Errorf("Expected refusal, got %+v", got)
	}
}

func TestUnknownChannelEventIgnored(t *testing.T) {
	b, _, _ := newPortBridge(t)
	rd, _, _ := b.OpenPort("echo@localhost", "tcpip_connect")

	b.OnChannelEvent(rd.ID(), "bogus")
	b.OnChannelEvent(rd.ID()+100, "close")

	if _, ok := b.DrainPort(); ok {
		t.Error("Expected nothing to drain")
	}
	if rd.State() != port.StateUnconnected {
		t.Errorf("Expected unconnected, got %s", rd.State())
	}
}

func TestDrainMostRecentFirst(t *testing.T) {
	b, d, _ := newPortBridge(t)
	old, _, _ := b.OpenPort("one@localhost", "tcpip_connect")
	recent, _, _ := b.OpenPort("two@localhost", "tcpip_connect")

	d.channels[old.ID()].push("old")
	d.channels[recent.ID()].push("new")
	b.OnChannelEvent(old.ID(), "data")
	b.OnChannelEvent(recent.ID(), "data")

	got, _ := b.DrainPort()
	if got.Port != recent || string(got.Payload) != "new" {
		t.Errorf("Expected most recent port first, got %+v", got)
	}
	got, _ = b.DrainPort()
	if got.Port != old || string(got.Payload) != "old" {
		t.Errorf("Expected older port second, got %+v", got)
	}
}

func TestCloseSharedChannel(t *testing.T) {
	b, d, _ := newPortBridge(t)
	rd, wr, _ := b.OpenPort("echo@localhost", "tcpip_connect")
	ch := d.channels[rd.ID()]

	if err := b.ClosePort(wr); err != nil {
		t.Fatal(err)
	}
	if ch.closed {
		t.Error("Channel closed while the read port still uses it")
	}
	if err := b.ClosePort(rd); err != nil {
		t.Fatal(err)
	}
	if !ch.closed {
		t.Error("Channel should close with the last port")
	}
	if err := b.ClosePort(rd); !errors.Is(err, port.ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed on double close, got %v", err)
	}
	if _, err := b.WritePort(wr, []byte("x")); !errors.Is(err, port.ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed on released handle, got %v", err)
	}
}

func TestReleasePortAutoClose(t *testing.T) {
	b, _, _ := newPortBridge(t)
	rd, wr, _ := b.OpenPort("echo@localhost", "tcpip_connect")

	if prev, err := b.CtlPort(rd, CtlAutoClose, "false"); err != nil || prev != "true" {
		t.Fatalf("Expected previous autoclose true, got %q, %v", prev, err)
	}
	b.ReleasePort(rd)
	b.ReleasePort(wr)

	ports := b.Ports()
	if len(ports) != 1 || ports[0].Direction != "read" {
		t.Errorf("Expected only the read port to survive release, got %+v", ports)
	}
}

func TestPubSubAtMostOnce(t *testing.T) {
	b, _, _ := newPortBridge(t)
	sub1, _, _ := b.OpenPort("keykit.notes", "nats_subscribe")
	sub2, _, _ := b.OpenPort("keykit.*", "nats_subscribe")

	b.OnTopicMessage("keykit.notes", "c4")

	got, ok := b.DrainPort()
	if !ok || got.Kind != DrainData || string(got.Payload) != "c4" || got.Subject != "keykit.notes" {
		t.Fatalf("Expected c4 on keykit.notes, got %+v, %v", got, ok)
	}
	if got.Port != sub1 && got.Port != sub2 {
		t.Errorf("Unexpected port %v", got.Port)
	}
	if _, ok := b.DrainPort(); ok {
		t.Error("Message must be delivered to one subscriber only")
	}
}

func TestPubSubUnmatchedDiscarded(t *testing.T) {
	b, _, _ := newPortBridge(t)
	b.OpenPort("keykit.notes", "nats_subscribe")

	b.OnTopicMessage("other.topic", "x")
	if _, ok := b.DrainPort(); ok {
		t.Error("Unmatched message should not be delivered")
	}
	st := b.Stats()
	if st.Subjects.Len != 0 {
		t.Errorf("Expected unmatched message kept out of the store, got %d", st.Subjects.Len)
	}
	if st.Unmatched != 1 {
		t.Errorf("Expected 1 unmatched, got %d", st.Unmatched)
	}
}

func TestClosedSubscriptionDoesNotStarveStore(t *testing.T) {
	b, _, br := newPortBridge(t)
	a, _, _ := b.OpenPort("a", "nats_subscribe")
	if err := b.ClosePort(a); err != nil {
		t.Fatal(err)
	}
	if len(br.unsubs) != 1 || br.unsubs[0] != "a" {
		t.Errorf("Expected unsubscribe from a, got %v", br.unsubs)
	}

	for i := 0; i < 25; i++ {
		b.OnTopicMessage("a", "late")
	}
	sub, _, _ := b.OpenPort("b", "nats_subscribe")
	b.OnTopicMessage("b", "live")

	got, ok := b.DrainPort()
	if !ok || got.Port != sub || string(got.Payload) != "live" {
		t.Fatalf("Expected live on b, got %+v, %v", got, ok)
	}
	if st := b.Stats(); st.Topics.Dropped != 0 || st.Subjects.Dropped != 0 {
		t.Errorf("Expected no drops, got topics %d subjects %d", st.Topics.Dropped, st.Subjects.Dropped)
	}
}

func TestCloseSubscribePurgesItsMessages(t *testing.T) {
	b, _, _ := newPortBridge(t)
	notes, _, _ := b.OpenPort("keykit.notes", "nats_subscribe")
	all, _, _ := b.OpenPort("keykit.*", "nats_subscribe")

	b.OnTopicMessage("keykit.notes", "c4")
	b.OnTopicMessage("keykit.ctl", "stop")
	if st := b.Stats(); st.Topics.Len != 2 {
		t.Fatalf("Expected 2 queued topics, got %d", st.Topics.Len)
	}
	if err := b.ClosePort(all); err != nil {
		t.Fatal(err)
	}

	// keykit.ctl only matched the closed port; keykit.notes is still wanted.
	got, ok := b.DrainPort()
	if !ok || got.Port != notes || got.Subject != "keykit.notes" {
		t.Fatalf("Expected keykit.notes on the surviving port, got %+v, %v", got, ok)
	}
	if _, ok := b.DrainPort(); ok {
		t.Error("keykit.ctl should have been purged")
	}
}

func TestPublishQueuedUntilBrokerConnects(t *testing.T) {
	b, _, br := newPortBridge(t)
	_, wr, _ := b.OpenPort("keykit.out", "nats_publish")

	if _, err := b.WritePort(wr, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.WritePort(wr, []byte("y")); err != nil {
		t.Fatal(err)
	}
	if len(br.pubs) != 0 {
		t.Fatal("Nothing should be published while offline")
	}

	br.connected = true
	b.OnBrokerState(true)
	if st, _ := b.CtlPort(wr, CtlState, ""); st != port.StateConnected.String() {
		t.Errorf("Expected connected, got %s", st)
	}
	if len(br.pubs) != 1 || br.pubs[0] != (published{"keykit.out", "xy"}) {
		t.Errorf("Expected one publish of xy, got %+v", br.pubs)
	}
}

func TestPublishConnectedBroker(t *testing.T) {
	b, _, br := newPortBridge(t)
	br.connected = true
	_, wr, _ := b.OpenPort("keykit.out", "nats_publish")

	if _, err := b.WritePort(wr, []byte("now")); err != nil {
		t.Fatal(err)
	}
	if len(br.pubs) != 1 || br.pubs[0].payload != "now" {
		t.Errorf("Expected immediate publish, got %+v", br.pubs)
	}
	if got, _ := b.CtlPort(wr, CtlSubject, ""); got != "keykit.out" {
		t.Errorf("Expected subject keykit.out, got %q", got)
	}
}

func TestCtlPortUnknown(t *testing.T) {
	b, _, _ := newPortBridge(t)
	rd, _, _ := b.OpenPort("echo@localhost", "tcpip_connect")

	if _, err := b.CtlPort(rd, "explode", ""); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("Expected ErrUnknownControl, got %v", err)
	}
	if got, _ := b.CtlPort(rd, CtlChannel, ""); got != "1" {
		t.Errorf("Expected channel 1, got %q", got)
	}
}

func TestCloseBridgeClosesChannels(t *testing.T) {
	b := New(Options{Logger: zerolog.Nop()})
	d := &fakeDialer{}
	b.SetDialer(d)
	rd, _, _ := b.OpenPort("echo@localhost", "tcpip_connect")

	_ = b.Close()
	if !d.channels[rd.ID()].closed {
		t.Error("Expected channel closed")
	}
	if len(b.Ports()) != 0 {
		t.Error("Expected no ports after close")
	}
}
