// If you are AI: This file exposes a read-only snapshot of bridge buffers and ports for diagnostics.

package bridge

import (
	"portbridge/internal/core/port"
)

// BufferStats describes one bounded buffer.
type BufferStats struct {
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
	Dropped uint64 `json:"dropped"`
}

// Stats is a point-in-time view of the bridge.
type Stats struct {
	MIDI      BufferStats `json:"midi"`
	Keys      BufferStats `json:"keys"`
	Mouse     BufferStats `json:"mouse"`
	Signals   BufferStats `json:"signals"`
	Topics    BufferStats `json:"topics"`
	Subjects  BufferStats `json:"subjects"`
	Unmatched uint64      `json:"unmatched"` // topic messages no listen port matched
	Ports     []port.Info `json:"ports"`
	Closed    bool        `json:"closed"`
}

// Stats returns a snapshot. Safe to call from any goroutine.
// Queued channel signals are not applied, so port states may lag by one consumer call.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		MIDI:    BufferStats{Len: b.midi.Len(), Cap: b.midi.Cap(), Dropped: b.midi.Dropped()},
		Keys:    BufferStats{Len: b.keys.Len(), Cap: b.keys.Cap(), Dropped: b.keys.Dropped()},
		Mouse:   BufferStats{Len: b.mouse.Len(), Cap: b.mouse.Cap(), Dropped: b.mouse.Dropped()},
		Signals: BufferStats{Len: b.signals.Len(), Cap: b.signals.Cap(), Dropped: b.signals.Dropped()},
		Topics:  BufferStats{Len: b.topics.Len(), Cap: b.topics.Cap(), Dropped: b.topics.Dropped()},
		Subjects: BufferStats{
			Len:     b.store.Len(),
			Cap:     b.store.Cap(),
			Dropped: b.store.Dropped(),
		},
		Unmatched: b.unmatched,
		Ports:     make([]port.Info, 0, b.registry.Len()),
		Closed:    b.closed.Load(),
	}
	b.registry.Each(func(p *port.Port) bool {
		s.Ports = append(s.Ports, p.Info())
		return true
	})
	return s
}

// Ports returns a snapshot of the open ports, newest first.
func (b *Bridge) Ports() []port.Info {
	return b.Stats().Ports
}
