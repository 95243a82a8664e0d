// If you are AI: This file implements the subject-indexed message store used by pub/sub ports.
// Messages sit in a bounded FIFO; a take removes the first match by compacting later slots.

package subject

// DefaultCapacity is the number of messages the store holds.
const DefaultCapacity = 20

// Message is one published message.
type Message struct {
	Subject string
	Payload []byte
}

// Store is a bounded FIFO of messages searchable by subject.
// Live messages occupy slots[read:write]. A take at the read cursor only advances
// the cursor; a take further in shifts the later slots left by one.
// Delivery is at-most-once: a taken message is gone for every subscriber.
// Lock expectations: Not safe for concurrent use; the bridge serialises access.
// Allocation: Slots pre-allocated; payloads are owned by the stored message.
type Store struct {
	slots   []Message
	read    int
	write   int
	dropped uint64
}

// NewStore creates a store with the given capacity (DefaultCapacity if <= 0).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{slots: make([]Message, capacity)}
}

// Put appends a message. Returns false and counts a drop if the store is full.
func (s *Store) Put(msg Message) bool {
	if s.Full() {
		s.dropped++
		return false
	}
	if s.write == len(s.slots) {
		// Live messages sit at the tail: slide them to the front.
		n := copy(s.slots, s.slots[s.read:s.write])
		for i := n; i < s.write; i++ {
			s.slots[i] = Message{}
		}
		s.read, s.write = 0, n
	}
	s.slots[s.write] = msg
	s.write++
	return true
}

// Has reports whether any buffered message matches pattern.
func (s *Store) Has(pattern string) bool {
	return s.find(pattern) >= 0
}

// Take removes and returns the oldest message matching pattern.
func (s *Store) Take(pattern string) (Message, bool) {
	idx := s.find(pattern)
	if idx < 0 {
		return Message{}, false
	}

	msg := s.slots[idx]
	if idx == s.read {
		s.slots[idx] = Message{}
		s.read++
	} else {
		copy(s.slots[idx:], s.slots[idx+1:s.write])
		s.write--
		s.slots[s.write] = Message{}
	}

	if s.read == s.write {
		s.read, s.write = 0, 0
	}
	return msg, true
}

// find returns the slot index of the first message matching pattern, or -1.
func (s *Store) find(pattern string) int {
	for i := s.read; i < s.write; i++ {
		if Match(pattern, s.slots[i].Subject) {
			return i
		}
	}
	return -1
}

// Len returns the number of buffered messages.
func (s *Store) Len() int {
	return s.write - s.read
}

// Cap returns the store capacity.
func (s *Store) Cap() int {
	return len(s.slots)
}

// Full reports whether a Put would be dropped.
func (s *Store) Full() bool {
	return s.Len() >= len(s.slots)
}

// Dropped returns the number of messages rejected because the store was full.
func (s *Store) Dropped() uint64 {
	return s.dropped
}

// Subjects returns the subjects of buffered messages in FIFO order.
func (s *Store) Subjects() []string {
	out := make([]string, 0, s.Len())
	for i := s.read; i < s.write; i++ {
		out = append(out, s.slots[i].Subject)
	}
	return out
}

// Purge removes every message whose subject keep rejects, preserving the order of the
// rest. Returns how many messages were removed.
func (s *Store) Purge(keep func(subject string) bool) int {
	n := s.read
	for i := s.read; i < s.write; i++ {
		if keep(s.slots[i].Subject) {
			s.slots[n] = s.slots[i]
			n++
		}
	}
	removed := s.write - n
	for i := n; i < s.write; i++ {
		s.slots[i] = Message{}
	}
	s.write = n
	if s.read == s.write {
		s.read, s.write = 0, 0
	}
	return removed
}
