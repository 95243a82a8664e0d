// If you are AI: This file implements the port Registry, an arena slot table with an intrusive
// order list so ports can be scanned most-recent-first and unlinked in O(1).

package port

// Registry tracks live ports.
// Ports live in arena slots; prev/next indices link them newest-first, so removal
// never has to search for a predecessor. A side index maps channel ids to ports,
// since the two halves of a bidirectional connection share one id.
// Lock expectations: Not safe for concurrent use; the bridge serialises access.
// Allocation: Slots are reused through a free list.
type Registry struct {
	slots []*Port
	prev  []int
	next  []int
	free  []int
	head  int
	count int
	byID  map[ChannelID][]*Port
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		head: -1,
		byID: make(map[ChannelID][]*Port),
	}
}

// Add links p at the front of the scan order.
// Returns false if p is already registered.
func (r *Registry) Add(p *Port) bool {
	if p == nil || p.slot >= 0 {
		return false
	}

	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = len(r.slots)
		r.slots = append(r.slots, nil)
		r.prev = append(r.prev, -1)
		r.next = append(r.next, -1)
	}

	r.slots[idx] = p
	r.prev[idx] = -1
	r.next[idx] = r.head
	if r.head >= 0 {
		r.prev[r.head] = idx
	}
	r.head = idx
	p.slot = idx

	r.byID[p.id] = append(r.byID[p.id], p)
	r.count++
	return true
}

// Remove unlinks p, releases its buffers and marks it closed.
// Returns false if p was not registered; a port is removed exactly once.
func (r *Registry) Remove(p *Port) bool {
	if p == nil || p.slot < 0 || p.slot >= len(r.slots) || r.slots[p.slot] != p {
		return false
	}

	idx := p.slot
	if pv := r.prev[idx]; pv >= 0 {
		r.next[pv] = r.next[idx]
	} else {
		r.head = r.next[idx]
	}
	if nx := r.next[idx]; nx >= 0 {
		r.prev[nx] = r.prev[idx]
	}
	r.slots[idx] = nil
	r.prev[idx], r.next[idx] = -1, -1
	r.free = append(r.free, idx)
	p.slot = -1

	siblings := r.byID[p.id]
	for i, q := range siblings {
		if q == p {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(r.byID, p.id)
	} else {
		r.byID[p.id] = siblings
	}

	p.release()
	r.count--
	return true
}

// Lookup returns the ports sharing a channel id.
// The returned slice must not be modified.
func (r *Registry) Lookup(id ChannelID) []*Port {
	return r.byID[id]
}

// Contains reports whether p is registered.
func (r *Registry) Contains(p *Port) bool {
	return p != nil && p.slot >= 0 && p.slot < len(r.slots) && r.slots[p.slot] == p
}

// Each visits ports most-recently-added first until fn returns false.
// fn must not add or remove ports.
func (r *Registry) Each(fn func(*Port) bool) {
	for idx := r.head; idx >= 0; idx = r.next[idx] {
		if !fn(r.slots[idx]) {
			return
		}
	}
}

// Len returns the number of registered ports.
func (r *Registry) Len() int {
	return r.count
}

// List returns the registered ports in scan order.
func (r *Registry) List() []*Port {
	ports := make([]*Port, 0, r.count)
	r.Each(func(p *Port) bool {
		ports = append(ports, p)
		return true
	})
	return ports
}
