// If you are AI: This file implements the bounded ring buffer shared by every event source.
// CRITICAL: Both writePos and readPos increment freely (never masked). Only use the mask
// when indexing into the buffer array. The emptiness check readPos==writePos relies on
// both counters using the same domain.

package ring

import (
	"sync/atomic"
)

// BackpressureStrategy defines how the ring buffer handles overflow.
type BackpressureStrategy uint8

const (
	// BackpressureDropNewest rejects the incoming record when the buffer is full.
	// This is the policy used by all host event sources.
	BackpressureDropNewest BackpressureStrategy = iota
	// BackpressureDropOldest discards the oldest record to make room.
	BackpressureDropOldest
)

// RingBuffer is a fixed-capacity circular store of fixed-size records.
// It is lock-free for a single producer and a single consumer. Callers with
// several producers must serialise their writes.
// Allocation: Pre-allocated slots, no per-record allocations.
type RingBuffer[T any] struct {
	buffer   []T    // Pre-allocated record slots
	size     uint32 // Buffer size (power of 2 for efficient modulo)
	mask     uint32 // size - 1, for efficient modulo (index = pos & mask)
	writePos uint32 // Write position (atomic, free-running)
	readPos  uint32 // Read position (atomic, free-running)
	strategy BackpressureStrategy
	dropped  uint64 // Counter for dropped records (atomic)
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
// Capacity is rounded up to a power of 2 for efficient modulo via bitmask.
func NewRingBuffer[T any](capacity uint32, strategy BackpressureStrategy) *RingBuffer[T] {
	actualSize := uint32(1)
	for actualSize < capacity {
		actualSize <<= 1
	}

	return &RingBuffer[T]{
		buffer:   make([]T, actualSize),
		size:     actualSize,
		mask:     actualSize - 1,
		strategy: strategy,
	}
}

// Write attempts to store a record.
// Returns false if the buffer was full and the record was dropped (DropNewest).
// Lock expectations: Single writer.
// NOTE: DropOldest advances readPos from the writer side, so it is only safe when
// the producer and consumer do not run concurrently.
func (rb *RingBuffer[T]) Write(v T) bool {
	writePos := atomic.LoadUint32(&rb.writePos)
	readPos := atomic.LoadUint32(&rb.readPos)

	// Unsigned subtraction works correctly even after uint32 wrap.
	if writePos-readPos >= rb.size {
		atomic.AddUint64(&rb.dropped, 1)
		if rb.strategy != BackpressureDropOldest {
			return false
		}
		atomic.AddUint32(&rb.readPos, 1)
	}

	rb.buffer[writePos&rb.mask] = v
	atomic.StoreUint32(&rb.writePos, writePos+1)
	return true
}

// WriteAll stores all records or none of them.
// A rejected batch counts as one drop per record.
// Lock expectations: Single writer.
func (rb *RingBuffer[T]) WriteAll(vs ...T) bool {
	n := uint32(len(vs))
	if n == 0 {
		return true
	}

	writePos := atomic.LoadUint32(&rb.writePos)
	readPos := atomic.LoadUint32(&rb.readPos)
	if n > rb.size-(writePos-readPos) {
		atomic.AddUint64(&rb.dropped, uint64(n))
		return false
	}

	for i, v := range vs {
		rb.buffer[(writePos+uint32(i))&rb.mask] = v
	}
	// Publish the whole batch at once so the reader never sees a partial record group.
	atomic.StoreUint32(&rb.writePos, writePos+n)
	return true
}

// Read removes and returns the oldest record.
// Returns the zero value and false if empty.
// Lock expectations: Single reader.
func (rb *RingBuffer[T]) Read() (T, bool) {
	var zero T
	readPos := atomic.LoadUint32(&rb.readPos)
	writePos := atomic.LoadUint32(&rb.writePos)

	if readPos == writePos {
		return zero, false
	}

	idx := readPos & rb.mask
	v := rb.buffer[idx]
	rb.buffer[idx] = zero // release references held by the slot
	atomic.StoreUint32(&rb.readPos, readPos+1)
	return v, true
}

// ReadInto drains up to len(out) records into out and returns the count.
// Lock expectations: Single reader.
func (rb *RingBuffer[T]) ReadInto(out []T) int {
	readPos := atomic.LoadUint32(&rb.readPos)
	writePos := atomic.LoadUint32(&rb.writePos)

	n := writePos - readPos
	if uint32(len(out)) < n {
		n = uint32(len(out))
	}

	var zero T
	for i := uint32(0); i < n; i++ {
		idx := (readPos + i) & rb.mask
		out[i] = rb.buffer[idx]
		rb.buffer[idx] = zero
	}
	atomic.StoreUint32(&rb.readPos, readPos+n)
	return int(n)
}

// Peek returns the oldest record without removing it.
func (rb *RingBuffer[T]) Peek() (T, bool) {
	var zero T
	readPos := atomic.LoadUint32(&rb.readPos)
	writePos := atomic.LoadUint32(&rb.writePos)

	if readPos == writePos {
		return zero, false
	}
	return rb.buffer[readPos&rb.mask], true
}

// Len returns the number of buffered records.
// Invariant: Len() == (writePos - readPos) mod 2^32, never above Cap().
func (rb *RingBuffer[T]) Len() int {
	writePos := atomic.LoadUint32(&rb.writePos)
	readPos := atomic.LoadUint32(&rb.readPos)
	return int(writePos - readPos)
}

// Cap returns the fixed capacity (after power-of-2 rounding).
func (rb *RingBuffer[T]) Cap() int {
	return int(rb.size)
}

// Available returns the number of free slots in the buffer.
func (rb *RingBuffer[T]) Available() uint32 {
	writePos := atomic.LoadUint32(&rb.writePos)
	readPos := atomic.LoadUint32(&rb.readPos)
	return rb.size - (writePos - readPos)
}

// Dropped returns the number of records dropped due to backpressure.
func (rb *RingBuffer[T]) Dropped() uint64 {
	return atomic.LoadUint64(&rb.dropped)
}

// Reset discards all buffered records. The drop counter is kept.
// Lock expectations: No concurrent producer or consumer.
func (rb *RingBuffer[T]) Reset() {
	var zero T
	for i := range rb.buffer {
		rb.buffer[i] = zero
	}
	atomic.StoreUint32(&rb.readPos, 0)
	atomic.StoreUint32(&rb.writePos, 0)
}
