package dispatch

import "sync"

// streamIDAllocator hands out locally-unique, non-zero 32-bit stream
// identifiers and recycles ids once the dispatcher has fully forgotten them
// (removed from both the live stream table and the pending-open table).
//
// Unlike the teacher's outbound identifier counter, which partitions the
// space by parity to avoid negotiation between two symmetric endpoints, a
// single ADB dispatcher assigns every localId (for streams it opens and for
// streams the peer opens) out of one namespace, since localId and remoteId
// already live in disjoint namespaces by construction. Monotonic counting is
// not a correctness requirement, only a convenient default: ids are recycled
// by release rather than reused by wraparound watching.
type streamIDAllocator struct {
	lock     sync.Mutex
	next     uint32
	released map[uint32]struct{}
}

// newStreamIDAllocator constructs an allocator that begins handing out ids
// at 1.
func newStreamIDAllocator() *streamIDAllocator {
	return &streamIDAllocator{
		next:     1,
		released: make(map[uint32]struct{}),
	}
}

// allocate returns the next available stream id. Zero is never returned.
func (a *streamIDAllocator) allocate() uint32 {
	a.lock.Lock()
	defer a.lock.Unlock()
	for id := range a.released {
		delete(a.released, id)
		return id
	}
	id := a.next
	a.next++
	if a.next == 0 {
		// Wrapped past the 32-bit space; skip reserved zero.
		a.next = 1
	}
	return id
}

// release marks id as eligible for reuse. It must only be called once the
// dispatcher has removed all trace of id from both its stream table and its
// pending-open table.
func (a *streamIDAllocator) release(id uint32) {
	if id == 0 {
		return
	}
	a.lock.Lock()
	a.released[id] = struct{}{}
	a.lock.Unlock()
}
