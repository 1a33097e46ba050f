package dispatch

import "sync"

// openResult is the outcome delivered to a pending open's waiter: either a
// remoteId (the peer accepted the stream) or an error (the peer rejected it,
// or the dispatcher was disposed while the open was outstanding).
type openResult struct {
	remoteID uint32
	err      error
}

// pendingOpen is a one-shot rendezvous between the dispatcher's inbound
// handler and the goroutine blocked in CreateStream. It mirrors the
// single-producer/single-consumer future the design notes call for; here
// it's realized as a channel with capacity one guarded by a sync.Once so
// that only the first of resolve/reject has any effect.
type pendingOpen struct {
	once sync.Once
	done chan openResult
}

func newPendingOpenEntry() *pendingOpen {
	return &pendingOpen{done: make(chan openResult, 1)}
}

// complete delivers result to the waiter if this is the first completion.
// It reports whether it was the one to complete the entry.
func (p *pendingOpen) complete(result openResult) bool {
	completed := false
	p.once.Do(func() {
		p.done <- result
		completed = true
	})
	return completed
}

// pendingOpenTable correlates outbound OPEN requests (keyed by the localId
// reserved for them) to their eventual OKAY or CLSE reply.
type pendingOpenTable struct {
	lock    sync.Mutex
	entries map[uint32]*pendingOpen
}

func newPendingOpenTable() *pendingOpenTable {
	return &pendingOpenTable{entries: make(map[uint32]*pendingOpen)}
}

// add registers a new pending open for id and returns the entry that will
// later be completed by resolve or reject.
func (t *pendingOpenTable) add(id uint32) *pendingOpen {
	entry := newPendingOpenEntry()
	t.lock.Lock()
	t.entries[id] = entry
	t.lock.Unlock()
	return entry
}

// contains reports whether id currently has a pending open outstanding.
func (t *pendingOpenTable) contains(id uint32) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	_, ok := t.entries[id]
	return ok
}

// remove forgets id regardless of whether it was ever resolved. It's used
// once a waiter has consumed the result (or given up) so the id can be
// recycled.
func (t *pendingOpenTable) remove(id uint32) {
	t.lock.Lock()
	delete(t.entries, id)
	t.lock.Unlock()
}

// resolve completes id's pending open successfully with remoteID. It reports
// whether a pending open for id existed; a duplicate resolve on an id that
// was already completed (or never existed) is a no-op that returns false.
func (t *pendingOpenTable) resolve(id uint32, remoteID uint32) bool {
	t.lock.Lock()
	entry, ok := t.entries[id]
	t.lock.Unlock()
	if !ok {
		return false
	}
	return entry.complete(openResult{remoteID: remoteID})
}

// reject completes id's pending open with err. Same idempotence rules as
// resolve.
func (t *pendingOpenTable) reject(id uint32, err error) bool {
	t.lock.Lock()
	entry, ok := t.entries[id]
	t.lock.Unlock()
	if !ok {
		return false
	}
	return entry.complete(openResult{err: err})
}
