// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"encoding/xml"
	"sync"
	"time"

	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

// pendingResponse is one entry in the response table (C3). It is created
// when an outbound IQ is sent with a callback, and destroyed on a matching
// inbound result/error, on deadline, or on session teardown (§3).
type pendingResponse struct {
	id       string
	to       jid.JID
	callback func(stanza.IQ, xml.TokenReader, error)
	deadline time.Time
}

type responseKey struct {
	id string
	to string
}

func responseKeyFor(id string, to jid.JID) responseKey {
	return responseKey{id: id, to: to.Bare().String()}
}

// responseTable correlates outbound request stanzas with inbound responses
// by (id, normalized-from), per §4.3. Mutations are expected to happen from
// the session's task queue, matching §5's "Concurrency: mutations
// serialized via the core's task queue"; the mutex additionally guards the
// reaper goroutine, which runs independently of the queue.
type responseTable struct {
	mu      sync.Mutex
	entries map[responseKey]*pendingResponse

	queue *taskQueue
	stop  chan struct{}
}

func newResponseTable(queue *taskQueue) *responseTable {
	t := &responseTable{
		entries: make(map[responseKey]*pendingResponse),
		queue:   queue,
		stop:    make(chan struct{}),
	}
	go t.reap()
	return t
}

// Register inserts a pending entry keyed by (id, to.Bare()). A zero deadline
// means the entry never expires on its own (still subject to FailAll).
func (t *responseTable) Register(id string, to jid.JID, deadline time.Time, cb func(stanza.IQ, xml.TokenReader, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[responseKeyFor(id, to)] = &pendingResponse{
		id:       id,
		to:       to,
		callback: cb,
		deadline: deadline,
	}
}

// Take removes and returns the pending entry matching s, if s is an IQ of
// type result or error whose (id, from) correlates with a registered entry
// (§4.2 steps 2-3). After Take returns an entry, no further match is
// possible for it: it has already been deleted from the table.
func (t *responseTable) Take(s Stanza) (*pendingResponse, bool) {
	if !s.IsResponse() {
		return nil, false
	}
	k := responseKeyFor(s.ID, s.From)
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[k]
	if !ok {
		return nil, false
	}
	delete(t.entries, k)
	return p, true
}

// Remove deletes and returns the pending entry for (id, to), if any. Used
// when sending the original request itself fails, so the entry doesn't sit
// around waiting for a reply that will never be correlated.
func (t *responseTable) Remove(id string, to jid.JID) (*pendingResponse, bool) {
	k := responseKeyFor(id, to)
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[k]
	if !ok {
		return nil, false
	}
	delete(t.entries, k)
	return p, true
}

// FailAll synchronously empties the table, invoking every pending
// callback with err. Used on session teardown so that the invariant "the
// response table is empty whenever session state is Disconnected" (§3)
// holds.
func (t *responseTable) FailAll(err error) {
	t.mu.Lock()
	entries := make([]*pendingResponse, 0, len(t.entries))
	for k, p := range t.entries {
		entries = append(entries, p)
		delete(t.entries, k)
	}
	t.mu.Unlock()

	for _, p := range entries {
		p.callback(stanza.IQ{ID: p.id, To: p.to}, nil, err)
	}
}

// reap periodically expires entries past their deadline, invoking their
// callback with ErrResponseTimeout on the task queue (§4.3, §5 Cancellation
// & timeouts).
func (t *responseTable) reap() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			var expired []*pendingResponse
			t.mu.Lock()
			for k, p := range t.entries {
				if !p.deadline.IsZero() && now.After(p.deadline) {
					expired = append(expired, p)
					delete(t.entries, k)
				}
			}
			t.mu.Unlock()

			for _, p := range expired {
				p := p
				t.queue.Post(func() {
					p.callback(stanza.IQ{ID: p.id, To: p.to}, nil, ErrResponseTimeout)
				})
			}
		case <-t.stop:
			return
		}
	}
}

// Close stops the reaper goroutine. It does not fail pending entries; call
// FailAll first if that is desired.
func (t *responseTable) Close() {
	close(t.stop)
}
