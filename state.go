// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import "sync"

// SessionState is the observable state of a Session. It is distinct from the
// underlying Transport's socket state: a session is only Connected once the
// resource has been bound (and, if required, the legacy session established
// or stream management resumed).
type SessionState uint8

const (
	// Disconnected is the state of a Session before it has been started, or
	// after it has fully torn down.
	Disconnected SessionState = iota

	// Connecting is the state of a Session from the moment a transport
	// connection attempt begins until bind (or SM resumption) succeeds.
	Connecting

	// Connected is the state of a Session once it is ready to carry
	// application stanzas.
	Connected

	// Disconnecting is the state of a Session while Close is shutting it
	// down (stopping keepalive, failing pending responses, closing the
	// transport). No stream-management ack is requested or sent, and no
	// module hook runs.
	Disconnecting
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// phase is the internal negotiation phase driven by the session state
// machine (C7). It is finer grained than SessionState: most phases occur
// while SessionState is still Connecting.
type phase uint8

const (
	phaseAwaitingFeatures phase = iota
	phaseStartTLS
	phaseCompression
	phaseAuth
	phaseBind
	phaseSession
	phaseSmEnable
	phaseReady
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingFeatures:
		return "awaiting_features"
	case phaseStartTLS:
		return "starttls_in_progress"
	case phaseCompression:
		return "compression_in_progress"
	case phaseAuth:
		return "auth_in_progress"
	case phaseBind:
		return "bind_in_progress"
	case phaseSession:
		return "session_in_progress"
	case phaseSmEnable:
		return "sm_enable_in_progress"
	case phaseReady:
		return "ready"
	case phaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// publishedState is a single-owner-writes, many-subscribers-read primitive
// used to observe SessionState changes from outside the task queue without
// taking the queue's lock, per §5's "published-value" requirement. It plays
// the role the teacher's RWMutex-guarded Session.state field played, except
// that change notifications are also delivered to subscribers.
type publishedState struct {
	mu   sync.RWMutex
	val  SessionState
	subs map[chan SessionState]struct{}
}

func newPublishedState(initial SessionState) *publishedState {
	return &publishedState{
		val:  initial,
		subs: make(map[chan SessionState]struct{}),
	}
}

// Get returns the current state.
func (p *publishedState) Get() SessionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.val
}

// set updates the state and notifies subscribers. Notification is
// non-blocking: a subscriber that is not ready to receive misses the
// intermediate value but will still see the latest one on its next read via
// Get.
func (p *publishedState) set(s SessionState) {
	p.mu.Lock()
	p.val = s
	subs := make([]chan SessionState, 0, len(p.subs))
	for ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe registers a channel that receives subsequent state changes. The
// returned cancel function unregisters it; callers must call it to avoid
// leaking the channel.
func (p *publishedState) Subscribe() (ch <-chan SessionState, cancel func()) {
	c := make(chan SessionState, 1)
	p.mu.Lock()
	p.subs[c] = struct{}{}
	p.mu.Unlock()

	return c, func() {
		p.mu.Lock()
		delete(p.subs, c)
		p.mu.Unlock()
	}
}
