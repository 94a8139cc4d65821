// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"sync"

	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
	"corexmpp.dev/xmpp/stream"
)

// EventKind enumerates the typed events carried on the event bus (C4). The
// first block is the public vocabulary exposed to modules (§6 Exposed
// events); the remainder are the negotiator's own inputs (§4.1), driven
// through the same bus so the state machine observes a single ordered event
// stream rather than a scatter of callbacks.
type EventKind uint8

const (
	EvStreamFeaturesReceived EventKind = iota
	EvAuthSuccess
	EvAuthFailed
	EvAuthFinishExpected
	EvResourceBindSuccess
	EvResourceBindError
	EvSessionEstablishmentSuccess
	EvSessionEstablishmentError
	EvSmResumed
	EvSmFailed
	EvSessionCleared
	EvError

	evTransportStateChanged
	evStreamTerminated
)

func (k EventKind) String() string {
	switch k {
	case EvStreamFeaturesReceived:
		return "stream_features_received"
	case EvAuthSuccess:
		return "auth_success"
	case EvAuthFailed:
		return "auth_failed"
	case EvAuthFinishExpected:
		return "auth_finish_expected"
	case EvResourceBindSuccess:
		return "resource_bind_success"
	case EvResourceBindError:
		return "resource_bind_error"
	case EvSessionEstablishmentSuccess:
		return "session_establishment_success"
	case EvSessionEstablishmentError:
		return "session_establishment_error"
	case EvSmResumed:
		return "sm_resumed"
	case EvSmFailed:
		return "sm_failed"
	case EvSessionCleared:
		return "session_cleared"
	case EvError:
		return "error_event"
	case evTransportStateChanged:
		return "transport_state_changed"
	case evStreamTerminated:
		return "stream_terminated"
	default:
		return "unknown"
	}
}

// Event is the single sum type carried on the bus. Which fields are
// populated depends on Kind; see the EventKind constants for which.
type Event struct {
	Kind EventKind

	// Features is populated on EvStreamFeaturesReceived.
	Features *FeatureSet

	// JID is populated on EvResourceBindSuccess.
	JID jid.JID

	// Condition is populated on EvResourceBindError/EvSessionEstablishmentError
	// when the failure carries a recognized stanza error condition.
	Condition stanza.Condition

	// StreamErr is populated on EvError when the triggering cause was a
	// parsed <stream:error>.
	StreamErr *stream.Error

	// Transport is populated on evTransportStateChanged.
	Transport TransportState

	// Err carries the underlying Go error for failure events that don't fit
	// a stanza.Condition (auth failures, I/O faults, timeouts).
	Err error
}

// EventHandler receives events published on an EventBus.
type EventHandler func(context.Context, Event)

// EventBus is the publish/subscribe mechanism between the session core and
// feature modules (C4). It is safe for concurrent Subscribe/Publish; per §5,
// handlers are always invoked on the session's task queue rather than
// synchronously from the publisher's goroutine, so they may safely mutate
// session state without additional locking.
type EventBus struct {
	mu   sync.Mutex
	subs map[EventKind][]EventHandler
	post func(func())
}

// newEventBus creates a bus that delivers handler invocations via post,
// which is expected to enqueue the given function on the session's task
// queue (see queue.go).
func newEventBus(post func(func())) *EventBus {
	return &EventBus{
		subs: make(map[EventKind][]EventHandler),
		post: post,
	}
}

// Subscribe registers h to be called for every future event of kind k, in
// registration order relative to other subscribers of the same kind.
func (b *EventBus) Subscribe(k EventKind, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[k] = append(b.subs[k], h)
}

// Publish enqueues delivery of e to every subscriber of e.Kind.
func (b *EventBus) Publish(ctx context.Context, e Event) {
	b.mu.Lock()
	handlers := append([]EventHandler(nil), b.subs[e.Kind]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h := h
		b.post(func() { h(ctx, e) })
	}
}
