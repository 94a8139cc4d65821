// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"
	"sync"
)

// ModuleEntry is a registered feature module (§6 Module contract). Criteria
// classifies an inbound stanza; Process handles one that matches. Features
// lists the static capability URIs the module contributes to the session's
// advertised/negotiated feature set (used by e.g. the SASL and SM modules
// to tell the negotiator what they can do).
type ModuleEntry struct {
	ID       string
	Criteria func(Stanza) bool
	Process  func(context.Context, *Session, Stanza) error

	// FilterIncoming, if non-nil, runs ahead of response correlation and
	// module routing for every inbound stanza, in registration order. It
	// reports whether it consumed the stanza (§4.2 step 1).
	FilterIncoming func(context.Context, *Session, *Stanza) (consumed bool, err error)

	// FilterOutgoing, if non-nil, runs on every outbound stanza before it is
	// handed to the transport (§4.2 Outbound contract), in registration
	// order. It receives the full token stream for the stanza (envelope and
	// body together) and returns the stream to actually send, letting it
	// wrap or replace the content; it must not block or call back into the
	// dispatcher.
	FilterOutgoing func(context.Context, *Session, xml.TokenReader) (xml.TokenReader, error)

	Features []string

	// Lifecycle hooks (§6), all optional.
	StreamStarted       func(*Session)
	ConnectionRestarted func(*Session)
	Reset               func(*Session)

	// Impl, when non-nil, is the module's concrete value, used by the
	// session state machine (negotiate.go) to invoke the negotiation-
	// specific operations (login, bind, resume, establish, enable) that the
	// generic Criteria/Process stanza-routing contract above doesn't cover.
	// A module that only handles ordinary stanzas leaves this nil.
	Impl interface{}
}

// Registry is the flat mapping from stable module identifiers to module
// handles (C2). It is written once during setup, before bind, and is
// read-only afterwards (§5 Shared resources); the mutex exists to guard
// against accidental concurrent registration rather than steady-state
// contention.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*ModuleEntry
	order   []string
	sealed  bool
}

// NewRegistry returns an empty module registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*ModuleEntry)}
}

// Register adds a module to the registry. It panics if called after Seal or
// with a duplicate ID, since both indicate a programming error rather than
// a runtime condition a caller can recover from.
func (r *Registry) Register(m *ModuleEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("xmpp: Register(%q) called after the registry was sealed", m.ID))
	}
	if _, ok := r.entries[m.ID]; ok {
		panic(fmt.Sprintf("xmpp: duplicate module ID %q", m.ID))
	}
	r.entries[m.ID] = m
	r.order = append(r.order, m.ID)
}

// Seal marks the registry read-only. NewSession calls this when it
// constructs the session (§5).
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup returns the module with the given ID, if any.
func (r *Registry) Lookup(id string) (*ModuleEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[id]
	return m, ok
}

// Each calls fn for every registered module in registration order. fn must
// not call Register.
func (r *Registry) Each(fn func(*ModuleEntry)) {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	r.mu.RUnlock()

	for _, id := range order {
		r.mu.RLock()
		m := r.entries[id]
		r.mu.RUnlock()
		fn(m)
	}
}

// Matching returns, in registration order, every module whose Criteria
// matches the given stanza (§4.2 step 4). payload is called once per
// candidate module to hand each Criteria its own fresh, independently
// readable copy of the stanza's payload, since a Criteria that needs to
// inspect the payload (e.g. to check its namespace) would otherwise drain
// a reader shared with every other module's Criteria call in this pass.
func (r *Registry) Matching(s Stanza, payload func() xml.TokenReader) []*ModuleEntry {
	var matched []*ModuleEntry
	r.Each(func(m *ModuleEntry) {
		if m.Criteria == nil {
			return
		}
		s.Payload = payload()
		if m.Criteria(s) {
			matched = append(matched, m)
		}
	})
	return matched
}

// Features returns the union of every registered module's advertised
// feature URIs, in registration order, duplicates included (callers that
// care about uniqueness can dedupe).
func (r *Registry) Features() []string {
	var out []string
	r.Each(func(m *ModuleEntry) {
		out = append(out, m.Features...)
	})
	return out
}
