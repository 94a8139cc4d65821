// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"
	"sync"
)

// outboundPipeline runs the outbound filter chain to completion before any
// byte reaches the transport, for a given stanza (C6, §4.2 Outbound
// contract, §5 Ordering guarantees).
type outboundPipeline struct {
	registry  *Registry
	transport Transport

	// writeMu serializes the final Transport.Send call, since Transport.Send
	// "must not be called concurrently with another Send" and application
	// code may call Session.Send/SendIQ from more than one goroutine once a
	// session is Connected. A plain mutex, not the task queue, is used
	// deliberately: the task queue also delivers event-bus handler
	// callbacks, and a handler that calls Send while running on the queue's
	// goroutine would deadlock against itself if Send were also routed
	// through the queue.
	writeMu sync.Mutex
}

func newOutboundPipeline(registry *Registry, transport Transport) *outboundPipeline {
	return &outboundPipeline{registry: registry, transport: transport}
}

// Send runs every registered FilterOutgoing hook in registration order, then
// writes the resulting token stream to the transport.
func (p *outboundPipeline) Send(ctx context.Context, sess *Session, tok xml.TokenReader) error {
	var err error
	p.registry.Each(func(m *ModuleEntry) {
		if err != nil || m.FilterOutgoing == nil {
			return
		}
		tok, err = m.FilterOutgoing(ctx, sess, tok)
	})
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.transport.Send(ctx, tok)
}
