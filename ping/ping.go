// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package ping implements XEP-0199: XMPP Ping.
package ping

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"mellium.im/xmlstream"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

// Module answers incoming pings and performs outgoing ones, registering a
// disco#info feature and a response handler for both directions.
type Module struct {
	// Timeout bounds an outgoing Ping call; zero means Config.RequestTimeout.
	Timeout time.Duration
}

// New returns a ping module.
func New() *Module {
	return &Module{}
}

// Entry returns a registry entry that answers inbound pings and exposes
// this module as the keepalive scheduler's pinger.
func (m *Module) Entry() *xmpp.ModuleEntry {
	return &xmpp.ModuleEntry{
		ID:       "ping",
		Features: []string{ns.Ping},
		Criteria: m.criteria,
		Process:  m.process,
		Impl:     m,
	}
}

// criteria inspects the payload itself, rather than matching every get IQ,
// since the registry hands every candidate module's Criteria call its own
// independent copy of the payload (Registry.Matching) precisely so more
// than one module can safely peek it per dispatch. Matching broadly and
// declining in process would make the dispatcher's own
// feature-not-implemented fallback (triggered only when no module's
// Criteria matches at all) unreachable for any get IQ, and would race
// against any other module that also wanted to claim "every get IQ".
func (m *Module) criteria(s xmpp.Stanza) bool {
	if !s.IsIQ() || s.Type != string(stanza.GetIQ) || s.Payload == nil {
		return false
	}
	tok, err := s.Payload.Token()
	if err != nil {
		return false
	}
	start, ok := tok.(xml.StartElement)
	return ok && start.Name.Space == ns.Ping && start.Name.Local == "ping"
}

// process answers an inbound ping. Criteria has already confirmed the
// payload is a <ping/>, so no further discrimination is needed here.
func (m *Module) process(ctx context.Context, sess *xmpp.Session, s xmpp.Stanza) error {
	result := stanza.IQ{ID: s.ID, To: s.From, From: s.To, Type: stanza.ResultIQ}
	return sess.Send(ctx, result.Wrap(nil))
}

// IQ returns the token stream for a ping get IQ addressed to to, the
// complete wire-ready fragment a caller would hand to Session.Send
// directly instead of going through Ping/SendIQ.
func IQ(to jid.JID) xml.TokenReader {
	payload := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Ping, Local: "ping"}})
	return stanza.IQ{To: to, Type: stanza.GetIQ}.Wrap(payload)
}

// Ping sends a ping IQ to the local server and blocks until the result or
// timeout, implementing the keepalive scheduler's pinger interface.
func (m *Module) Ping(ctx context.Context, sess *xmpp.Session) error {
	payload := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Ping, Local: "ping"}})
	iq := stanza.IQ{Type: stanza.GetIQ}

	done := make(chan error, 1)
	err := sess.SendIQ(ctx, iq, payload, m.Timeout, func(resp stanza.IQ, _ xml.TokenReader, err error) {
		if err != nil {
			done <- err
			return
		}
		if resp.Type == stanza.ErrorIQ {
			done <- fmt.Errorf("ping: server returned an error")
			return
		}
		done <- nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
