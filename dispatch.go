// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"

	"mellium.im/xmlstream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

// dispatcher runs the inbound filter chain, response correlation, module
// routing, and error-reply synthesis for each parsed stanza (C5, §4.2).
type dispatcher struct {
	registry  *Registry
	responses *responseTable
	outbound  *outboundPipeline
}

func newDispatcher(registry *Registry, responses *responseTable, outbound *outboundPipeline) *dispatcher {
	return &dispatcher{registry: registry, responses: responses, outbound: outbound}
}

// envelopeFrom extracts the common envelope fields from a top level stanza
// start element. A malformed to/from address is reported as
// stanza.JIDMalformed rather than silently dropped, per §7's protocol-error
// taxonomy.
func envelopeFrom(start xml.StartElement) (Stanza, error) {
	s := Stanza{Name: start.Name}
	for _, a := range start.Attr {
		if a.Name.Space != "" && a.Name.Space != "xml" {
			continue
		}
		switch {
		case a.Name.Space == "" && a.Name.Local == "id":
			s.ID = a.Value
		case a.Name.Space == "" && a.Name.Local == "type":
			s.Type = a.Value
		case a.Name.Space == "" && a.Name.Local == "to":
			j, err := jid.Parse(a.Value)
			if err != nil {
				return s, stanza.Error{Condition: stanza.JIDMalformed, Type: stanza.Modify}
			}
			s.To = j
		case a.Name.Space == "" && a.Name.Local == "from":
			j, err := jid.Parse(a.Value)
			if err != nil {
				return s, stanza.Error{Condition: stanza.JIDMalformed, Type: stanza.Modify}
			}
			s.From = j
		case a.Name.Space == "xml" && a.Name.Local == "lang":
			s.Lang = a.Value
		}
	}
	return s, nil
}

// drainTokens fully reads r into a slice, letting Dispatch hand out as many
// independent, from-the-start replays of a stanza's payload as filters,
// Criteria matching, and Process calls collectively need (§4.2 step 4: more
// than one module can match a single stanza, and each must see the whole
// payload, not whatever a previous module left unread).
func drainTokens(r xml.TokenReader) []xml.Token {
	var toks []xml.Token
	for {
		t, err := r.Token()
		if err != nil {
			break
		}
		toks = append(toks, xml.CopyToken(t))
	}
	return toks
}

// Dispatch implements the inbound contract (§4.2) for one top-level parsed
// stanza. start is the already-consumed start element; body must yield
// exactly the element's children, as xmlstream.Inner(transport) does when
// called right after reading start.
func (d *dispatcher) Dispatch(ctx context.Context, sess *Session, start xml.StartElement, body xml.TokenReader) {
	s, envErr := envelopeFrom(start)
	toks := drainTokens(xmlstream.Inner(body))
	payload := func() xml.TokenReader { return &sliceTokenReader{toks: toks} }
	s.Payload = payload()
	if envErr != nil {
		if se, ok := envErr.(stanza.Error); ok {
			d.reply(ctx, sess, s, se)
		}
		return
	}

	// Step 1: inbound filter chain, in registration order.
	var consumed bool
	var filterErr error
	d.registry.Each(func(m *ModuleEntry) {
		if consumed || filterErr != nil || m.FilterIncoming == nil {
			return
		}
		s.Payload = payload()
		consumed, filterErr = m.FilterIncoming(ctx, sess, &s)
	})
	if filterErr != nil {
		sess.logf("xmpp: inbound filter error: %v", filterErr)
		return
	}
	if consumed {
		return
	}

	// Steps 2-3: response correlation.
	s.Payload = payload()
	if p, ok := d.responses.Take(s); ok {
		p.callback(stanza.IQ{ID: s.ID, To: s.From, From: s.To, Type: stanza.IQType(s.Type)}, s.Payload, nil)
		return
	}
	if s.IsResponse() {
		// A result/error with no correlation is a stale response; drop it.
		return
	}

	// Step 4: module routing.
	matched := d.registry.Matching(s, payload)
	if len(matched) == 0 {
		// Step 5: synthesize feature-not-implemented.
		d.reply(ctx, sess, s, stanza.Error{Type: stanza.Cancel, Condition: stanza.FeatureNotImplemented})
		return
	}
	for _, m := range matched {
		s.Payload = payload()
		if err := m.Process(ctx, sess, s); err != nil {
			d.reply(ctx, sess, s, replyError(err))
		}
	}
}

// reply synthesizes and sends an error response to s, per §4.2 step 6. Only
// IQs of type get/set are repliable; replying to a message or presence is a
// feature modules can still do explicitly via Session.Send, so the
// dispatcher does not attempt to guess a reply shape for them.
func (d *dispatcher) reply(ctx context.Context, sess *Session, s Stanza, se stanza.Error) {
	if !s.IsIQ() || (s.Type != string(stanza.GetIQ) && s.Type != string(stanza.SetIQ)) {
		return
	}
	se.By = s.To
	iq := stanza.IQ{ID: s.ID, To: s.From, From: s.To, Lang: s.Lang, Type: stanza.ErrorIQ}
	payload := iq.Wrap(se.TokenReader())
	if err := d.outbound.Send(ctx, sess, payload); err != nil {
		sess.logf("xmpp: failed to send error reply for iq %q: %v", s.ID, err)
	}
}
