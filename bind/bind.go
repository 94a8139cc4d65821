// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package bind implements RFC 6120 §7 resource binding as an xmpp.Binder.
package bind

import (
	"context"
	"encoding/xml"
	"fmt"

	"mellium.im/xmlstream"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/internal"
	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

// Module binds a resource for the session, requesting resource from the
// server if set, or letting the server generate one otherwise. It performs
// its own request/reply exchange directly against transport rather than
// through the session's ordinary dispatch path: at the point the negotiator
// calls Bind, the reading goroutine is this call itself, so there is no
// other consumer of transport to hand the exchange off to.
type Module struct {
	Transport xmpp.Transport
	Resource  string
}

// New returns a bind module that binds resource, or lets the server choose
// one when resource is empty.
func New(transport xmpp.Transport, resource string) *Module {
	return &Module{Transport: transport, Resource: resource}
}

// Entry returns a registry entry exposing this module as an xmpp.Binder.
func (m *Module) Entry() *xmpp.ModuleEntry {
	return &xmpp.ModuleEntry{
		ID:       "bind",
		Features: []string{ns.Bind},
		Impl:     m,
	}
}

// Bind sends the bind IQ and waits for the result, returning the bound full
// JID.
func (m *Module) Bind(ctx context.Context, sess *xmpp.Session) (jid.JID, error) {
	reqID := internal.RandomID(internal.IDLen)

	bindStart := xml.StartElement{Name: xml.Name{Space: ns.Bind, Local: "bind"}}
	var payload xml.TokenReader = xmlstream.Wrap(nil, bindStart)
	if m.Resource != "" {
		resource := xmlstream.Wrap(
			xmlstream.Token(xml.CharData(m.Resource)),
			xml.StartElement{Name: xml.Name{Local: "resource"}},
		)
		payload = xmlstream.Wrap(resource, bindStart)
	}

	iq := stanza.IQ{ID: reqID, Type: stanza.SetIQ}
	if err := m.Transport.Send(ctx, iq.Wrap(payload)); err != nil {
		return jid.JID{}, fmt.Errorf("bind: sending request: %w", err)
	}

	tok, err := m.Transport.Token()
	if err != nil {
		return jid.JID{}, fmt.Errorf("bind: reading response: %w", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "iq" {
		return jid.JID{}, fmt.Errorf("bind: expected an iq response, got %v", tok)
	}

	var resp struct {
		stanza.IQ
		Bind struct {
			JID string `xml:"jid"`
		} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
		Err stanza.Error `xml:"error"`
	}
	d := xml.NewTokenDecoder(m.Transport)
	if err := d.DecodeElement(&resp, &start); err != nil {
		return jid.JID{}, fmt.Errorf("bind: decoding response: %w", err)
	}

	switch {
	case resp.ID != reqID:
		return jid.JID{}, fmt.Errorf("bind: response id %q does not match request %q", resp.ID, reqID)
	case resp.Type == stanza.ErrorIQ:
		return jid.JID{}, resp.Err
	case resp.Type != stanza.ResultIQ:
		return jid.JID{}, fmt.Errorf("bind: unexpected response type %q", resp.Type)
	}

	full, err := jid.Parse(resp.Bind.JID)
	if err != nil {
		return jid.JID{}, fmt.Errorf("bind: server returned invalid JID %q: %w", resp.Bind.JID, err)
	}
	return full, nil
}
