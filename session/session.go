// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package session implements RFC 3921 legacy session establishment as an
// xmpp.Establisher. Most modern servers no longer advertise the
// <session/> feature (RFC 6121 deprecates it), but a handful still require
// the request before accepting stanzas from a freshly bound resource.
package session

import (
	"context"
	"encoding/xml"
	"fmt"

	"mellium.im/xmlstream"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/internal"
	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/stanza"
)

// Module performs the legacy session-establishment IQ round trip.
type Module struct {
	Transport xmpp.Transport
}

// New returns a legacy session-establishment module.
func New(transport xmpp.Transport) *Module {
	return &Module{Transport: transport}
}

// Entry returns a registry entry exposing this module as an
// xmpp.Establisher.
func (m *Module) Entry() *xmpp.ModuleEntry {
	return &xmpp.ModuleEntry{
		ID:       "session",
		Features: []string{ns.Session},
		Impl:     m,
	}
}

// Establish sends the session-establishment IQ and waits for the result.
func (m *Module) Establish(ctx context.Context, sess *xmpp.Session) error {
	reqID := internal.RandomID(internal.IDLen)
	payload := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Session, Local: "session"}})
	iq := stanza.IQ{ID: reqID, Type: stanza.SetIQ}
	if err := m.Transport.Send(ctx, iq.Wrap(payload)); err != nil {
		return fmt.Errorf("session: sending request: %w", err)
	}

	tok, err := m.Transport.Token()
	if err != nil {
		return fmt.Errorf("session: reading response: %w", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "iq" {
		return fmt.Errorf("session: expected an iq response, got %v", tok)
	}

	var resp struct {
		stanza.IQ
		Err stanza.Error `xml:"error"`
	}
	d := xml.NewTokenDecoder(m.Transport)
	if err := d.DecodeElement(&resp, &start); err != nil {
		return fmt.Errorf("session: decoding response: %w", err)
	}

	switch {
	case resp.ID != reqID:
		return fmt.Errorf("session: response id %q does not match request %q", resp.ID, reqID)
	case resp.Type == stanza.ErrorIQ:
		return resp.Err
	case resp.Type != stanza.ResultIQ:
		return fmt.Errorf("session: unexpected response type %q", resp.Type)
	}
	return nil
}
