// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package disco implements a minimal XEP-0030 service-discovery responder
// and a best-effort discovery client run once a session reaches Ready.
package disco // import "corexmpp.dev/xmpp/disco"

import (
	"context"
	"encoding/xml"
	"time"

	"mellium.im/xmlstream"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/disco/info"
	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/stanza"
)

// Namespaces used by this package.
const (
	NSInfo  = ns.DiscoInfo
	NSItems = `http://jabber.org/protocol/disco#items`
	NSCaps  = `http://jabber.org/protocol/caps`
)

// Module answers inbound disco#info queries with a fixed identity/feature
// list, and performs a best-effort disco#info query against the user's own
// server once a session is connected.
type Module struct {
	// Identities advertised in response to a disco#info query. If empty, a
	// single generic client identity is advertised.
	Identities []info.Identity
	// Features advertised in addition to the always-advertised disco#info
	// namespace itself.
	Features []info.Feature
	// Timeout bounds the outgoing discovery query; zero means
	// Config.RequestTimeout.
	Timeout time.Duration

	// ServerInfo is set once a server-info discovery result has been
	// received, for other modules to consult. It is nil until then.
	ServerInfo *info.Identity
}

// New returns a disco module advertising identities and features in
// addition to the disco#info namespace itself.
func New(identities []info.Identity, features []info.Feature) *Module {
	return &Module{Identities: identities, Features: features}
}

// Entry returns a registry entry that answers inbound disco#info queries
// and exposes this module as the negotiator's discoverer.
func (m *Module) Entry() *xmpp.ModuleEntry {
	return &xmpp.ModuleEntry{
		ID:       "disco",
		Features: []string{ns.DiscoInfo},
		Criteria: m.criteria,
		Process:  m.process,
		Impl:     m,
	}
}

// criteria peeks the payload itself: s.Name is the envelope's own element
// name ("iq"), never the query child's, so the namespace check has to read
// into the payload. Registry.Matching hands every candidate module's
// Criteria its own independent payload copy for exactly this reason.
func (m *Module) criteria(s xmpp.Stanza) bool {
	if !s.IsIQ() || s.Type != string(stanza.GetIQ) || s.Payload == nil {
		return false
	}
	tok, err := s.Payload.Token()
	if err != nil {
		return false
	}
	start, ok := tok.(xml.StartElement)
	return ok && start.Name.Space == ns.DiscoInfo && start.Name.Local == "query"
}

// process answers an inbound disco#info query with this module's
// identities and features.
func (m *Module) process(ctx context.Context, sess *xmpp.Session, s xmpp.Stanza) error {
	identities := m.Identities
	if len(identities) == 0 {
		identities = []info.Identity{{Category: "client", Type: "bot"}}
	}

	var children []xml.TokenReader
	for _, id := range identities {
		children = append(children, id.TokenReader())
	}
	children = append(children, info.Feature{Var: ns.DiscoInfo}.TokenReader())
	for _, f := range m.Features {
		children = append(children, f.TokenReader())
	}

	query := xmlstream.Wrap(
		xmlstream.MultiReader(children...),
		xml.StartElement{Name: xml.Name{Space: ns.DiscoInfo, Local: "query"}},
	)
	result := stanza.IQ{ID: s.ID, To: s.From, From: s.To, Type: stanza.ResultIQ}
	return sess.Send(ctx, result.Wrap(query))
}

// Discover performs a best-effort disco#info query against the session's
// own server. Errors are dropped, neither logged nor propagated, since discovery is
// advisory (§4.1 SM branch: it must not block session readiness).
func (m *Module) Discover(ctx context.Context, sess *xmpp.Session) {
	to := sess.Identity().Domain()
	query := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.DiscoInfo, Local: "query"}})
	iq := stanza.IQ{To: to, Type: stanza.GetIQ}

	// A send failure here is not fatal to the session; the error is dropped
	// deliberately, since discovery is advisory.
	sess.SendIQ(ctx, iq, query, m.Timeout, func(resp stanza.IQ, payload xml.TokenReader, err error) {
		if err != nil || resp.Type == stanza.ErrorIQ {
			return
		}
		m.ServerInfo = decodeServerIdentity(payload)
	})
}

func decodeServerIdentity(payload xml.TokenReader) *info.Identity {
	d := xml.NewTokenDecoder(payload)
	for {
		tok, err := d.Token()
		if err != nil {
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != ns.DiscoInfo || start.Name.Local != "identity" {
			continue
		}
		var id info.Identity
		if err := d.DecodeElement(&id, &start); err != nil {
			return nil
		}
		return &id
	}
}
