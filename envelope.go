// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"encoding/xml"

	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

// Stanza is the minimal common envelope of an iq, message, or presence
// stanza as seen by the dispatcher (C5), the response manager (C3), and
// feature modules (§6 Module contract). Payload is a token reader
// positioned immediately after the envelope's start element so that a
// module can unmarshal whatever child element it expects without the
// dispatcher needing to know every extension's shape in advance.
type Stanza struct {
	Name    xml.Name
	ID      string
	To      jid.JID
	From    jid.JID
	Type    string
	Lang    string
	Payload xml.TokenReader
}

// IsIQ reports whether the stanza is a top level <iq/>.
func (s Stanza) IsIQ() bool { return s.Name.Local == "iq" }

// IsMessage reports whether the stanza is a top level <message/>.
func (s Stanza) IsMessage() bool { return s.Name.Local == "message" }

// IsPresence reports whether the stanza is a top level <presence/>.
func (s Stanza) IsPresence() bool { return s.Name.Local == "presence" }

// IsResponse reports whether the stanza can only ever be answering a
// previously sent request: an IQ of type result or error (§4.2 step 2-3).
func (s Stanza) IsResponse() bool {
	return s.IsIQ() && stanza.IQType(s.Type).IsResponse()
}
