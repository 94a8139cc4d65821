// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants that are used by the xmpp package and
// other internal packages.
package ns // import "corexmpp.dev/xmpp/internal/ns"

// List of commonly used namespaces.
const (
	Bind     = "urn:ietf:params:xml:ns:xmpp-bind"
	Client   = "jabber:client"
	Server   = "jabber:server"
	SASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	Session  = "urn:ietf:params:xml:ns:xmpp-session"
	Stanza   = "urn:ietf:params:xml:ns:xmpp-stanzas"
	Stream   = "http://etherx.jabber.org/streams"
	Streams  = "urn:ietf:params:xml:ns:xmpp-streams"
	StartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	WS       = "urn:ietf:params:xml:ns:xmpp-framing"
	XML      = "http://www.w3.org/XML/1998/namespace"

	// Compress and CompressProtocol are XEP-0138's stream-feature and
	// in-stream protocol namespaces.
	Compress         = "http://jabber.org/features/compress"
	CompressProtocol = "http://jabber.org/protocol/compress"

	// SM is XEP-0198: Stream Management's namespace, used both as the
	// advertised stream feature and for the enable/resume/ack elements.
	SM = "urn:xmpp:sm:3"

	// Ping is XEP-0199: XMPP Ping's namespace.
	Ping = "urn:xmpp:ping"

	// DiscoInfo is XEP-0030's service discovery info namespace.
	DiscoInfo = "http://jabber.org/protocol/disco#info"
)
