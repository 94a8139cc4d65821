// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"

	"corexmpp.dev/xmpp/internal/stream"
	"corexmpp.dev/xmpp/jid"
)

// TransportState is the low-level connectivity state of a Transport. It is
// distinct from SessionState: a transport can be Connected while the session
// is still negotiating features.
type TransportState uint8

const (
	TransportDisconnected TransportState = iota
	TransportConnecting
	TransportConnected
)

func (s TransportState) String() string {
	switch s {
	case TransportDisconnected:
		return "disconnected"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnInfo identifies a server endpoint to connect (or reconnect) to, as
// discovered via SRV resolution, a see-other-host redirect, or a stream
// management resumption location. SRV resolution itself is out of scope for
// the core (§1); ConnInfo is the boundary record the transport consumes.
type ConnInfo struct {
	Host      string
	Port      uint16
	Priority  uint16
	Weight    uint16
	DirectTLS bool
}

// Transport is the bidirectional framed connection the session core drives.
// It is an external collaborator (§1 Out of scope): the core never dials a
// socket or parses XML itself, it only asks the Transport to do so and
// observes the result.
type Transport interface {
	// State reports the transport's current connectivity.
	State() TransportState

	// Send writes a complete top-level XML fragment (a stanza or
	// stream-level element) to the wire. It must not be called concurrently
	// with another Send.
	Send(ctx context.Context, tok xml.TokenReader) error

	// Token returns the next parsed token of the incoming stream. It is
	// called from a single reader goroutine owned by the transport's
	// caller; Token itself need not be safe for concurrent use.
	Token() (xml.Token, error)

	// StartTLS performs an inline STARTTLS upgrade (RFC 6120 §5) of the
	// connection in place.
	StartTLS(ctx context.Context) error

	// StartCompression enables zlib stream compression (XEP-0138/XEP-0229)
	// in place.
	StartCompression(ctx context.Context) error

	// RestartStream sends a fresh stream header addressed to the given
	// identity and returns the stream Info the peer responds with. A
	// restart is required after STARTTLS, after compression enablement, and
	// after successful SASL (§4.1).
	RestartStream(ctx context.Context, to jid.JID, from jid.JID) (stream.Info, error)

	// Reconnect tears down any existing connection and establishes a new one
	// to the given record. Used for see-other-host redirects and SM
	// resumption retries (§4.7).
	Reconnect(ctx context.Context, info ConnInfo) error

	// Close closes the underlying connection without sending a stream close;
	// callers that want an orderly shutdown must send </stream:stream>
	// themselves first.
	Close() error
}
