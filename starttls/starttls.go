// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package starttls implements the client side of RFC 6120 §5 STARTTLS
// negotiation. It is consumed by a concrete xmpp.Transport implementation
// from inside that Transport's own StartTLS method: upgrading a connection
// in place means swapping the net.Conn a Transport holds for a tls.Conn,
// something only the Transport itself can do (the session core never sees
// the raw socket, per the Transport Connector boundary).
package starttls

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"net"

	"mellium.im/xmlstream"

	"corexmpp.dev/xmpp/internal/ns"
)

// ErrRefused is returned when the server responds to <starttls/> with
// <failure/>. The stream is not torn down by this package; the caller's
// Transport is expected to close the connection, since the server will
// immediately end the stream afterwards.
var ErrRefused = errors.New("starttls: server refused to negotiate TLS")

// Negotiate performs the client side of the STARTTLS handshake: it sends
// <starttls/>, reads the server's <proceed/> or <failure/>, and on success
// wraps conn in a *tls.Conn using config (a nil config uses the zero
// tls.Config, i.e. the Go default verification behavior for conn's remote
// name). send and token are the Transport's own write/read primitives;
// Negotiate does not touch conn until it has a <proceed/> in hand.
func Negotiate(ctx context.Context, send func(context.Context, xml.TokenReader) error, token func() (xml.Token, error), conn net.Conn, config *tls.Config) (*tls.Conn, error) {
	start := xml.StartElement{Name: xml.Name{Space: ns.StartTLS, Local: "starttls"}}
	if err := send(ctx, xmlstream.Wrap(nil, start)); err != nil {
		return nil, fmt.Errorf("starttls: sending request: %w", err)
	}

	tok, err := token()
	if err != nil {
		return nil, fmt.Errorf("starttls: reading response: %w", err)
	}
	resp, ok := tok.(xml.StartElement)
	if !ok || resp.Name.Space != ns.StartTLS {
		return nil, fmt.Errorf("starttls: expected proceed or failure, got %v", tok)
	}
	switch resp.Name.Local {
	case "proceed":
		if _, err := token(); err != nil { // consume </proceed>
			return nil, fmt.Errorf("starttls: reading proceed end tag: %w", err)
		}
		return tls.Client(conn, config), nil
	case "failure":
		if _, err := token(); err != nil { // consume </failure>
			return nil, fmt.Errorf("starttls: reading failure end tag: %w", err)
		}
		return nil, ErrRefused
	default:
		return nil, fmt.Errorf("starttls: unexpected element %v", resp.Name)
	}
}
