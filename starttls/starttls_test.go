// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package starttls_test

import (
	"context"
	"encoding/xml"
	"errors"
	"net"
	"testing"

	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/starttls"
)

// tokenQueue replays a fixed sequence of tokens, returning io.EOF-shaped
// errors only if exhausted; it stands in for a Transport's real decoder.
type tokenQueue struct {
	toks []xml.Token
	errs []error
}

func (q *tokenQueue) Token() (xml.Token, error) {
	if len(q.toks) == 0 {
		return nil, errors.New("tokenQueue: exhausted")
	}
	tok := q.toks[0]
	q.toks = q.toks[1:]
	var err error
	if len(q.errs) > 0 {
		err = q.errs[0]
		q.errs = q.errs[1:]
	}
	return tok, err
}

func noopSend(context.Context, xml.TokenReader) error { return nil }

func TestNegotiateProceed(t *testing.T) {
	q := &tokenQueue{toks: []xml.Token{
		xml.StartElement{Name: xml.Name{Space: ns.StartTLS, Local: "proceed"}},
		xml.EndElement{Name: xml.Name{Space: ns.StartTLS, Local: "proceed"}},
	}}
	client, _ := net.Pipe()
	defer client.Close()

	tlsConn, err := starttls.Negotiate(context.Background(), noopSend, q.Token, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsConn == nil {
		t.Fatal("expected a non-nil tls.Conn")
	}
}

func TestNegotiateFailure(t *testing.T) {
	q := &tokenQueue{toks: []xml.Token{
		xml.StartElement{Name: xml.Name{Space: ns.StartTLS, Local: "failure"}},
		xml.EndElement{Name: xml.Name{Space: ns.StartTLS, Local: "failure"}},
	}}
	client, _ := net.Pipe()
	defer client.Close()

	_, err := starttls.Negotiate(context.Background(), noopSend, q.Token, client, nil)
	if !errors.Is(err, starttls.ErrRefused) {
		t.Fatalf("expected ErrRefused, got: %v", err)
	}
}

func TestNegotiateUnexpectedElement(t *testing.T) {
	q := &tokenQueue{toks: []xml.Token{
		xml.StartElement{Name: xml.Name{Space: ns.StartTLS, Local: "bogus"}},
	}}
	client, _ := net.Pipe()
	defer client.Close()

	_, err := starttls.Negotiate(context.Background(), noopSend, q.Token, client, nil)
	if err == nil {
		t.Fatal("expected an error for an unrecognized element")
	}
}

func TestNegotiateSendError(t *testing.T) {
	sendErr := errors.New("boom")
	send := func(context.Context, xml.TokenReader) error { return sendErr }
	client, _ := net.Pipe()
	defer client.Close()

	_, err := starttls.Negotiate(context.Background(), send, (&tokenQueue{}).Token, client, nil)
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected wrapped send error, got: %v", err)
	}
}
