// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package compress_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"testing"

	"corexmpp.dev/xmpp/compress"
	"corexmpp.dev/xmpp/internal/ns"
)

type tokenQueue struct {
	toks []xml.Token
}

func (q *tokenQueue) Token() (xml.Token, error) {
	if len(q.toks) == 0 {
		return nil, errors.New("tokenQueue: exhausted")
	}
	tok := q.toks[0]
	q.toks = q.toks[1:]
	return tok, nil
}

func noopSend(context.Context, xml.TokenReader) error { return nil }

func TestNegotiateCompressed(t *testing.T) {
	q := &tokenQueue{toks: []xml.Token{
		xml.StartElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "compressed"}},
		xml.EndElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "compressed"}},
	}}
	var buf bytes.Buffer

	rw, err := compress.Negotiate(context.Background(), noopSend, q.Token, &buf, compress.Default)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rw == nil {
		t.Fatal("expected a non-nil wrapped ReadWriter")
	}
}

func TestNegotiateFailure(t *testing.T) {
	q := &tokenQueue{toks: []xml.Token{
		xml.StartElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "failure"}},
		xml.EndElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "failure"}},
	}}
	var buf bytes.Buffer

	_, err := compress.Negotiate(context.Background(), noopSend, q.Token, &buf, compress.Default)
	if !errors.Is(err, compress.ErrFailed) {
		t.Fatalf("expected ErrFailed, got: %v", err)
	}
}

func TestNegotiateNoMethods(t *testing.T) {
	var buf bytes.Buffer
	_, err := compress.Negotiate(context.Background(), noopSend, (&tokenQueue{}).Token, &buf, nil)
	if !errors.Is(err, compress.ErrNoCommonMethod) {
		t.Fatalf("expected ErrNoCommonMethod, got: %v", err)
	}
}

func TestNegotiatePicksFirstMethod(t *testing.T) {
	// The server-advertised method list is not consulted by Negotiate; it
	// always proposes methods[0] and lets the server fail it if it can't
	// honor the choice.
	q := &tokenQueue{toks: []xml.Token{
		xml.StartElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "compressed"}},
		xml.EndElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "compressed"}},
	}}
	var buf bytes.Buffer
	var sent []byte
	send := func(_ context.Context, tok xml.TokenReader) error {
		var b bytes.Buffer
		enc := xml.NewEncoder(&b)
		for {
			tk, err := tok.Token()
			if err != nil {
				break
			}
			if err := enc.EncodeToken(tk); err != nil {
				return err
			}
		}
		enc.Flush()
		sent = b.Bytes()
		return nil
	}

	if _, err := compress.Negotiate(context.Background(), send, q.Token, &buf, []compress.Method{compress.LZW}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(sent, []byte("lzw")) {
		t.Errorf("expected request to name method %q, got: %s", "lzw", sent)
	}
}
