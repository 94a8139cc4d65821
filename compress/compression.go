// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package compress implements the client side of XEP-0138/0229 stream
// compression. Like starttls, it is consumed by a concrete
// xmpp.Transport implementation from inside that Transport's own
// StartCompression method: compression wraps the same underlying
// io.ReadWriter the Transport already owns, rather than anything the
// session core has a handle on.
package compress

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"mellium.im/xmlstream"

	"corexmpp.dev/xmpp/internal/ns"
)

// ErrNoCommonMethod is returned when Negotiate is given an empty method list.
// The server-advertised methods are not consulted.
var ErrNoCommonMethod = errors.New("compress: no supported compression method advertised")

// ErrFailed is returned when the server responds to <compress/> with
// <failure/>.
var ErrFailed = errors.New("compress: server failed to enable compression")

// Negotiate proposes the first of methods, sends <compress/> naming it, and
// wraps rw once the server confirms with <compressed/>. The caller picks
// methods, typically Default, before the server's advertised method list is
// known to the Transport calling Negotiate (the session core, not the
// Transport, is what decoded <stream:features/>); a server that cannot
// honor the proposal answers with <failure/> rather than Negotiate
// filtering against an advertised list itself.
func Negotiate(ctx context.Context, send func(context.Context, xml.TokenReader) error, token func() (xml.Token, error), rw io.ReadWriter, methods []Method) (io.ReadWriter, error) {
	if len(methods) == 0 {
		return nil, ErrNoCommonMethod
	}
	selected := methods[0]

	method := xmlstream.Wrap(
		xmlstream.Token(xml.CharData(selected.Name)),
		xml.StartElement{Name: xml.Name{Local: "method"}},
	)
	start := xml.StartElement{Name: xml.Name{Space: ns.CompressProtocol, Local: "compress"}}
	if err := send(ctx, xmlstream.Wrap(method, start)); err != nil {
		return nil, fmt.Errorf("compress: sending request: %w", err)
	}

	tok, err := token()
	if err != nil {
		return nil, fmt.Errorf("compress: reading response: %w", err)
	}
	resp, ok := tok.(xml.StartElement)
	if !ok || resp.Name.Space != ns.CompressProtocol {
		return nil, fmt.Errorf("compress: expected compressed or failure, got %v", tok)
	}
	switch resp.Name.Local {
	case "compressed":
		if _, err := token(); err != nil { // consume </compressed>
			return nil, fmt.Errorf("compress: reading compressed end tag: %w", err)
		}
		return selected.Wrapper(rw)
	case "failure":
		if _, err := token(); err != nil { // consume </failure>
			return nil, fmt.Errorf("compress: reading failure end tag: %w", err)
		}
		return nil, ErrFailed
	default:
		return nil, fmt.Errorf("compress: unexpected element %v", resp.Name)
	}
}

// Default is the always-supported compression method set: zlib alone. A
// Transport implementation that wants LZW instead passes a list starting
// with compress.LZW; Negotiate proposes only the first method of the list,
// so methods after it are never tried.
var Default = []Method{zlibMethod}
