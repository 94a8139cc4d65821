// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package conn

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/compress"
	"corexmpp.dev/xmpp/internal/stream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/starttls"
)

// Transport dials and frames a client-to-server XMPP connection over TCP,
// implementing xmpp.Transport. It is the module's only package that touches
// a net.Conn directly; everything else in the module only ever sees the
// Transport interface.
type Transport struct {
	identity jid.JID
	opts     options

	mu    sync.Mutex
	state xmpp.TransportState

	raw io.ReadWriteCloser // the current net.Conn, or its tls/zlib wrapping
	net net.Conn           // the underlying net.Conn, for StartTLS's benefit
	dec *xml.Decoder
}

// Dial establishes a TCP connection to info (dialing a direct TLS
// connection first if info.DirectTLS is set) and sends the initial stream
// header addressed to identity.Domain().
func Dial(ctx context.Context, identity jid.JID, info xmpp.ConnInfo, opts ...Option) (*Transport, error) {
	t := &Transport{identity: identity, opts: getOpts(opts...)}
	if err := t.connect(ctx, info); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) connect(ctx context.Context, info xmpp.ConnInfo) error {
	t.mu.Lock()
	t.state = xmpp.TransportConnecting
	t.mu.Unlock()

	addr := net.JoinHostPort(info.Host, strconv.FormatUint(uint64(info.Port), 10))
	rawConn, err := t.opts.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("conn: dial: %w", err)
	}
	if info.DirectTLS {
		rawConn = tls.Client(rawConn, t.opts.tlsConfig)
	}

	t.mu.Lock()
	t.net = rawConn
	t.raw = rawConn
	t.dec = xml.NewDecoder(rawConn)
	t.mu.Unlock()

	if _, err := stream.Send(rawConn, false, false, stream.DefaultVersion, t.opts.lang, t.identity.Domainpart(), "", ""); err != nil {
		rawConn.Close()
		return fmt.Errorf("conn: sending stream header: %w", err)
	}

	t.mu.Lock()
	t.state = xmpp.TransportConnected
	t.mu.Unlock()
	return nil
}

// State implements xmpp.Transport.
func (t *Transport) State() xmpp.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Send implements xmpp.Transport by copying every token from tok to the
// wire through an xml.Encoder, matching the session core's contract that
// Send is given one complete top-level fragment at a time.
func (t *Transport) Send(ctx context.Context, tok xml.TokenReader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	w := t.raw
	t.mu.Unlock()

	enc := xml.NewEncoder(w)
	for {
		tk, err := tok.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := enc.EncodeToken(tk); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// Token implements xmpp.Transport.
func (t *Transport) Token() (xml.Token, error) {
	t.mu.Lock()
	d := t.dec
	t.mu.Unlock()
	return d.Token()
}

// StartTLS implements xmpp.Transport using the starttls package, then
// re-wraps the decoder around the upgraded connection.
func (t *Transport) StartTLS(ctx context.Context) error {
	t.mu.Lock()
	netConn := t.net
	dec := t.dec
	t.mu.Unlock()

	tlsConn, err := starttls.Negotiate(ctx, t.sendRaw, dec.Token, netConn, t.opts.tlsConfig)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.raw = tlsConn
	t.net = tlsConn
	t.dec = xml.NewDecoder(tlsConn)
	t.mu.Unlock()
	return nil
}

// StartCompression implements xmpp.Transport using the compress package.
func (t *Transport) StartCompression(ctx context.Context) error {
	t.mu.Lock()
	rw := t.raw
	dec := t.dec
	t.mu.Unlock()

	wrapped, err := compress.Negotiate(ctx, t.sendRaw, dec.Token, rw, t.opts.methods)
	if err != nil {
		return err
	}

	closer, ok := wrapped.(io.Closer)
	if !ok {
		closer = t.net
	}
	t.mu.Lock()
	t.raw = struct {
		io.Reader
		io.Writer
		io.Closer
	}{Reader: wrapped, Writer: wrapped, Closer: closer}
	t.dec = xml.NewDecoder(t.raw)
	t.mu.Unlock()
	return nil
}

// sendRaw adapts Send to the (ctx, xml.TokenReader) error shape starttls
// and compress expect, without going through Send's mutex dance twice
// (StartTLS/StartCompression already hold no lock while calling it).
func (t *Transport) sendRaw(ctx context.Context, tok xml.TokenReader) error {
	return t.Send(ctx, tok)
}

// RestartStream implements xmpp.Transport.
func (t *Transport) RestartStream(ctx context.Context, to jid.JID, from jid.JID) (stream.Info, error) {
	t.mu.Lock()
	w := t.raw
	t.mu.Unlock()

	if _, err := stream.Send(w, false, false, stream.DefaultVersion, t.opts.lang, to.String(), from.String(), ""); err != nil {
		return stream.Info{}, fmt.Errorf("conn: sending stream header: %w", err)
	}

	t.mu.Lock()
	dec := t.dec
	t.mu.Unlock()
	return stream.Expect(ctx, dec, false, false)
}

// Reconnect implements xmpp.Transport by closing any existing connection
// and dialing a fresh one to info.
func (t *Transport) Reconnect(ctx context.Context, info xmpp.ConnInfo) error {
	t.mu.Lock()
	old := t.raw
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return t.connect(ctx, info)
}

// Close implements xmpp.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = xmpp.TransportDisconnected
	if t.raw == nil {
		return nil
	}
	return t.raw.Close()
}
