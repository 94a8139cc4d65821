// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package conn

import (
	"crypto/tls"
	"net"

	"corexmpp.dev/xmpp/compress"
)

// Option configures a Transport at Dial time.
type Option func(*options)

type options struct {
	tlsConfig *tls.Config
	dialer    net.Dialer
	methods   []compress.Method
	lang      string
}

func getOpts(o ...Option) options {
	var res options
	for _, f := range o {
		f(&res)
	}
	if res.methods == nil {
		res.methods = compress.Default
	}
	return res
}

// TLSConfig sets the configuration used both for STARTTLS and for a direct
// TLS dial (ConnInfo.DirectTLS).
func TLSConfig(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// Dialer overrides the net.Dialer used to establish the TCP connection.
func Dialer(dialer net.Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// CompressionMethods overrides the compression methods passed to
// compress.Negotiate. Only the first method is proposed to the server; if
// the server refuses it, the remaining methods are not tried. The default is
// compress.Default (zlib alone).
func CompressionMethods(methods ...compress.Method) Option {
	return func(o *options) {
		o.methods = methods
	}
}

// Lang sets the xml:lang attribute sent on every stream header.
func Lang(lang string) Option {
	return func(o *options) {
		o.lang = lang
	}
}
