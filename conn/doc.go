// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package conn is a reference xmpp.Transport implementation: it dials a
// client-to-server TCP connection, frames the XML stream, and performs the
// in-place STARTTLS and stream-compression upgrades the session core asks
// of it, using the starttls and compress packages for the wire protocol of
// each.
package conn // import "corexmpp.dev/xmpp/conn"
