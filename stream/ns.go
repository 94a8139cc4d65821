// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stream

// NS is the namespace of the XML stream element itself, as opposed to the
// content namespace (eg. "jabber:client") declared as its default namespace.
const NS = "http://etherx.jabber.org/streams"
