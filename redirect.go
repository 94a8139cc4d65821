// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"net"
	"strconv"
	"strings"

	streamerr "corexmpp.dev/xmpp/stream"
)

// redirectHandler implements C8's see-other-host half: recognizing a
// <see-other-host/> stream error and turning its payload into a ConnInfo
// the session can reconnect to (§4.4, §4.7).
type redirectHandler struct {
	cached *ConnInfo
}

func newRedirectHandler() *redirectHandler {
	return &redirectHandler{}
}

// onStreamError reports whether serr is a see-other-host redirect and, if
// so, the target to reconnect to. A host with no explicit port uses 5222,
// the standard client port, matching RFC 6120 §3.3's address defaulting.
func (h *redirectHandler) onStreamError(serr *streamerr.Error) (ConnInfo, bool) {
	if serr.Err != "see-other-host" {
		return ConnInfo{}, false
	}
	target := serr.Text()
	if target == "" {
		return ConnInfo{}, false
	}

	host := target
	port := uint16(5222)
	if h2, p, err := net.SplitHostPort(target); err == nil {
		host = h2
		if n, perr := strconv.ParseUint(p, 10, 16); perr == nil {
			port = uint16(n)
		}
	} else {
		host = strings.Trim(target, "[]")
	}

	info := ConnInfo{Host: host, Port: port}
	h.cached = &info
	return info, true
}

// Cached returns the most recently seen redirect target, if any.
func (h *redirectHandler) Cached() (ConnInfo, bool) {
	if h.cached == nil {
		return ConnInfo{}, false
	}
	return *h.cached, true
}

// Clear discards any cached redirect target (§4.7: a cached redirect is
// only honored once; subsequent normal reconnects must not keep retrying
// it forever).
func (h *redirectHandler) Clear() {
	h.cached = nil
}
