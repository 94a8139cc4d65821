// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"log"
	"time"

	"golang.org/x/text/language"
)

// Config represents the configuration of an XMPP session. It is read once
// at session construction and must not be mutated afterwards.
type Config struct {
	// The default language for any streams constructed using this config.
	Lang language.Tag

	// The authorization identity, and password to authenticate with.
	// Identity is used when a user wants to act on behalf of another user. For
	// instance, an admin might want to log in as another user to help them
	// troubleshoot an issue. Normally it is left blank and the localpart of the
	// Origin JID is used.
	Identity, Password string

	// DisableTLS skips STARTTLS negotiation even when the server advertises
	// it, including when the server marks STARTTLS as required: the
	// negotiator then continues over the unencrypted stream.
	DisableTLS bool

	// DisableCompression skips XEP-0138/0229 compression negotiation even
	// when the server advertises it.
	DisableCompression bool

	// UseSeeOtherHost honors a <see-other-host/> stream error by
	// reconnecting to the indicated host (§4.4, §4.7) instead of treating it
	// as a fatal stream error.
	UseSeeOtherHost bool

	// Pipelining opts into treating an AuthFinishExpected event as
	// equivalent to immediate auth success and suppressing the subsequent
	// stream restart in favor of the sasl module's own pipelined restart
	// (§4.1 "Pipelining"). See DESIGN.md Open Question 2 for why this is an
	// explicit opt-in rather than auto-detected.
	Pipelining bool

	// PingInterval is the fixed period at which the keepalive scheduler
	// (C9) sends a ping; other traffic does not reset it. Zero disables
	// keepalive entirely.
	PingInterval time.Duration

	// RequestTimeout is the default deadline applied to a response
	// registered without an explicit one (§4.3).
	RequestTimeout time.Duration

	// Logger receives the core's diagnostic log lines. A nil Logger
	// discards them (log.New(io.Discard, "", 0) semantics) rather than
	// falling back to the standard logger, so a zero Config is silent by
	// default.
	Logger *log.Logger
}
