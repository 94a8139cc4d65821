// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"errors"

	"corexmpp.dev/xmpp/stanza"
)

// Sentinel errors for the conditions §7's taxonomy calls out that don't
// already have a dedicated type elsewhere in the module.
var (
	// ErrResponseTimeout is delivered to a pending response's callback when
	// its deadline elapses before a correlating reply arrives (§4.3).
	ErrResponseTimeout = errors.New("xmpp: response timed out")

	// ErrSessionTerminated is delivered to every pending response's
	// callback on teardown (§3: "the response table is empty whenever
	// session state is Disconnected").
	ErrSessionTerminated = errors.New("xmpp: session terminated")

	// ErrNotConnected reports that SessionState is not Connected. No function
	// in this package returns it; Send and SendIQ do not check SessionState.
	ErrNotConnected = errors.New("xmpp: session is not connected")

	// ErrNoRedirect is returned by ServerToConnectDetails when there is no
	// cached redirect, saved resumption location, or other hint (§4.7).
	ErrNoRedirect = errors.New("xmpp: no redirect target available")
)

// A module's Process function reports a recognized stanza error condition
// (§4.2 step 6) by returning a *stanza.Error directly; the dispatcher
// synthesizes the reply's <error/> element from its Condition and Type. Any
// other error returned from Process is reported as stanza.UndefinedCondition
// (§7 Internal faults).

// replyError extracts the stanza.Error to use for an error reply to a
// failed dispatch, per §4.2 step 6 / §7 item 4: a module that returned a
// *stanza.Error controls its own condition/type/text; anything else
// (including a plain Go error or panic recovery) is reported as
// undefined-condition.
func replyError(err error) stanza.Error {
	var se *stanza.Error
	if errors.As(err, &se) {
		return *se
	}
	return stanza.Error{Condition: stanza.UndefinedCondition, Type: stanza.Cancel}
}
