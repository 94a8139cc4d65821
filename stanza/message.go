// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"corexmpp.dev/xmpp/jid"
)

// Message is an XMPP stanza that encapsulates data that is pushed between
// entities in a fire-and-forget fashion, such as chat messages.
type Message struct {
	XMLName xml.Name    `xml:"message"`
	ID      string      `xml:"id,attr"`
	To      jid.JID     `xml:"to,attr"`
	From    jid.JID     `xml:"from,attr"`
	Lang    string      `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    MessageType `xml:"type,attr,omitempty"`
}

// MessageType is the type of a message stanza.
// It should normally be one of the constants defined in this package.
type MessageType string

const (
	// NormalMessage is a single message sent outside the context of a one-to-one
	// conversation or groupchat, and is the default value if a message is sent
	// without a type.
	NormalMessage MessageType = "normal"

	// ChatMessage is used in the context of a one-to-one chat session.
	ChatMessage MessageType = "chat"

	// GroupChatMessage is used in the context of a multi-user chat.
	GroupChatMessage MessageType = "groupchat"

	// HeadlineMessage provides an alert, a notice, or other transient
	// information to which no reply is expected.
	HeadlineMessage MessageType = "headline"

	// ErrorMessage indicates that an error occurred while processing or
	// delivering a previously sent message.
	ErrorMessage MessageType = "error"
)
