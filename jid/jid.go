// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package jid provides RFC 7622 XMPP addresses.
package jid // import "corexmpp.dev/xmpp/jid"

import (
	"encoding/xml"
	"errors"
	"net"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// Errors returned when a JID cannot be parsed.
var (
	ErrEmptyPart   = errors.New("jid: a localpart or domainpart of 0 length is invalid")
	ErrLongPart    = errors.New("jid: a JID part must be smaller than 1024 bytes")
	ErrInvalidUTF8 = errors.New("jid: JID contains invalid UTF-8")
)

// JID represents an XMPP address, historically referred to as a "Jabber ID".
// A JID is comprised of a localpart (optional), a domainpart (required), and
// a resourcepart (optional): "localpart@domainpart/resourcepart". A JID with
// the zero value compares Equal to itself and marshals to the empty string.
//
// A JID is immutable and safe for concurrent use. Two JIDs parsed from the
// same string are always Equal and are suitable for use as map keys.
type JID struct {
	locallen  int
	domainlen int
	data      string
}

// Parse constructs a new JID from the given string representation, applying
// the stringprep-derived enforcement profiles required by RFC 7622 §3.2 and
// §3.3 (UsernameCaseMapped for the localpart, the IDNA "ToUnicode" mapping
// plus trailing-dot stripping for the domainpart, and OpaqueString for the
// resourcepart).
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := splitString(s)
	if err != nil {
		return JID{}, err
	}
	return FromParts(localpart, domainpart, resourcepart)
}

// MustParse is like Parse but panics if the JID cannot be parsed. It is
// intended for use in tests and package-level variable initialization.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		panic("jid: " + err.Error())
	}
	return j
}

// FromParts constructs a new JID from the given localpart, domainpart, and
// resourcepart, applying the same enforcement as Parse.
func FromParts(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return JID{}, ErrInvalidUTF8
	}

	domainpart = strings.TrimSuffix(domainpart, ".")
	if !isIPLiteral(domainpart) {
		var err error
		domainpart, err = idna.ToUnicode(domainpart)
		if err != nil {
			return JID{}, err
		}
	}
	if !utf8.ValidString(domainpart) {
		return JID{}, ErrInvalidUTF8
	}

	var err error
	if localpart != "" {
		localpart, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return JID{}, err
		}
	}
	if resourcepart != "" {
		resourcepart, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
	}

	if err := checkLengths(localpart, domainpart, resourcepart); err != nil {
		return JID{}, err
	}

	return JID{
		locallen:  len(localpart),
		domainlen: len(domainpart),
		data:      localpart + domainpart + resourcepart,
	}, nil
}

func isIPLiteral(domainpart string) bool {
	if l := len(domainpart); l > 2 && domainpart[0] == '[' && domainpart[l-1] == ']' {
		return net.ParseIP(domainpart[1:l-1]) != nil
	}
	return net.ParseIP(domainpart) != nil
}

func checkLengths(localpart, domainpart, resourcepart string) error {
	if len(domainpart) == 0 {
		return ErrEmptyPart
	}
	if len(localpart) > 1023 || len(domainpart) > 1023 || len(resourcepart) > 1023 {
		return ErrLongPart
	}
	return nil
}

// splitString splits a string into its localpart, domainpart, and
// resourcepart without performing any enforcement; see RFC 7622 §3.1.
func splitString(s string) (localpart, domainpart, resourcepart string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		if parts[1] == "" {
			return "", "", "", errors.New("jid: resourcepart must not be empty if the separator is present")
		}
		resourcepart = parts[1]
	}

	atParts := strings.SplitN(parts[0], "@", 2)
	switch len(atParts) {
	case 1:
		domainpart = atParts[0]
	case 2:
		if atParts[0] == "" {
			return "", "", "", ErrEmptyPart
		}
		localpart = atParts[0]
		domainpart = atParts[1]
	}
	if domainpart == "" {
		return "", "", "", ErrEmptyPart
	}
	return localpart, domainpart, resourcepart, nil
}

// Localpart returns the localpart of the JID, if any.
func (j JID) Localpart() string {
	return j.data[:j.locallen]
}

// Domainpart returns the domainpart of the JID.
func (j JID) Domainpart() string {
	return j.data[j.locallen : j.locallen+j.domainlen]
}

// Resourcepart returns the resourcepart of the JID, if any.
func (j JID) Resourcepart() string {
	return j.data[j.locallen+j.domainlen:]
}

// Bare returns the bare JID (without a resourcepart).
func (j JID) Bare() JID {
	return JID{
		locallen:  j.locallen,
		domainlen: j.domainlen,
		data:      j.data[:j.locallen+j.domainlen],
	}
}

// Domain returns the JID comprised of only the domainpart.
func (j JID) Domain() JID {
	return JID{
		domainlen: j.domainlen,
		data:      j.Domainpart(),
	}
}

// WithResource returns a copy of the bare JID with the given resourcepart.
func (j JID) WithResource(resourcepart string) (JID, error) {
	return FromParts(j.Localpart(), j.Domainpart(), resourcepart)
}

// IsZero reports whether j is the zero-value JID.
func (j JID) IsZero() bool {
	return j.data == ""
}

// Equal performs an octet-for-octet comparison with the given JID.
func (j JID) Equal(j2 JID) bool {
	return j.locallen == j2.locallen && j.domainlen == j2.domainlen && j.data == j2.data
}

// String returns the string representation of the JID.
func (j JID) String() string {
	s := j.Domainpart()
	if lp := j.Localpart(); lp != "" {
		s = lp + "@" + s
	}
	if rp := j.Resourcepart(); rp != "" {
		s = s + "/" + rp
	}
	return s
}

// MarshalXMLAttr satisfies xml.MarshalerAttr.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies xml.UnmarshalerAttr. An empty attribute value
// unmarshals to the zero JID rather than an error, since the "to", "from",
// and "by" attributes are optional on most stanzas.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		*j = JID{}
		return nil
	}
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
