// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"

	"mellium.im/xmlstream"
	"corexmpp.dev/xmpp/jid"
)

// Errors returned by the stanza package.
var (
	ErrEmptyIQType = errors.New("stanza: empty IQ type")
)

// IQ ("Information Query") is used as a general request response mechanism.
// IQ's are one-to-one, provide get and set semantics, and always require a
// response in the form of a result or an error.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	ID      string   `xml:"id,attr"`
	To      jid.JID  `xml:"to,attr"`
	From    jid.JID  `xml:"from,attr"`
	Lang    string   `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    IQType   `xml:"type,attr"`
}

// IQType is the type of an IQ stanza.
// It should normally be one of the constants defined in this package.
type IQType string

const (
	// GetIQ is used to query another entity for information.
	GetIQ IQType = "get"

	// SetIQ is used to provide data to another entity, set new values, and
	// replace existing values.
	SetIQ IQType = "set"

	// ResultIQ is sent in response to a successful get or set IQ.
	ResultIQ IQType = "result"

	// ErrorIQ is sent to report that an error occurred during the delivery or
	// processing of a get or set IQ.
	ErrorIQ IQType = "error"
)

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface for IQType.
// It returns ErrEmptyIQType when trying to marshal a IQ stanza with an empty
// type attribute.
func (t IQType) MarshalXMLAttr(name xml.Name) (attr xml.Attr, err error) {
	s := string(t)
	if s == "" {
		return attr, ErrEmptyIQType
	}
	attr.Name = name
	attr.Value = s
	return attr, nil
}

// MarshalText satisfies the encoding.TextMarshaler interface for IQType.
// Like MarshalXMLAttr, it returns ErrEmptyIQType for an empty type.
func (t IQType) MarshalText() ([]byte, error) {
	if t == "" {
		return nil, ErrEmptyIQType
	}
	return []byte(t), nil
}

// IsResponse reports whether the IQ type requires no response of its own
// (ie. it is itself a response to some earlier request).
func (t IQType) IsResponse() bool {
	return t == ResultIQ || t == ErrorIQ
}

// Wrap wraps the payload in the IQ start and end tags.
func (iq IQ) Wrap(payload xml.TokenReader) xml.TokenReader {
	return xmlstream.Wrap(payload, xml.StartElement{
		Name: xml.Name{Local: "iq"},
		Attr: iqAttrs(iq),
	})
}

func iqAttrs(iq IQ) []xml.Attr {
	attrs := make([]xml.Attr, 0, 4)
	if iq.ID != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "id"}, Value: iq.ID})
	}
	if !iq.To.IsZero() {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: iq.To.String()})
	}
	if !iq.From.IsZero() {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: iq.From.String()})
	}
	if iq.Type != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(iq.Type)})
	}
	return attrs
}

// Result returns a copy of iq suitable for use as a "result" response: the
// to/from are swapped and the type is set to ResultIQ.
func (iq IQ) Result() IQ {
	iq.From, iq.To = iq.To, iq.From
	iq.Type = ResultIQ
	return iq
}

// Error returns a copy of iq suitable for use as an "error" response: the
// to/from are swapped and the type is set to ErrorIQ.
func (iq IQ) Error() IQ {
	iq.From, iq.To = iq.To, iq.From
	iq.Type = ErrorIQ
	return iq
}
