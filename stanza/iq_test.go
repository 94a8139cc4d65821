// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza_test

import (
	"bytes"
	"encoding"
	"encoding/xml"
	"fmt"
	"strings"
	"testing"

	"mellium.im/xmlstream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

var _ encoding.TextMarshaler = stanza.IQType("")

func TestIQWrap(t *testing.T) {
	for i, tc := range [...]struct {
		iq      stanza.IQ
		payload xml.TokenReader
		out     string
	}{
		0: {
			iq:  stanza.IQ{To: jid.MustParse("new@example.net")},
			out: `<iq to="new@example.net">`,
		},
		1: {
			iq:      stanza.IQ{To: jid.MustParse("new@example.org"), Type: stanza.GetIQ},
			payload: xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "ping"}}),
			out:     `<ping></ping>`,
		},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			var b strings.Builder
			e := xml.NewEncoder(&b)
			if _, err := xmlstream.Copy(e, tc.iq.Wrap(tc.payload)); err != nil {
				t.Fatalf("error copying tokens: %v", err)
			}
			if err := e.Flush(); err != nil {
				t.Fatalf("error flushing encoder: %v", err)
			}
			if out := b.String(); !strings.Contains(out, tc.out) {
				t.Errorf("expected output to contain %q, got %q", tc.out, out)
			}
		})
	}
}

func TestMarshalIQTypeAttr(t *testing.T) {
	for i, tc := range [...]struct {
		iqtype stanza.IQType
		value  string
	}{
		0: {stanza.IQType(""), "get"},
		1: {stanza.GetIQ, "get"},
		2: {stanza.SetIQ, "set"},
		3: {stanza.ResultIQ, "result"},
		4: {stanza.ErrorIQ, "error"},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			b, err := xml.Marshal(stanza.IQ{Type: tc.iqtype})
			if tc.iqtype == "" {
				if err == nil {
					t.Fatal("expected error when marshaling IQ with empty type")
				}
				return
			}
			if err != nil {
				t.Fatal("unexpected error while marshaling IQ:", err)
			}
			if !bytes.Contains(b, []byte(fmt.Sprintf(`type="%s"`, tc.value))) {
				t.Errorf(`expected output to contain type="%s", found: %s`, tc.value, b)
			}
		})
	}
}

func TestUnmarshalIQTypeAttr(t *testing.T) {
	for i, tc := range [...]struct {
		iq     string
		iqtype stanza.IQType
	}{
		0: {`<iq/>`, stanza.IQType("")},
		1: {`<iq type=""/>`, stanza.IQType("")},
		2: {`<iq type="get"/>`, stanza.GetIQ},
		3: {`<iq type="error"/>`, stanza.ErrorIQ},
		4: {`<iq type="result"/>`, stanza.ResultIQ},
		5: {`<iq type="set"/>`, stanza.SetIQ},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			iq := stanza.IQ{}
			switch err := xml.Unmarshal([]byte(tc.iq), &iq); {
			case err != nil:
				t.Errorf("unexpected error while unmarshaling IQ: %v", err)
			case tc.iqtype != iq.Type:
				t.Errorf("wrong type when unmarshaling IQ: want=%s, got=%s", tc.iqtype, iq.Type)
			}
		})
	}
}

func TestIQResultAndError(t *testing.T) {
	iq := stanza.IQ{
		ID:   "123",
		To:   jid.MustParse("to@example.net"),
		From: jid.MustParse("from@example.net"),
		Type: stanza.SetIQ,
	}

	result := iq.Result()
	if result.Type != stanza.ResultIQ {
		t.Errorf("wrong result type: got=%s", result.Type)
	}
	if !result.To.Equal(iq.From) || !result.From.Equal(iq.To) {
		t.Errorf("result did not swap to/from: got to=%s from=%s", result.To, result.From)
	}
	if !result.Type.IsResponse() {
		t.Error("expected result type to be a response")
	}

	errIQ := iq.Error()
	if errIQ.Type != stanza.ErrorIQ {
		t.Errorf("wrong error type: got=%s", errIQ.Type)
	}
	if !errIQ.Type.IsResponse() {
		t.Error("expected error type to be a response")
	}
	if iq.Type.IsResponse() {
		t.Error("original set IQ should not be a response")
	}
}
