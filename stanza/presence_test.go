// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza_test

import (
	"encoding/xml"
	"fmt"
	"strings"
	"testing"

	"mellium.im/xmlstream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

func TestUnmarshalPresenceTypeAttr(t *testing.T) {
	for i, tc := range [...]struct {
		presence string
		typ      stanza.PresenceType
	}{
		0: {`<presence/>`, stanza.PresenceType("")},
		1: {`<presence type="probe"/>`, stanza.ProbePresence},
		2: {`<presence type="unavailable"/>`, stanza.UnavailablePresence},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := stanza.Presence{}
			if err := xml.Unmarshal([]byte(tc.presence), &p); err != nil {
				t.Fatalf("unexpected error while unmarshaling Presence: %v", err)
			}
			if p.Type != tc.typ {
				t.Errorf("wrong type when unmarshaling Presence: want=%s, got=%s", tc.typ, p.Type)
			}
		})
	}
}

func TestWrapPresence(t *testing.T) {
	to := jid.MustParse("new@example.org")
	payload := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "show"}})

	var b strings.Builder
	e := xml.NewEncoder(&b)
	if _, err := xmlstream.Copy(e, stanza.WrapPresence(to, stanza.ProbePresence, payload)); err != nil {
		t.Fatalf("error copying tokens: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("error flushing encoder: %v", err)
	}

	out := b.String()
	for _, want := range []string{`to="new@example.org"`, `type="probe"`, `<show></show>`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}
