// Copyright 2015 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza_test

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"testing"

	"mellium.im/xmlstream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

func TestMarshalMessageTypeAttr(t *testing.T) {
	for i, tc := range [...]struct {
		messagetype stanza.MessageType
		value       string
	}{
		0: {stanza.MessageType(""), ""},
		1: {stanza.NormalMessage, "normal"},
		2: {stanza.ChatMessage, "chat"},
		3: {stanza.HeadlineMessage, "headline"},
		4: {stanza.ErrorMessage, "error"},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			b, err := xml.Marshal(stanza.Message{Type: tc.messagetype})
			if err != nil {
				t.Fatalf("unexpected error while marshaling Message: %v", err)
			}

			if tc.value == "" {
				if bytes.Contains(b, []byte("type")) {
					t.Fatalf("didn't expect output to contain type attribute, found: %s", b)
				}
				return
			}

			if !bytes.Contains(b, []byte(fmt.Sprintf(`type="%s"`, tc.value))) {
				t.Errorf(`expected output to contain type="%s", found: %s`, tc.value, b)
			}
		})
	}
}

func TestUnmarshalMessageTypeAttr(t *testing.T) {
	for i, tc := range [...]struct {
		message     string
		messagetype stanza.MessageType
	}{
		0: {`<message type="normal"/>`, stanza.NormalMessage},
		1: {`<message type="error"/>`, stanza.ErrorMessage},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			message := stanza.Message{}
			switch err := xml.Unmarshal([]byte(tc.message), &message); {
			case err != nil:
				t.Errorf("unexpected error while unmarshaling Message: %v", err)
			case tc.messagetype != message.Type:
				t.Errorf("wrong type when unmarshaling Message: want=%s, got=%s", tc.messagetype, message.Type)
			}
		})
	}
}

func TestWrapMessage(t *testing.T) {
	to := jid.MustParse("new@example.net")
	payload := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "body"}})

	var b strings.Builder
	e := xml.NewEncoder(&b)
	if _, err := xmlstream.Copy(e, stanza.WrapMessage(to, stanza.ChatMessage, payload)); err != nil {
		t.Fatalf("error copying tokens: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("error flushing encoder: %v", err)
	}

	out := b.String()
	for _, want := range []string{`to="new@example.net"`, `type="chat"`, `<body></body>`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}
