// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package ping_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"testing"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/internal/stream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/ping"
	"corexmpp.dev/xmpp/stanza"
)

// fakeTransport records every fragment sent to it; it never dials anything.
type fakeTransport struct {
	sent [][]byte
}

func (f *fakeTransport) State() xmpp.TransportState { return xmpp.TransportConnected }

func (f *fakeTransport) Send(_ context.Context, tok xml.TokenReader) error {
	var b bytes.Buffer
	enc := xml.NewEncoder(&b)
	for {
		tk, err := tok.Token()
		if err != nil {
			break
		}
		if err := enc.EncodeToken(tk); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	f.sent = append(f.sent, b.Bytes())
	return nil
}

func (f *fakeTransport) Token() (xml.Token, error)   { return nil, nil }
func (f *fakeTransport) StartTLS(context.Context) error         { return nil }
func (f *fakeTransport) StartCompression(context.Context) error { return nil }
func (f *fakeTransport) RestartStream(context.Context, jid.JID, jid.JID) (stream.Info, error) {
	return stream.Info{}, nil
}
func (f *fakeTransport) Reconnect(context.Context, xmpp.ConnInfo) error { return nil }
func (f *fakeTransport) Close() error                                  { return nil }

func newTestSession(t *testing.T, entries ...*xmpp.ModuleEntry) (*xmpp.Session, *fakeTransport) {
	t.Helper()
	reg := xmpp.NewRegistry()
	for _, e := range entries {
		reg.Register(e)
	}
	tr := &fakeTransport{}
	identity := jid.MustParse("juliet@example.com")
	sess := xmpp.NewSession(identity, xmpp.Config{}, tr, reg)
	return sess, tr
}

func TestModuleProcessAnswersPing(t *testing.T) {
	m := ping.New()
	sess, tr := newTestSession(t, m.Entry())

	body := `<ping xmlns="urn:xmpp:ping"></ping>`
	newPayload := func() xml.TokenReader { return xml.NewDecoder(bytes.NewBufferString(body)) }

	entry := m.Entry()
	s := xmpp.Stanza{
		Name: xml.Name{Local: "iq"},
		ID:   "abc123",
		From: jid.MustParse("romeo@example.net"),
		To:   jid.MustParse("juliet@example.com"),
		Type: string(stanza.GetIQ),
	}
	s.Payload = newPayload()
	if !entry.Criteria(s) {
		t.Fatal("expected criteria to match a ping payload")
	}
	s.Payload = newPayload()
	if err := entry.Process(context.Background(), sess, s); err != nil {
		t.Fatalf("unexpected error from process: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(tr.sent))
	}
	out := string(tr.sent[0])
	if !bytes.Contains(tr.sent[0], []byte(`type="result"`)) {
		t.Errorf("expected a result IQ, got: %s", out)
	}
	if !bytes.Contains(tr.sent[0], []byte(`id="abc123"`)) {
		t.Errorf("expected the reply to echo the request id, got: %s", out)
	}
}

func TestCriteriaRejectsNonPingPayload(t *testing.T) {
	m := ping.New()
	entry := m.Entry()

	body := `<query xmlns="jabber:iq:version"></query>`
	s := xmpp.Stanza{
		Name:    xml.Name{Local: "iq"},
		ID:      "xyz",
		Type:    string(stanza.GetIQ),
		Payload: xml.NewDecoder(bytes.NewBufferString(body)),
	}

	// A get IQ that isn't a ping must not match, so that the dispatcher's
	// own feature-not-implemented fallback (triggered only when no module's
	// Criteria matches at all) is reachable for it.
	if entry.Criteria(s) {
		t.Fatal("expected criteria to reject a non-ping get IQ payload")
	}
}

func TestCriteriaIgnoresNonIQ(t *testing.T) {
	m := ping.New()
	entry := m.Entry()
	s := xmpp.Stanza{Name: xml.Name{Local: "message"}, Type: string(stanza.GetIQ)}
	if entry.Criteria(s) {
		t.Error("expected criteria to reject a non-iq stanza regardless of type")
	}
}
