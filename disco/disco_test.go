// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package disco_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"testing"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/disco"
	"corexmpp.dev/xmpp/disco/info"
	"corexmpp.dev/xmpp/internal/stream"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
)

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

func (f *fakeTransport) Token() (xml.Token, error)              { return nil, nil }
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
	sess := xmpp.NewSession(jid.MustParse("juliet@example.com"), xmpp.Config{}, tr, reg)
	return sess, tr
}

func TestCriteriaMatchesDiscoInfoQuery(t *testing.T) {
	m := disco.New(nil, nil)
	entry := m.Entry()
	body := `<query xmlns="http://jabber.org/protocol/disco#info"></query>`
	s := xmpp.Stanza{
		Name:    xml.Name{Local: "iq"},
		Type:    string(stanza.GetIQ),
		Payload: xml.NewDecoder(bytes.NewBufferString(body)),
	}
	if !entry.Criteria(s) {
		t.Fatal("expected criteria to match a disco#info get query")
	}
}

func TestCriteriaRejectsOtherNamespace(t *testing.T) {
	m := disco.New(nil, nil)
	entry := m.Entry()
	body := `<query xmlns="http://jabber.org/protocol/disco#items"></query>`
	s := xmpp.Stanza{
		Name:    xml.Name{Local: "iq"},
		Type:    string(stanza.GetIQ),
		Payload: xml.NewDecoder(bytes.NewBufferString(body)),
	}
	if entry.Criteria(s) {
		t.Error("expected criteria to reject a disco#items query")
	}
}

func TestProcessAdvertisesDefaultIdentityAndFeatures(t *testing.T) {
	m := disco.New(nil, []info.Feature{{Var: "urn:xmpp:ping"}})
	entry := m.Entry()
	sess, tr := newTestSession(t, entry)

	s := xmpp.Stanza{
		ID:   "disco1",
		From: jid.MustParse("romeo@example.net"),
		To:   jid.MustParse("juliet@example.com"),
		Type: string(stanza.GetIQ),
	}
	if err := entry.Process(context.Background(), sess, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(tr.sent))
	}
	out := string(tr.sent[0])
	for _, want := range []string{
		`type="result"`,
		`category="client"`,
		`var="http://jabber.org/protocol/disco#info"`,
		`var="urn:xmpp:ping"`,
	} {
		if !bytes.Contains(tr.sent[0], []byte(want)) {
			t.Errorf("expected reply to contain %q, got: %s", want, out)
		}
	}
}

func TestProcessAdvertisesCustomIdentity(t *testing.T) {
	m := disco.New([]info.Identity{{Category: "client", Type: "pc", Name: "corexmpp"}}, nil)
	entry := m.Entry()
	sess, tr := newTestSession(t, entry)

	s := xmpp.Stanza{ID: "disco2", Type: string(stanza.GetIQ)}
	if err := entry.Process(context.Background(), sess, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(tr.sent[0], []byte(`name="corexmpp"`)) {
		t.Errorf("expected custom identity name in reply, got: %s", tr.sent[0])
	}
}
