// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package sasl implements RFC 6120 §6 SASL authentication as an
// xmpp.Authenticator.
package sasl

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	msasl "mellium.im/sasl"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/internal/saslerr"
)

// Module authenticates a session using one of a preference-ordered list of
// mechanisms. Identity is used when a user wants to act on behalf of
// another user; normally it is left blank and the localpart of the
// session's identity is used instead.
type Module struct {
	Transport  xmpp.Transport
	Username   string
	Password   string
	Identity   string
	Mechanisms []msasl.Mechanism
}

// New returns a SASL module authenticating username/password with the given
// mechanisms, preferred in the order listed.
func New(transport xmpp.Transport, username, password string, mechanisms ...msasl.Mechanism) *Module {
	if len(mechanisms) == 0 {
		panic("sasl: must specify at least 1 SASL mechanism")
	}
	return &Module{Transport: transport, Username: username, Password: password, Mechanisms: mechanisms}
}

// Entry returns a registry entry exposing this module as an
// xmpp.Authenticator.
func (m *Module) Entry() *xmpp.ModuleEntry {
	return &xmpp.ModuleEntry{
		ID:       "sasl",
		Features: []string{ns.SASL},
		Impl:     m,
	}
}

// rawSend writes a literal XML fragment to the transport. Constructing the
// <auth/>/<response/> elements by hand, as the wrapped SASL payload already
// is raw base64 text, is simpler than building a token stream for it.
func (m *Module) rawSend(ctx context.Context, literal string) error {
	return m.Transport.Send(ctx, xml.NewDecoder(strings.NewReader(literal)))
}

// Login selects the strongest mutually supported mechanism and runs it to
// completion, blocking on the transport for however many challenge/response
// round trips the mechanism needs. It always reports finishExpected=false:
// the whole exchange, including the terminating <success/> or <failure/>,
// completes before Login returns.
func (m *Module) Login(ctx context.Context, sess *xmpp.Session, feat *xmpp.FeatureSet) (finishExpected bool, err error) {
	var selected msasl.Mechanism
selectMechanism:
	for _, mech := range m.Mechanisms {
		for _, name := range feat.Mechanisms {
			if name == mech.Name {
				selected = mech
				break selectMechanism
			}
		}
	}
	if selected.Name == "" {
		return false, errors.New("sasl: no matching mechanism advertised by the server")
	}

	opts := []msasl.Option{
		msasl.Authz(m.Identity),
		msasl.Credentials(m.Username, m.Password),
		msasl.RemoteMechanisms(feat.Mechanisms...),
	}
	client := msasl.NewClient(selected, opts...)

	more, resp, err := client.Step(nil)
	if err != nil {
		return false, fmt.Errorf("sasl: initial step: %w", err)
	}
	// RFC 6120 §6.4.2: a zero-length initial response must be sent as "=".
	if len(resp) == 0 {
		resp = []byte{'='}
	}
	if err := m.rawSend(ctx, fmt.Sprintf(`<auth xmlns='%s' mechanism='%s'>%s</auth>`, ns.SASL, selected.Name, resp)); err != nil {
		return false, fmt.Errorf("sasl: sending auth: %w", err)
	}

	d := xml.NewTokenDecoder(m.Transport)

	// A mechanism that converges after the initial step (e.g. PLAIN) never
	// enters the loop below; the terminating success/failure still has to be
	// read off the wire.
	if !more {
		success, err := readOutcome(d)
		if err != nil {
			return false, err
		}
		if !success {
			return false, errors.New("sasl: authentication did not succeed")
		}
		return false, nil
	}

	success := false
	for more {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
		tok, err := d.Token()
		if err != nil {
			return false, fmt.Errorf("sasl: reading challenge: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			return false, errors.New("sasl: expected a challenge, success, or failure element")
		}
		var challenge []byte
		challenge, success, err = decodeStep(d, start)
		if err != nil {
			return false, err
		}
		if more, resp, err = client.Step(challenge); err != nil {
			return false, fmt.Errorf("sasl: step: %w", err)
		}
		if !more && success {
			break
		}
		if err := m.rawSend(ctx, fmt.Sprintf(`<response xmlns='%s'>%s</response>`, ns.SASL, resp)); err != nil {
			return false, fmt.Errorf("sasl: sending response: %w", err)
		}
	}
	if !success {
		return false, errors.New("sasl: authentication did not succeed")
	}
	return false, nil
}

// readOutcome reads and decodes a single success/failure element.
func readOutcome(d *xml.Decoder) (success bool, err error) {
	tok, err := d.Token()
	if err != nil {
		return false, fmt.Errorf("sasl: reading response: %w", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return false, errors.New("sasl: expected success or failure element")
	}
	_, success, err = decodeStep(d, start)
	return success, err
}

func decodeStep(d *xml.Decoder, start xml.StartElement) (challenge []byte, success bool, err error) {
	switch {
	case start.Name.Space == ns.SASL && (start.Name.Local == "challenge" || start.Name.Local == "success"):
		v := struct {
			Data []byte `xml:",chardata"`
		}{}
		if err := d.DecodeElement(&v, &start); err != nil {
			return nil, false, err
		}
		return v.Data, start.Name.Local == "success", nil
	case start.Name.Space == ns.SASL && start.Name.Local == "failure":
		fail := saslerr.Failure{}
		if err := d.DecodeElement(&fail, &start); err != nil {
			return nil, false, err
		}
		return nil, false, fail
	default:
		return nil, false, fmt.Errorf("sasl: unexpected element %v", start.Name)
	}
}
