// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package sm implements XEP-0198: Stream Management — enable/resume
// negotiation, inbound/outbound stanza ack counters, and resumption
// location bookkeeping. It is not present in the distilled specification as
// a package, but is consulted by nearly every invariant governing
// reconnection and delivery, so it is the single biggest addition the full
// specification makes over the distilled one.
package sm

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"corexmpp.dev/xmpp"
	"corexmpp.dev/xmpp/internal/ns"
)

// Module tracks one stream's XEP-0198 state: whether management is enabled,
// the counters needed to ack and ack-check stanzas, and any saved
// resumption location/id pair carried across a reconnect.
type Module struct {
	Transport xmpp.Transport

	mu       sync.Mutex
	enabled  bool
	id       string
	location *xmpp.ConnInfo
	inbound  uint32 // stanzas received since last enable/resume
	outbound uint32 // stanzas sent since last enable/resume
}

// New returns a stream management module.
func New(transport xmpp.Transport) *Module {
	return &Module{Transport: transport}
}

// Entry returns a registry entry exposing this module as an xmpp.Enabler,
// xmpp.Resumer, and a resumption-location source, plus the FilterIncoming/
// FilterOutgoing hooks that maintain the ack counters.
func (m *Module) Entry() *xmpp.ModuleEntry {
	return &xmpp.ModuleEntry{
		ID:             "sm",
		Features:       []string{ns.SM},
		Impl:           m,
		FilterIncoming: m.filterIncoming,
		FilterOutgoing: m.filterOutgoing,
		Reset:          m.reset,
	}
}

// Enable sends <enable/> with resume requested, and records the session id
// and any resumption location the server returns.
func (m *Module) Enable(ctx context.Context, sess *xmpp.Session) error {
	req := xml.StartElement{
		Name: xml.Name{Space: ns.SM, Local: "enable"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "resume"}, Value: "true"}},
	}
	if err := m.Transport.Send(ctx, emptyElement(req)); err != nil {
		return fmt.Errorf("sm: sending enable: %w", err)
	}

	tok, err := m.Transport.Token()
	if err != nil {
		return fmt.Errorf("sm: reading response: %w", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Space != ns.SM {
		return fmt.Errorf("sm: expected enabled or failed, got %v", tok)
	}

	switch start.Name.Local {
	case "enabled":
		var v struct {
			ID       string `xml:"id,attr"`
			Resume   string `xml:"resume,attr"`
			Location string `xml:"location,attr"`
		}
		if err := xml.NewTokenDecoder(m.Transport).DecodeElement(&v, &start); err != nil {
			return fmt.Errorf("sm: decoding enabled: %w", err)
		}
		m.mu.Lock()
		m.enabled = true
		m.inbound = 0
		m.outbound = 0
		if v.Resume == "true" || v.Resume == "1" {
			m.id = v.ID
		}
		if v.Location != "" {
			if info, ok := parseLocation(v.Location); ok {
				m.location = &info
			}
		}
		m.mu.Unlock()
		return nil
	case "failed":
		if err := xml.NewTokenDecoder(m.Transport).Skip(); err != nil {
			return fmt.Errorf("sm: decoding failed: %w", err)
		}
		return fmt.Errorf("sm: server declined to enable stream management")
	default:
		return fmt.Errorf("sm: unexpected element %v", start.Name)
	}
}

// Resume attempts to resume a previous stream using a saved session id. ok
// is false when there is nothing to resume, in which case the negotiator
// falls back to a fresh bind.
func (m *Module) Resume(ctx context.Context, sess *xmpp.Session) (ok bool, err error) {
	m.mu.Lock()
	id := m.id
	h := m.inbound
	m.mu.Unlock()
	if id == "" {
		return false, nil
	}

	req := xml.StartElement{
		Name: xml.Name{Space: ns.SM, Local: "resume"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "h"}, Value: strconv.FormatUint(uint64(h), 10)},
			{Name: xml.Name{Local: "previd"}, Value: id},
		},
	}
	if err := m.Transport.Send(ctx, emptyElement(req)); err != nil {
		return true, fmt.Errorf("sm: sending resume: %w", err)
	}

	tok, err := m.Transport.Token()
	if err != nil {
		return true, fmt.Errorf("sm: reading response: %w", err)
	}
	start, ok2 := tok.(xml.StartElement)
	if !ok2 || start.Name.Space != ns.SM {
		return true, fmt.Errorf("sm: expected resumed or failed, got %v", tok)
	}

	switch start.Name.Local {
	case "resumed":
		if err := xml.NewTokenDecoder(m.Transport).Skip(); err != nil {
			return true, fmt.Errorf("sm: decoding resumed: %w", err)
		}
		m.mu.Lock()
		m.enabled = true
		m.outbound = 0
		m.mu.Unlock()
		return true, nil
	case "failed":
		if err := xml.NewTokenDecoder(m.Transport).Skip(); err != nil {
			return true, fmt.Errorf("sm: decoding failed: %w", err)
		}
		m.mu.Lock()
		m.id = ""
		m.enabled = false
		m.mu.Unlock()
		return true, fmt.Errorf("sm: resumption rejected")
	default:
		return true, fmt.Errorf("sm: unexpected element %v", start.Name)
	}
}

// ResumptionTarget reports the server-preferred reconnection address from
// the most recent <enabled location='.../> attribute, if any (§4.7).
func (m *Module) ResumptionTarget() (xmpp.ConnInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.location == nil {
		return xmpp.ConnInfo{}, false
	}
	return *m.location, true
}

func (m *Module) reset(sess *xmpp.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.id = ""
	m.location = nil
	m.inbound = 0
	m.outbound = 0
}

// filterIncoming handles inbound <r/> ack requests and <a/> ack reports
// itself (consuming them so they never reach module routing), and counts
// every ordinary stanza received while management is enabled.
func (m *Module) filterIncoming(ctx context.Context, sess *xmpp.Session, s *xmpp.Stanza) (bool, error) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return false, nil
	}

	if s.Name.Space == ns.SM {
		switch s.Name.Local {
		case "r":
			m.mu.Lock()
			h := m.inbound
			m.mu.Unlock()
			ack := xml.StartElement{
				Name: xml.Name{Space: ns.SM, Local: "a"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "h"}, Value: strconv.FormatUint(uint64(h), 10)}},
			}
			if err := sess.Send(ctx, emptyElement(ack)); err != nil {
				return true, fmt.Errorf("sm: sending ack: %w", err)
			}
			return true, nil
		case "a":
			// Informational: reports how many of our outbound stanzas the
			// server has processed. Retransmission of unacked stanzas on
			// resume failure is not implemented.
			return true, nil
		}
	}

	switch s.Name.Local {
	case "iq", "message", "presence":
		m.mu.Lock()
		m.inbound++
		m.mu.Unlock()
	}
	return false, nil
}

// filterOutgoing counts every outbound iq/message/presence stanza while
// management is enabled. It does not alter the outbound stream.
func (m *Module) filterOutgoing(ctx context.Context, sess *xmpp.Session, tok xml.TokenReader) (xml.TokenReader, error) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return tok, nil
	}

	toks, first, err := peekFirst(tok)
	if err != nil {
		return nil, err
	}
	if se, ok := first.(xml.StartElement); ok {
		switch se.Name.Local {
		case "iq", "message", "presence":
			m.mu.Lock()
			m.outbound++
			m.mu.Unlock()
		}
	}
	return toks, nil
}

// emptyElement returns a TokenReader yielding start immediately followed by
// its matching end tag.
func emptyElement(start xml.StartElement) *replayReader {
	return &replayReader{toks: []xml.Token{start, start.End()}}
}

// peekFirst fully buffers tok (every outbound stanza's token stream is
// finite) so its first token can be inspected, returning a reader that
// replays the same sequence.
func peekFirst(tok xml.TokenReader) (xml.TokenReader, xml.Token, error) {
	var toks []xml.Token
	for {
		t, err := tok.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		toks = append(toks, xml.CopyToken(t))
	}
	var first xml.Token
	if len(toks) > 0 {
		first = toks[0]
	}
	return &replayReader{toks: toks}, first, nil
}

type replayReader struct {
	toks []xml.Token
	i    int
}

func (r *replayReader) Token() (xml.Token, error) {
	if r.i >= len(r.toks) {
		return nil, io.EOF
	}
	t := r.toks[r.i]
	r.i++
	return t, nil
}

func parseLocation(loc string) (xmpp.ConnInfo, bool) {
	host, port := loc, uint16(5222)
	if h, p, err := net.SplitHostPort(loc); err == nil {
		host = h
		if n, perr := strconv.ParseUint(p, 10, 16); perr == nil {
			port = uint16(n)
		}
	} else {
		host = strings.Trim(loc, "[]")
	}
	if host == "" {
		return xmpp.ConnInfo{}, false
	}
	return xmpp.ConnInfo{Host: host, Port: port}, true
}
