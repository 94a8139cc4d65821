// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"corexmpp.dev/xmpp/internal"
	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/jid"
	"corexmpp.dev/xmpp/stanza"
	streamerr "corexmpp.dev/xmpp/stream"
)

// Session is the public session-logic engine (C10): it owns the module
// registry, the event bus, the response table, the dispatch and outbound
// pipelines, and the negotiator state that drives a Transport from a bare
// connection to a stream ready to carry application stanzas.
//
// Exported methods run on the caller's goroutine; negotiation and inbound
// dispatch run on the session's reader goroutine (see readLoop). Only
// event-bus delivery and response timeouts go through the session's task
// queue.
type Session struct {
	cfg       Config
	transport Transport
	registry  *Registry
	bus       *EventBus
	queue     *taskQueue
	responses *responseTable
	outbound  *outboundPipeline
	dispatch  *dispatcher
	state     *publishedState

	identity jid.JID
	boundJID jid.JID

	// Negotiator-owned fields (C7). Mutated by Start and by the session's
	// single reader goroutine.
	phase                   phase
	feat                    *FeatureSet
	tlsActive               bool
	zlibActive              bool
	authenticated           bool
	sessionRequired         bool
	smResumedThisConnection bool
	lastTransportState      TransportState

	redirect  *redirectHandler
	keepalive *keepalive

	readerDone chan struct{}
}

// NewSession constructs a session for the given identity (the bare JID to
// authenticate as) against transport, using the given, already-populated
// module registry. The registry is sealed by this call; no further modules
// may be registered afterwards (§5).
func NewSession(identity jid.JID, cfg Config, transport Transport, registry *Registry) *Session {
	s := &Session{
		cfg:        cfg,
		transport:  transport,
		registry:   registry,
		identity:   identity,
		state:      newPublishedState(Disconnected),
		readerDone: make(chan struct{}),
	}
	s.queue = newTaskQueue(64)
	s.bus = newEventBus(s.queue.Post)
	s.responses = newResponseTable(s.queue)
	s.outbound = newOutboundPipeline(registry, transport)
	s.dispatch = newDispatcher(registry, s.responses, s.outbound)
	s.redirect = newRedirectHandler()
	if cfg.PingInterval > 0 {
		s.keepalive = newKeepalive(s, cfg.PingInterval)
	}
	registry.Seal()
	return s
}

// State returns the session's current observable state.
func (s *Session) State() SessionState { return s.state.Get() }

// Subscribe registers for SessionState changes; see publishedState.Subscribe.
func (s *Session) Subscribe() (<-chan SessionState, func()) { return s.state.Subscribe() }

// Events returns the session's event bus, for modules and observers that
// want to react to negotiation and lifecycle events (§6 Exposed events).
func (s *Session) Events() *EventBus { return s.bus }

// Registry returns the session's module registry.
func (s *Session) Registry() *Registry { return s.registry }

// Identity returns the bare JID this session authenticates as.
func (s *Session) Identity() jid.JID { return s.identity }

// LocalAddr returns the full JID bound to this session, or the zero JID
// before bind has completed.
func (s *Session) LocalAddr() jid.JID { return s.boundJID }

func (s *Session) logf(format string, args ...interface{}) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Output(2, fmt.Sprintf(format, args...))
}

// sliceTokenReader replays a pre-captured, self-contained run of XML
// tokens. It backs the per-stanza and per-stream-level-element readers the
// session's reader loop hands to the dispatcher and negotiator, decoupling
// capturing a subtree from the transport from the code that later reads it.
type sliceTokenReader struct {
	toks []xml.Token
	i    int
}

func (r *sliceTokenReader) Token() (xml.Token, error) {
	if r.i >= len(r.toks) {
		return nil, io.EOF
	}
	t := r.toks[r.i]
	r.i++
	return t, nil
}

// captureSubtree reads from the transport until the end of the element
// whose start has already been consumed (start itself is not re-read),
// returning its descendant tokens followed by a synthetic EndElement
// matching start's name — i.e. exactly what a reader positioned right
// after start would yield, which is what xmlstream.Inner and
// xml.Decoder.DecodeElement both expect to terminate on.
func captureSubtree(t Transport, start xml.StartElement) ([]xml.Token, error) {
	depth := 1
	var toks []xml.Token
	for depth > 0 {
		tok, err := t.Token()
		if err != nil {
			return nil, err
		}
		tok = xml.CopyToken(tok)
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
		if depth > 0 {
			toks = append(toks, tok)
		}
	}
	toks = append(toks, xml.EndElement{Name: start.Name})
	return toks, nil
}

// Start dials (or redials) info, sends the initial stream header, and
// begins the negotiation and dispatch loop. It returns once the initial
// connection and stream restart have been established; negotiation
// continues asynchronously, observable via Subscribe/Events.
func (s *Session) Start(ctx context.Context, info ConnInfo) error {
	s.state.set(Connecting)
	s.lastTransportState = TransportConnecting
	if err := s.transport.Reconnect(ctx, info); err != nil {
		return fmt.Errorf("xmpp: connect failed: %w", err)
	}
	s.phase = phaseAwaitingFeatures
	s.tlsActive = false
	s.zlibActive = false
	s.authenticated = false
	s.smResumedThisConnection = false
	if _, err := s.transport.RestartStream(ctx, s.identity.Domain(), jid.JID{}); err != nil {
		return fmt.Errorf("xmpp: stream start failed: %w", err)
	}

	go s.readLoop(ctx)
	if s.keepalive != nil {
		s.keepalive.Start(ctx)
	}
	return nil
}

// readLoop is the session's single reader goroutine (required by
// Transport.Token's contract). It classifies every top-level element and
// processes its subtree inline: negotiation steps (Login, Bind, Resume,
// Establish, Enable) read and write the transport directly, stealing the
// reader for the duration of their own request/reply exchange exactly as
// the protocol requires them to, and ordinary post-Ready stanza dispatch
// runs synchronously too, matching a conventional single-goroutine XMPP
// read/dispatch loop. Only event-bus delivery and response-table timeouts
// are handed to the task queue (see eventbus.go, response.go) — routing
// negotiation or dispatch through that same queue would deadlock the
// moment a negotiation step needed to read a reply that only this very
// goroutine, blocked posting the step itself, could ever produce.
func (s *Session) readLoop(ctx context.Context) {
	defer close(s.readerDone)
	for {
		tok, err := s.transport.Token()
		if err != nil {
			s.onStreamTerminated(ctx)
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			// Stray character data or similar between top-level elements;
			// RFC 6120 §4.1 allows but does not require whitespace keepalive
			// pings here, ignore anything else.
			continue
		}

		if start.Name.Space == ns.Stream && start.Name.Local == "stream" {
			// A nested re-opening of the stream header itself only occurs
			// immediately after a restart we ourselves triggered; the
			// transport's RestartStream already consumes it, so seeing one
			// here would be a protocol violation. It is skipped: the loop
			// goes on with the next token, and the header's children are
			// read as top-level elements.
			continue
		}

		toks, err := captureSubtree(s.transport, start)
		if err != nil {
			s.onStreamTerminated(ctx)
			return
		}
		body := &sliceTokenReader{toks: toks}

		switch {
		case start.Name.Space == ns.Stream && start.Name.Local == "features":
			feat, ferr := parseFeatures(body)
			if ferr != nil {
				s.fail(ctx, fmt.Errorf("xmpp: malformed stream features: %w", ferr))
				continue
			}
			s.onFeatures(ctx, feat)
		case start.Name.Space == ns.Stream && start.Name.Local == "error":
			var serr streamerr.Error
			d := xml.NewTokenDecoder(body)
			if derr := serr.UnmarshalXML(d, start); derr != nil {
				s.fail(ctx, fmt.Errorf("xmpp: malformed stream error: %w", derr))
				continue
			}
			s.onStreamError(ctx, &serr)
		default:
			s.dispatch.Dispatch(ctx, s, start, body)
		}
	}
}

// Send runs tok through the outbound pipeline and writes it to the
// transport (§4.2 Outbound contract). It runs on the caller's goroutine and
// is not routed through the session's task queue.
func (s *Session) Send(ctx context.Context, tok xml.TokenReader) error {
	return s.outbound.Send(ctx, s, tok)
}

// SendIQ sends an IQ of type get or set and invokes cb with the correlating
// response (or ErrResponseTimeout/ErrSessionTerminated). A zero timeout
// falls back to Config.RequestTimeout; a zero RequestTimeout means no
// deadline.
func (s *Session) SendIQ(ctx context.Context, iq stanza.IQ, payload xml.TokenReader, timeout time.Duration, cb func(stanza.IQ, xml.TokenReader, error)) error {
	if iq.ID == "" {
		iq.ID = internal.RandomID(internal.IDLen)
	}
	if timeout == 0 {
		timeout = s.cfg.RequestTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	s.responses.Register(iq.ID, iq.To, deadline, cb)
	if err := s.Send(ctx, iq.Wrap(payload)); err != nil {
		if p, ok := s.responses.Remove(iq.ID, iq.To); ok {
			p.callback(iq, nil, err)
		}
		return err
	}
	return nil
}

func (s *Session) onStreamError(ctx context.Context, serr *streamerr.Error) {
	if s.cfg.UseSeeOtherHost {
		if info, ok := s.redirect.onStreamError(serr); ok {
			s.bus.Publish(ctx, Event{Kind: EvError, Err: fmt.Errorf("xmpp: redirected to %s:%d", info.Host, info.Port)})
			s.reconnectTo(ctx, info)
			return
		}
	}
	s.bus.Publish(ctx, Event{Kind: EvError, StreamErr: serr, Err: fmt.Errorf("xmpp: stream error: %s", serr.Error())})
	s.phase = phaseFailed
}

func (s *Session) reconnectTo(ctx context.Context, info ConnInfo) {
	if err := s.Start(ctx, info); err != nil {
		s.fail(ctx, fmt.Errorf("xmpp: redirect reconnect failed: %w", err))
	}
}

// resumptionTarget is implemented by the sm module's Impl when it has a
// saved resumption location to prefer over a fresh bind (§4.7).
type resumptionTarget interface {
	ResumptionTarget() (ConnInfo, bool)
}

// ServerToConnectDetails reports which address the next connection attempt
// should use: a cached see-other-host redirect takes priority (and is
// cleared once returned), then a saved stream-management resumption
// location, else ErrNoRedirect (§4.4, §4.7) — callers fall back to their
// own SRV/A-record resolution in that case, which is out of the core's
// scope (§1).
func (s *Session) ServerToConnectDetails() (ConnInfo, error) {
	if info, ok := s.redirect.Cached(); ok {
		s.redirect.Clear()
		return info, nil
	}
	if m, ok := s.registry.Lookup(moduleSM); ok && m.Impl != nil {
		if rt, ok := m.Impl.(resumptionTarget); ok {
			if info, ok := rt.ResumptionTarget(); ok {
				return info, nil
			}
		}
	}
	return ConnInfo{}, ErrNoRedirect
}

// Close performs an orderly shutdown: it marks the session Disconnecting,
// fails every pending response, stops the keepalive scheduler, and closes
// the transport. It does not wait for the remote end's acknowledging
// stream close.
func (s *Session) Close(ctx context.Context) error {
	s.state.set(Disconnecting)
	if s.keepalive != nil {
		s.keepalive.Stop()
	}
	s.responses.FailAll(ErrSessionTerminated)
	s.responses.Close()
	err := s.transport.Close()
	s.state.set(Disconnected)
	s.queue.Stop()
	return err
}
