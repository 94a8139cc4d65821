// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"corexmpp.dev/xmpp/internal/ns"
	"corexmpp.dev/xmpp/jid"
)

// Well-known module identifiers the negotiator drives directly, in addition
// to the generic Criteria/Process stanza-routing contract every module
// implements (§6 Module contract).
const (
	moduleStartTLS = "starttls"
	moduleCompress = "compress"
	moduleSASL     = "sasl"
	moduleBind     = "bind"
	moduleSession  = "session"
	moduleSM       = "sm"
	modulePing     = "ping"
	moduleDisco    = "disco"
)

// The negotiation-driving interfaces below are implemented by a module's
// Impl value (ModuleEntry.Impl) and invoked by the state machine at the
// point in §4.1's algorithm named in each method's doc comment. They exist
// alongside the generic Criteria/Process contract because login, bind,
// resume, establish, and enable are each a single, specific request/reply
// exchange the negotiator must sequence explicitly, not an arbitrary
// inbound stanza a module opts into.

// Authenticator performs SASL mechanism negotiation (§4.1 step 3). Login
// returns finishExpected=true when the mechanism completes over more than
// one round trip in a way that, under pipelining, is treated as equivalent
// to immediate success (§4.1 "Pipelining").
type Authenticator interface {
	Login(ctx context.Context, sess *Session, feat *FeatureSet) (finishExpected bool, err error)
}

// Binder performs resource binding (§4.1 Bind-success branch).
type Binder interface {
	Bind(ctx context.Context, sess *Session) (jid.JID, error)
}

// Resumer attempts XEP-0198 stream resumption. ok reports whether
// resumption was attempted at all (a saved location/id existed); when ok is
// false the negotiator falls back to Binder (§4.1 step 3-4, §4.7).
type Resumer interface {
	Resume(ctx context.Context, sess *Session) (ok bool, err error)
}

// Establisher performs legacy RFC 3921 session establishment (§4.1
// Bind-success branch, second case).
type Establisher interface {
	Establish(ctx context.Context, sess *Session) error
}

// Enabler enables XEP-0198 stream management after a session is connected
// (§4.1 SM branch).
type Enabler interface {
	Enable(ctx context.Context, sess *Session) error
}

// StreamStarter is invoked instead of a normal stream restart when
// pipelining is active and an AuthFinishExpected event arrives (§4.1
// "Stream restart policy").
type StreamStarter interface {
	StartStream(ctx context.Context, sess *Session) error
}

// discoverer kicks off best-effort service discovery once a session is
// connected (§4.1 SM branch, §6 disco module).
type discoverer interface {
	Discover(ctx context.Context, sess *Session)
}

// FeatureSet is the decoded content of a <stream:features/> element,
// consulted by the negotiator's feature-reaction algorithm (§4.1).
type FeatureSet struct {
	StartTLS         bool
	StartTLSRequired bool

	CompressionMethods []string

	Mechanisms []string

	BindAdvertised bool

	SessionAdvertised bool
	SessionOptional   bool

	SmAdvertised bool
}

// parseFeatures decodes a <stream:features/> element. start has already
// been consumed; r must yield exactly its children, as
// xmlstream.Inner(transport) does when called right after reading start.
func parseFeatures(r xml.TokenReader) (*FeatureSet, error) {
	feat := &FeatureSet{}
	d := xml.NewTokenDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case se.Name.Space == ns.StartTLS && se.Name.Local == "starttls":
			var v struct {
				Required *struct{} `xml:"required"`
			}
			if err := d.DecodeElement(&v, &se); err != nil {
				return nil, err
			}
			feat.StartTLS = true
			feat.StartTLSRequired = v.Required != nil
		case se.Name.Space == ns.Compress && se.Name.Local == "compression":
			var v struct {
				Methods []string `xml:"method"`
			}
			if err := d.DecodeElement(&v, &se); err != nil {
				return nil, err
			}
			feat.CompressionMethods = v.Methods
		case se.Name.Space == ns.SASL && se.Name.Local == "mechanisms":
			var v struct {
				Mechanisms []string `xml:"mechanism"`
			}
			if err := d.DecodeElement(&v, &se); err != nil {
				return nil, err
			}
			feat.Mechanisms = v.Mechanisms
		case se.Name.Space == ns.Bind && se.Name.Local == "bind":
			if err := d.Skip(); err != nil {
				return nil, err
			}
			feat.BindAdvertised = true
		case se.Name.Space == ns.Session && se.Name.Local == "session":
			var v struct {
				Optional *struct{} `xml:"optional"`
			}
			if err := d.DecodeElement(&v, &se); err != nil {
				return nil, err
			}
			feat.SessionAdvertised = true
			feat.SessionOptional = v.Optional != nil
		case se.Name.Space == ns.SM && se.Name.Local == "sm":
			if err := d.Skip(); err != nil {
				return nil, err
			}
			feat.SmAdvertised = true
		default:
			if err := d.Skip(); err != nil {
				return nil, err
			}
		}
	}
	return feat, nil
}

func errModuleMissing(id string) error {
	return fmt.Errorf("xmpp: no %q module registered", id)
}

func (s *Session) authModule() (Authenticator, bool) {
	m, ok := s.registry.Lookup(moduleSASL)
	if !ok || m.Impl == nil {
		return nil, false
	}
	a, ok := m.Impl.(Authenticator)
	return a, ok
}

func (s *Session) binder() (Binder, bool) {
	m, ok := s.registry.Lookup(moduleBind)
	if !ok || m.Impl == nil {
		return nil, false
	}
	b, ok := m.Impl.(Binder)
	return b, ok
}

func (s *Session) resumer() (Resumer, bool) {
	m, ok := s.registry.Lookup(moduleSM)
	if !ok || m.Impl == nil {
		return nil, false
	}
	r, ok := m.Impl.(Resumer)
	return r, ok
}

func (s *Session) establisher() (Establisher, bool) {
	m, ok := s.registry.Lookup(moduleSession)
	if !ok || m.Impl == nil {
		return nil, false
	}
	e, ok := m.Impl.(Establisher)
	return e, ok
}

func (s *Session) enabler() (Enabler, bool) {
	m, ok := s.registry.Lookup(moduleSM)
	if !ok || m.Impl == nil {
		return nil, false
	}
	e, ok := m.Impl.(Enabler)
	return e, ok
}

func (s *Session) streamStarter() (StreamStarter, bool) {
	m, ok := s.registry.Lookup(moduleSASL)
	if !ok || m.Impl == nil {
		return nil, false
	}
	st, ok := m.Impl.(StreamStarter)
	return st, ok
}

func (s *Session) discoModule() (discoverer, bool) {
	m, ok := s.registry.Lookup(moduleDisco)
	if !ok || m.Impl == nil {
		return nil, false
	}
	d, ok := m.Impl.(discoverer)
	return d, ok
}

// onFeatures is the entry point for EvStreamFeaturesReceived (§4.1
// "Algorithm (feature reaction)"). Features arriving once the negotiator
// has already reached Ready are spurious and ignored (§4.1 Tie-breaks).
func (s *Session) onFeatures(ctx context.Context, feat *FeatureSet) {
	if s.phase == phaseReady {
		return
	}
	s.feat = feat
	s.bus.Publish(ctx, Event{Kind: EvStreamFeaturesReceived, Features: feat})

	switch {
	case !s.tlsActive && !s.cfg.DisableTLS && feat.StartTLS:
		s.doStartTLS(ctx)
	case !s.zlibActive && !s.cfg.DisableCompression && len(feat.CompressionMethods) > 0:
		s.doStartCompression(ctx)
	case !s.authenticated:
		if s.phase != phaseAuth {
			s.doLogin(ctx, feat)
		} else if s.smAdvertisedAndEnabled(feat) {
			s.doResume(ctx)
		} else {
			s.doBind(ctx)
		}
	default:
		if s.smAdvertisedAndEnabled(feat) {
			s.doResume(ctx)
		} else {
			s.doBind(ctx)
		}
	}
}

func (s *Session) smAdvertisedAndEnabled(feat *FeatureSet) bool {
	if !feat.SmAdvertised {
		return false
	}
	_, ok := s.resumer()
	return ok
}

func (s *Session) doStartTLS(ctx context.Context) {
	s.phase = phaseStartTLS
	if err := s.transport.StartTLS(ctx); err != nil {
		s.fail(ctx, fmt.Errorf("xmpp: starttls failed: %w", err))
		return
	}
	s.tlsActive = true
	s.restartStream(ctx)
}

func (s *Session) doStartCompression(ctx context.Context) {
	s.phase = phaseCompression
	if err := s.transport.StartCompression(ctx); err != nil {
		s.fail(ctx, fmt.Errorf("xmpp: compression negotiation failed: %w", err))
		return
	}
	s.zlibActive = true
	s.restartStream(ctx)
}

// restartStream re-sends the stream header and resets the negotiator to
// AwaitingFeatures; the next <stream:features/> is delivered by the
// session's read loop re-entering onFeatures (§4.1 "Stream restart
// policy").
func (s *Session) restartStream(ctx context.Context) {
	from := jid.JID{}
	if s.cfg.UseSeeOtherHost && s.identity.Localpart() != "" {
		from = s.identity
	}
	if _, err := s.transport.RestartStream(ctx, s.identity.Domain(), from); err != nil {
		s.fail(ctx, fmt.Errorf("xmpp: stream restart failed: %w", err))
		return
	}
	s.phase = phaseAwaitingFeatures
}

func (s *Session) doLogin(ctx context.Context, feat *FeatureSet) {
	s.phase = phaseAuth
	a, ok := s.authModule()
	if !ok {
		s.onAuthFailed(ctx, errModuleMissing(moduleSASL))
		return
	}
	finishExpected, err := a.Login(ctx, s, feat)
	if err != nil {
		s.onAuthFailed(ctx, err)
		return
	}
	if finishExpected {
		s.onAuthFinishExpected(ctx)
		return
	}
	s.onAuthSuccess(ctx)
}

func (s *Session) onAuthSuccess(ctx context.Context) {
	s.authenticated = true
	s.bus.Publish(ctx, Event{Kind: EvAuthSuccess})
	if s.cfg.Pipelining {
		return
	}
	s.restartStream(ctx)
}

func (s *Session) onAuthFinishExpected(ctx context.Context) {
	s.authenticated = true
	s.bus.Publish(ctx, Event{Kind: EvAuthFinishExpected})
	if s.cfg.Pipelining {
		if starter, ok := s.streamStarter(); ok {
			if err := starter.StartStream(ctx, s); err != nil {
				s.fail(ctx, fmt.Errorf("xmpp: pipelined stream start failed: %w", err))
			}
			return
		}
	}
	s.restartStream(ctx)
}

func (s *Session) onAuthFailed(ctx context.Context, err error) {
	s.phase = phaseFailed
	s.bus.Publish(ctx, Event{Kind: EvAuthFailed, Err: err})
	s.logf("xmpp: authentication failed: %v", err)
}

func (s *Session) doBind(ctx context.Context) {
	s.phase = phaseBind
	b, ok := s.binder()
	if !ok {
		s.onBindFailed(ctx, errModuleMissing(moduleBind))
		return
	}
	full, err := b.Bind(ctx, s)
	if err != nil {
		s.onBindFailed(ctx, err)
		return
	}
	s.onResourceBound(ctx, full)
}

func (s *Session) onResourceBound(ctx context.Context, full jid.JID) {
	s.boundJID = full
	s.bus.Publish(ctx, Event{Kind: EvResourceBindSuccess, JID: full})

	s.sessionRequired = s.feat != nil && s.feat.SessionAdvertised && !s.feat.SessionOptional
	if s.sessionRequired {
		s.doEstablishSession(ctx)
		return
	}
	s.onSessionEstablished(ctx)
}

func (s *Session) onBindFailed(ctx context.Context, err error) {
	s.phase = phaseFailed
	s.bus.Publish(ctx, Event{Kind: EvResourceBindError, Err: err})
	s.logf("xmpp: resource bind failed: %v", err)
}

func (s *Session) doEstablishSession(ctx context.Context) {
	s.phase = phaseSession
	e, ok := s.establisher()
	if !ok {
		s.onSessionError(ctx, errModuleMissing(moduleSession))
		return
	}
	if err := e.Establish(ctx, s); err != nil {
		s.onSessionError(ctx, err)
		return
	}
	s.onSessionEstablished(ctx)
}

func (s *Session) onSessionError(ctx context.Context, err error) {
	s.phase = phaseFailed
	s.bus.Publish(ctx, Event{Kind: EvSessionEstablishmentError, Err: err})
	s.logf("xmpp: legacy session establishment failed: %v", err)
}

func (s *Session) onSessionEstablished(ctx context.Context) {
	s.phase = phaseReady
	s.bus.Publish(ctx, Event{Kind: EvSessionEstablishmentSuccess})
	s.state.set(Connected)
	s.afterConnected(ctx)
}

func (s *Session) doResume(ctx context.Context) {
	s.phase = phaseSmEnable
	r, ok := s.resumer()
	if !ok {
		s.doBind(ctx)
		return
	}
	attempted, err := r.Resume(ctx, s)
	if !attempted {
		s.doBind(ctx)
		return
	}
	if err != nil {
		s.onSmFailed(ctx, err)
		return
	}
	s.onSmResumed(ctx)
}

func (s *Session) onSmResumed(ctx context.Context) {
	s.phase = phaseReady
	s.smResumedThisConnection = true
	s.bus.Publish(ctx, Event{Kind: EvSmResumed})
	s.state.set(Connected)
	s.afterConnected(ctx)
}

// onSmFailed invokes a fresh bind after a failed resume (§4.1 SM branch).
func (s *Session) onSmFailed(ctx context.Context, err error) {
	s.bus.Publish(ctx, Event{Kind: EvSmFailed, Err: err})
	s.doBind(ctx)
}

// afterConnected runs the common tail of both the bind and SM-resume paths:
// kick off best-effort discovery and, unless this connection was itself a
// resumption, enable stream management if advertised (§4.1 SM branch).
func (s *Session) afterConnected(ctx context.Context) {
	if d, ok := s.discoModule(); ok {
		d.Discover(ctx, s)
	}
	if s.smResumedThisConnection {
		return
	}
	if s.feat != nil && s.feat.SmAdvertised {
		if en, ok := s.enabler(); ok {
			if err := en.Enable(ctx, s); err != nil {
				s.logf("xmpp: failed to enable stream management: %v", err)
			}
		}
	}
}

// onTransportStateChanged tracks the transport's connectivity so that
// onStreamTerminated can apply the Open Question 1 resolution.
func (s *Session) onTransportStateChanged(ctx context.Context, ts TransportState) {
	s.lastTransportState = ts
	if ts == TransportConnecting {
		s.state.set(Connecting)
	}
}

// onStreamTerminated resets stream-management state only when the
// transport's last observed state transition was back to Connecting — the
// original's documented condition (§9 Open Question 1, resolved in
// DESIGN.md).
func (s *Session) onStreamTerminated(ctx context.Context) {
	if s.lastTransportState == TransportConnecting {
		if m, ok := s.registry.Lookup(moduleSM); ok && m.Reset != nil {
			m.Reset(s)
		}
		s.smResumedThisConnection = false
	}
	s.bus.Publish(ctx, Event{Kind: EvSessionCleared})
}

// fail marks negotiation as failed and logs err. Per §7's propagation
// policy, the core does not tear down the transport itself; it stops
// driving negotiation and leaves teardown to the surrounding transport.
func (s *Session) fail(ctx context.Context, err error) {
	s.phase = phaseFailed
	s.bus.Publish(ctx, Event{Kind: EvError, Err: err})
	s.logf("xmpp: negotiation failed: %v", err)
}
