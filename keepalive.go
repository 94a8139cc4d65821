// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"fmt"
	"time"
)

// pinger is implemented by the ping module's Impl and performs one
// complete ping round trip, blocking until the reply or a timeout.
type pinger interface {
	Ping(ctx context.Context, sess *Session) error
}

// keepalive is C9: it sends a ping once every configured interval and
// reports failure via EvError, without escalating to tearing down the
// transport itself — that decision belongs to the transport's own watchdog
// (§9 Open Question 3).
type keepalive struct {
	sess     *Session
	interval time.Duration
	timer    *time.Timer
	stop     chan struct{}
}

func newKeepalive(sess *Session, interval time.Duration) *keepalive {
	return &keepalive{sess: sess, interval: interval, stop: make(chan struct{})}
}

func (k *keepalive) Start(ctx context.Context) {
	k.timer = time.AfterFunc(k.interval, func() { k.fire(ctx) })
}

func (k *keepalive) Stop() {
	if k.timer != nil {
		k.timer.Stop()
	}
	close(k.stop)
}

func (k *keepalive) fire(ctx context.Context) {
	select {
	case <-k.stop:
		return
	default:
	}
	defer k.reschedule(ctx)

	if k.sess.State() != Connected {
		return
	}
	p, ok := k.pingModule()
	if !ok {
		return
	}
	go func() {
		if err := p.Ping(ctx, k.sess); err != nil {
			k.sess.bus.Publish(ctx, Event{Kind: EvError, Err: fmt.Errorf("xmpp: keepalive ping failed: %w", err)})
		}
	}()
}

func (k *keepalive) pingModule() (pinger, bool) {
	m, ok := k.sess.registry.Lookup(modulePing)
	if !ok || m.Impl == nil {
		return nil, false
	}
	p, ok := m.Impl.(pinger)
	return p, ok
}

func (k *keepalive) reschedule(ctx context.Context) {
	select {
	case <-k.stop:
		return
	default:
	}
	k.timer = time.AfterFunc(k.interval, func() { k.fire(ctx) })
}
