package ws

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/metrics"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// SystemSender is the from field of envelopes the relay authors itself.
const SystemSender = "system"

// Relay implements the server half of the envelope protocol on top of a Hub.
type Relay struct {
	hub    *Hub
	policy *Policy
	clock  clock.Clock
	logger *zap.Logger
}

func NewRelay(hub *Hub, policy *Policy, clk clock.Clock, logger *zap.Logger) *Relay {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewPolicy(nil)
	}
	return &Relay{hub: hub, policy: policy, clock: clk, logger: logger}
}

func (r *Relay) Hub() *Hub       { return r.hub }
func (r *Relay) Policy() *Policy { return r.policy }
func (r *Relay) now() int64      { return r.clock.Now().UnixMilli() }

func (r *Relay) connected(p *peer) {
	if r.hub.Register(p) {
		r.logger.Info("relay_user_online", zap.String("user", p.user))
		r.broadcastPresence(p.user, protocol.PresenceOnline)
	}
}

func (r *Relay) disconnected(p *peer) {
	if r.hub.Unregister(p) {
		r.logger.Info("relay_user_offline", zap.String("user", p.user))
		r.broadcastPresence(p.user, protocol.PresenceOffline)
	}
}

func (r *Relay) broadcastPresence(user, status string) {
	for _, w := range r.hub.Watchers(user) {
		r.push(w, protocol.Presence{Timestamp: r.now(), From: user, To: w, Target: user, Status: status})
	}
}

// handleFrame processes one inbound frame from p. The sender is always the
// authenticated user, whatever the envelope claims.
func (r *Relay) handleFrame(ctx context.Context, p *peer, data []byte) {
	if protocol.IsPing(data) {
		return
	}
	env, err := protocol.Decode(data)
	if err != nil {
		r.logger.Debug("relay_frame_dropped", zap.String("user", p.user), zap.Error(err))
		return
	}
	env.From = p.user

	switch m := env.Payload().(type) {
	case protocol.Chat:
		r.handleChat(ctx, p, m)
	case protocol.Presence:
		r.handlePresence(p, m)
	case protocol.FetchOffline:
		if n := r.hub.Flush(p.user); n > 0 {
			r.logger.Info("relay_offline_flushed", zap.String("user", p.user), zap.Int("count", n))
		}
	case protocol.Feedback:
		r.logger.Debug("relay_client_feedback_ignored", zap.String("user", p.user))
	default:
		// notifications and social kinds are forwarded verbatim
		if env.Method.RequiresRedirect() && env.To != "" {
			r.forward(env.To, m)
		}
	}
}

func (r *Relay) handleChat(_ context.Context, p *peer, c protocol.Chat) {
	if c.To == "" {
		r.logger.Warn("relay_chat_without_recipient", zap.String("user", p.user), zap.String("id", c.ID))
		return
	}
	status := protocol.StatusSuccess
	switch {
	case c.Method.RequiresContentCheck() && r.policy.Sensitive(c.Content):
		status = protocol.StatusFailed
	case r.policy.Blocked(c.To, p.user):
		status = protocol.StatusBlocked
	case c.Method.RequiresRedirect():
		r.forward(c.To, c)
	}
	r.logger.Debug("relay_chat", zap.String("from", p.user), zap.String("to", c.To), zap.String("status", string(status)))

	if c.Method.RequiresFeedback() {
		r.reply(p, protocol.Feedback{
			ID:         c.ID,
			Timestamp:  r.now(),
			From:       SystemSender,
			To:         p.user,
			OriginalTo: c.To,
			Status:     status,
			Anonymous:  c.Anonymous,
		})
	}
}

func (r *Relay) handlePresence(p *peer, m protocol.Presence) {
	target := m.Target
	if target == "" {
		target = m.To
	}
	if target == "" {
		return
	}
	r.hub.Watch(p.user, target)
	status := protocol.PresenceOffline
	if r.hub.Online(target) {
		status = protocol.PresenceOnline
	}
	r.reply(p, protocol.Presence{ID: m.ID, Timestamp: r.now(), From: SystemSender, To: p.user, Target: target, Status: status})
}

func (r *Relay) forward(to string, pl protocol.Payload) {
	kind := pl.Kind()
	data, err := protocol.Encode(pl)
	if err != nil {
		r.logger.Error("relay_encode_failed", zap.Error(err))
		return
	}
	delivered := r.hub.Deliver(to, data)
	metrics.RelayForwarded.WithLabelValues(kind.String()).Inc()
	if !delivered {
		r.logger.Debug("relay_queued", zap.String("to", to), zap.Stringer("kind", kind))
	}
}

// push delivers a relay-authored envelope, queueing it if the user is away.
func (r *Relay) push(user string, pl protocol.Payload) {
	data, err := protocol.Encode(pl)
	if err != nil {
		r.logger.Error("relay_encode_failed", zap.Error(err))
		return
	}
	r.hub.Deliver(user, data)
}

func (r *Relay) reply(p *peer, pl protocol.Payload) {
	data, err := protocol.Encode(pl)
	if err != nil {
		r.logger.Error("relay_encode_failed", zap.Error(err))
		return
	}
	r.hub.Send(p, data)
}
