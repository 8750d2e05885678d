// Package presence tracks who wants to hear about whose online status and
// issues online checks over the live connection.
package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// Sender writes to an already open connection without dialing.
type Sender interface {
	TrySend(ctx context.Context, p protocol.Payload) error
}

// OnlineSink receives every presence result, e.g. the conversation store.
type OnlineSink interface {
	SetOnline(participantID string, online bool)
}

type Registry struct {
	sender   Sender
	sink     OnlineSink
	identity domain.IdentityProvider
	ids      *protocol.IDGenerator
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	next   uint64
	byUser map[string]map[uint64]func(online bool)
}

func New(sender Sender, sink OnlineSink, identity domain.IdentityProvider, ids *protocol.IDGenerator, clk clock.Clock, logger *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sender:   sender,
		sink:     sink,
		identity: identity,
		ids:      ids,
		clock:    clk,
		logger:   logger,
		byUser:   make(map[string]map[uint64]func(bool)),
	}
}

// Subscribe registers fn for target. The returned function removes it and
// may be called any number of times.
func (r *Registry) Subscribe(target string, fn func(online bool)) (unsubscribe func()) {
	r.mu.Lock()
	r.next++
	key := r.next
	set, ok := r.byUser[target]
	if !ok {
		set = make(map[uint64]func(bool))
		r.byUser[target] = set
	}
	set[key] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if set, ok := r.byUser[target]; ok {
				delete(set, key)
				if len(set) == 0 {
					delete(r.byUser, target)
				}
			}
		})
	}
}

// Subscribers reports how many callbacks are registered for target.
func (r *Registry) Subscribers(target string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[target])
}

// SendCheckOnline asks the relay whether target is online. It fails with
// ErrNotConnected instead of dialing.
func (r *Registry) SendCheckOnline(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty target", domain.ErrValidation)
	}
	p := protocol.Presence{
		ID:        r.ids.Next(),
		Timestamp: r.clock.Now().UnixMilli(),
		From:      r.identity.Identity(),
		To:        target,
		Target:    target,
		Method:    protocol.Flags(protocol.FlagNeedFeedback),
	}
	if err := r.sender.TrySend(ctx, p); err != nil {
		return fmt.Errorf("check online %s: %w", target, err)
	}
	return nil
}

// HandlePresence fans a presence reply or broadcast out to subscribers.
func (r *Registry) HandlePresence(_ context.Context, p protocol.Presence) {
	target := p.TargetOrSender()
	if target == "" {
		return
	}
	online := p.Online()
	if r.sink != nil {
		r.sink.SetOnline(target, online)
	}

	r.mu.Lock()
	set := r.byUser[target]
	fns := make([]func(bool), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	if len(fns) == 0 {
		r.logger.Debug("presence_unobserved", zap.String("target", target))
		return
	}
	for _, fn := range fns {
		fn(online)
	}
}
