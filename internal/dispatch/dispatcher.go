// Package dispatch routes inbound envelopes to one handler per kind.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// Handler receives the typed payload of an envelope.
type Handler func(ctx context.Context, p protocol.Payload)

// Dispatcher maps each kind to a single active handler. Registering a kind
// again replaces the previous handler.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[protocol.Kind]Handler
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[protocol.Kind]Handler), logger: logger}
}

func (d *Dispatcher) Register(kind protocol.Kind, h Handler) {
	d.mu.Lock()
	_, replaced := d.handlers[kind]
	d.handlers[kind] = h
	d.mu.Unlock()
	if replaced {
		d.logger.Debug("handler_replaced", zap.Stringer("kind", kind))
	}
}

func (d *Dispatcher) Unregister(kind protocol.Kind) {
	d.mu.Lock()
	delete(d.handlers, kind)
	d.mu.Unlock()
}

// Dispatch runs the handler for env's kind on the caller's goroutine.
// Kinds without a handler, and kinds this build does not know, are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, env protocol.Envelope) {
	if !env.Kind.Known() {
		d.logger.Debug("unknown_kind_ignored", zap.Stringer("kind", env.Kind), zap.String("id", env.ID))
		return
	}

	d.mu.RLock()
	h, ok := d.handlers[env.Kind]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug("no_handler", zap.Stringer("kind", env.Kind))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler_panic", zap.Stringer("kind", env.Kind), zap.String("id", env.ID), zap.Any("panic", r))
		}
	}()
	h(ctx, env.Payload())
}

// On registers a handler that only sees payloads of type T; anything else
// arriving under the same kind is ignored.
//
// Chat-kind envelopes decode to either Chat or Feedback, so a chat handler
// is usually registered with Split instead.
func On[T protocol.Payload](d *Dispatcher, kind protocol.Kind, fn func(context.Context, T)) {
	d.Register(kind, func(ctx context.Context, p protocol.Payload) {
		if v, ok := p.(T); ok {
			fn(ctx, v)
		}
	})
}

// ChatHandlers separates ordinary messages from delivery feedback.
type ChatHandlers struct {
	Message  func(context.Context, protocol.Chat)
	Feedback func(context.Context, protocol.Feedback)
}

// Split registers the chat kind with an exhaustive match over its payloads.
func Split(d *Dispatcher, h ChatHandlers) {
	d.Register(protocol.KindChat, func(ctx context.Context, p protocol.Payload) {
		switch v := p.(type) {
		case protocol.Chat:
			if h.Message != nil {
				h.Message(ctx, v)
			}
		case protocol.Feedback:
			if h.Feedback != nil {
				h.Feedback(ctx, v)
			}
		}
	})
}
