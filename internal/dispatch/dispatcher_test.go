package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/changyunjeff/campus-mp/internal/dispatch"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("LastRegistrationWins", func(t *testing.T) {
		d := dispatch.New(nil)
		var first, second int
		d.Register(protocol.KindSystem, func(context.Context, protocol.Payload) { first++ })
		d.Register(protocol.KindSystem, func(context.Context, protocol.Payload) { second++ })

		d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindSystem})
		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
	})

	t.Run("MissingAndUnknownIgnored", func(t *testing.T) {
		d := dispatch.New(nil)
		called := false
		d.Register(protocol.Kind(99), func(context.Context, protocol.Payload) { called = true })

		assert.NotPanics(t, func() {
			d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindLike})
			d.Dispatch(ctx, protocol.Envelope{Kind: protocol.Kind(99)})
		})
		assert.False(t, called)
	})

	t.Run("Unregister", func(t *testing.T) {
		d := dispatch.New(nil)
		n := 0
		d.Register(protocol.KindSystem, func(context.Context, protocol.Payload) { n++ })
		d.Unregister(protocol.KindSystem)
		d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindSystem})
		assert.Zero(t, n)
	})

	t.Run("PanicRecovered", func(t *testing.T) {
		d := dispatch.New(nil)
		d.Register(protocol.KindSystem, func(context.Context, protocol.Payload) { panic("boom") })
		assert.NotPanics(t, func() { d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindSystem}) })
	})

	t.Run("TypedOn", func(t *testing.T) {
		d := dispatch.New(nil)
		var got protocol.Presence
		dispatch.On(d, protocol.KindPresence, func(_ context.Context, p protocol.Presence) { got = p })
		d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindPresence, From: "u2", Status: "online"})
		assert.True(t, got.Online())
		assert.Equal(t, "u2", got.TargetOrSender())
	})

	t.Run("SplitChat", func(t *testing.T) {
		d := dispatch.New(nil)
		var msgs, fbs int
		dispatch.Split(d, dispatch.ChatHandlers{
			Message:  func(context.Context, protocol.Chat) { msgs++ },
			Feedback: func(context.Context, protocol.Feedback) { fbs++ },
		})
		d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindChat, ID: "m1", From: "u2"})
		d.Dispatch(ctx, protocol.Envelope{Kind: protocol.KindChat, ID: "m1", OriginalTo: "u2", Status: "success"})
		assert.Equal(t, 1, msgs)
		assert.Equal(t, 1, fbs)
	})
}
