package presence_test

import (
	"context"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/presence"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []protocol.Payload
}

func (f *fakeSender) TrySend(_ context.Context, p protocol.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

type sink map[string]bool

func (s sink) SetOnline(id string, online bool) { s[id] = online }

func newRegistry(sender *fakeSender, sk sink) *presence.Registry {
	clk := clock.NewMock()
	return presence.New(sender, sk, domain.StaticIdentity("me"), protocol.NewIDGenerator("dev", clk), clk, nil)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	sk := sink{}
	r := newRegistry(&fakeSender{}, sk)

	var a, b []bool
	unA := r.Subscribe("B", func(online bool) { a = append(a, online) })
	unB := r.Subscribe("B", func(online bool) { b = append(b, online) })
	assert.Equal(t, 2, r.Subscribers("B"))

	r.HandlePresence(ctx, protocol.Presence{From: "server", Target: "B", Status: protocol.PresenceOnline})
	assert.Equal(t, []bool{true}, a)
	assert.Equal(t, []bool{true}, b)
	assert.True(t, sk["B"])

	unA()
	unA()
	assert.Equal(t, 1, r.Subscribers("B"))

	// without targetId the sender is the subject
	r.HandlePresence(ctx, protocol.Presence{From: "B", Status: protocol.PresenceOffline})
	assert.Equal(t, []bool{true}, a)
	assert.Equal(t, []bool{true, false}, b)
	assert.False(t, sk["B"])

	unB()
	assert.Zero(t, r.Subscribers("B"))

	// no subscribers: dropped, store still told
	r.HandlePresence(ctx, protocol.Presence{Target: "C", Status: protocol.PresenceOnline})
	assert.True(t, sk["C"])
}

func TestSendCheckOnline(t *testing.T) {
	ctx := context.Background()

	t.Run("Connected", func(t *testing.T) {
		s := &fakeSender{}
		r := newRegistry(s, nil)
		require.NoError(t, r.SendCheckOnline(ctx, "B"))
		require.Len(t, s.sent, 1)
		env := s.sent[0].Envelope()
		assert.Equal(t, protocol.KindPresence, env.Kind)
		assert.Equal(t, "B", env.TargetID)
		assert.Equal(t, "me", env.From)
		assert.True(t, env.Method.RequiresFeedback())
	})

	t.Run("NotConnected", func(t *testing.T) {
		r := newRegistry(&fakeSender{err: domain.ErrNotConnected}, nil)
		assert.ErrorIs(t, r.SendCheckOnline(ctx, "B"), domain.ErrNotConnected)
	})

	t.Run("EmptyTarget", func(t *testing.T) {
		r := newRegistry(&fakeSender{}, nil)
		assert.ErrorIs(t, r.SendCheckOnline(ctx, ""), domain.ErrValidation)
	})
}
