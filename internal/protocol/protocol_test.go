package protocol_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/protocol"
)

func TestMethodFlags(t *testing.T) {
	t.Run("ChatFlagsMatchWireValue", func(t *testing.T) {
		assert.Equal(t, protocol.MethodFlags(7), protocol.ChatFlags)
		assert.True(t, protocol.ChatFlags.RequiresFeedback())
		assert.True(t, protocol.ChatFlags.RequiresContentCheck())
		assert.True(t, protocol.ChatFlags.RequiresRedirect())
	})

	t.Run("SocialIsRedirectOnly", func(t *testing.T) {
		assert.Equal(t, protocol.MethodFlags(1), protocol.SocialFlags)
		assert.False(t, protocol.SocialFlags.RequiresFeedback())
		assert.Equal(t, "redirect", protocol.SocialFlags.String())
	})

	t.Run("WithWithout", func(t *testing.T) {
		m := protocol.Flags(protocol.FlagRedirect).With(protocol.FlagNeedFeedback)
		assert.True(t, m.RequiresFeedback())
		assert.False(t, m.Without(protocol.FlagNeedFeedback).RequiresFeedback())
		assert.Equal(t, "none", protocol.MethodFlags(0).String())
	})
}

func TestStatus(t *testing.T) {
	assert.False(t, protocol.StatusSending.Terminal())
	for _, s := range []protocol.Status{protocol.StatusSuccess, protocol.StatusFailed, protocol.StatusBlocked} {
		assert.True(t, s.Terminal(), s)
	}
	assert.True(t, protocol.StatusFailed.Resendable())
	assert.True(t, protocol.StatusBlocked.Resendable())
	assert.False(t, protocol.StatusSuccess.Resendable())
	assert.False(t, protocol.Status("delivered").Valid())
}

func TestDecode(t *testing.T) {
	t.Run("NumericID", func(t *testing.T) {
		env, err := protocol.Decode([]byte(`{"id":1712345678901234,"timestamp":5,"from":"a","to":"b","type":1,"method":7,"content":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, "1712345678901234", env.ID)

		chat, ok := env.Payload().(protocol.Chat)
		require.True(t, ok)
		assert.Equal(t, "hi", chat.Content)
		assert.True(t, chat.Method.RequiresFeedback())
	})

	t.Run("Feedback", func(t *testing.T) {
		env, err := protocol.Decode([]byte(`{"id":"m1","type":1,"method":0,"originalTo":"u2","status":"success"}`))
		require.NoError(t, err)
		fb, ok := env.Payload().(protocol.Feedback)
		require.True(t, ok)
		assert.Equal(t, "u2", fb.OriginalTo)
		assert.Equal(t, protocol.StatusSuccess, fb.Status)
	})

	t.Run("StatusWithoutOriginalToIsChat", func(t *testing.T) {
		env, err := protocol.Decode([]byte(`{"id":"m1","type":1,"status":"success","from":"a"}`))
		require.NoError(t, err)
		assert.IsType(t, protocol.Chat{}, env.Payload())
	})

	t.Run("UnknownKind", func(t *testing.T) {
		env, err := protocol.Decode([]byte(`{"id":"x","type":42}`))
		require.NoError(t, err)
		u, ok := env.Payload().(protocol.Unknown)
		require.True(t, ok)
		assert.Equal(t, protocol.Kind(42), u.Kind())
		assert.Equal(t, "kind(42)", u.Kind().String())
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, raw := range []string{`not json`, `{"id":"x"}`, `{"type":"fetch_offline_messages"}`} {
			_, err := protocol.Decode([]byte(raw))
			assert.True(t, errors.Is(err, protocol.ErrMalformed), raw)
		}
	})

	t.Run("SocialKinds", func(t *testing.T) {
		env, err := protocol.Decode([]byte(`{"id":"s1","type":9,"method":1,"from":"a","to":"b","postId":"p1","commentId":"c1"}`))
		require.NoError(t, err)
		s, ok := env.Payload().(protocol.Social)
		require.True(t, ok)
		assert.Equal(t, protocol.KindComment, s.Kind())
		assert.Equal(t, "c1", s.CommentID)
	})
}

func TestKinds(t *testing.T) {
	var social []protocol.Kind
	for _, k := range protocol.Kinds() {
		assert.True(t, k.Known(), k.String())
		if k.Social() {
			social = append(social, k)
		}
	}
	assert.Len(t, protocol.Kinds(), 10)
	assert.Equal(t, []protocol.Kind{
		protocol.KindLike, protocol.KindFavorite, protocol.KindFollow, protocol.KindComment, protocol.KindMention,
	}, social)

	assert.False(t, protocol.Kind(0).Known())
	assert.False(t, protocol.Kind(11).Known())
	assert.False(t, protocol.Kind(42).Social())

	for _, k := range social {
		assert.IsType(t, protocol.Social{}, protocol.Envelope{Kind: k}.Payload(), k.String())
	}
}

func TestEncode(t *testing.T) {
	t.Run("ChatOmitsStatus", func(t *testing.T) {
		data, err := protocol.Encode(protocol.Chat{ID: "m1", From: "a", To: "b", Content: "hi", Method: protocol.ChatFlags})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"m1","timestamp":0,"from":"a","to":"b","type":1,"method":7,"content":"hi"}`, string(data))
	})

	t.Run("Presence", func(t *testing.T) {
		p := protocol.Presence{ID: "p1", From: "a", Target: "b", Method: protocol.Flags(protocol.FlagNeedFeedback)}
		data, err := protocol.Encode(p)
		require.NoError(t, err)
		back, err := protocol.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "b", back.Payload().(protocol.Presence).TargetOrSender())
	})

	t.Run("FetchOffline", func(t *testing.T) {
		data, err := protocol.Encode(protocol.FetchOffline{From: "a", Timestamp: 9})
		require.NoError(t, err)
		assert.JSONEq(t, `{"timestamp":9,"from":"a","type":7,"method":0}`, string(data))
	})
}

func TestPing(t *testing.T) {
	assert.True(t, protocol.IsPing(protocol.PingFrame()))
	assert.False(t, protocol.IsPing([]byte{0x09, 0x00}))
	assert.False(t, protocol.IsPing(nil))
}

func TestIDGenerator(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(1_700_000_000_000))

	t.Run("MachineValue", func(t *testing.T) {
		assert.Equal(t, int64(('a'+'b')%1000), protocol.MachineValue("ab"))
		assert.Equal(t, int64(0), protocol.MachineValue(""))
	})

	t.Run("UniqueUnderFrozenClock", func(t *testing.T) {
		gen := protocol.NewIDGenerator("device-1", clk)
		seen := make(map[string]struct{})
		for i := 0; i < 5000; i++ {
			id := gen.Next()
			_, dup := seen[id]
			require.False(t, dup, id)
			seen[id] = struct{}{}
		}
	})

	t.Run("EncodesTimestamp", func(t *testing.T) {
		gen := protocol.NewIDGenerator("", clk)
		id := gen.Next()
		assert.Len(t, id, len("17000000000000000"))
		assert.Equal(t, "1700000000000", id[:13])
	})
}
