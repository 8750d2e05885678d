package app_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/app"
	"github.com/changyunjeff/campus-mp/internal/config"
	"github.com/changyunjeff/campus-mp/internal/httpserver"
	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/security"
	"github.com/changyunjeff/campus-mp/internal/service"
	"github.com/changyunjeff/campus-mp/internal/ws"
)

type relay struct {
	srv    *httptest.Server
	tokens *security.TokenService
}

func startRelay(t *testing.T) *relay {
	t.Helper()
	cfg := &config.RelayConfig{Env: "development", JWTSecret: "secret", TokenTTLMinutes: 60}
	tokens := security.NewTokenService(cfg.JWTSecret, time.Hour)
	dir := httpserver.NewDirectory()
	dir.Update("A", "Alice", "")
	dir.Update("B", "Bob", "")
	r := ws.NewRelay(ws.NewHub(0, nil), ws.NewPolicy([]string{"forbidden"}), nil, nil)
	srv := httptest.NewServer(httpserver.NewRouter(cfg, r, tokens, dir, nil))
	t.Cleanup(srv.Close)
	return &relay{srv: srv, tokens: tokens}
}

func (r *relay) client(t *testing.T, user string, opts ...func(*config.Config)) (*app.Client, *fxtest.App) {
	t.Helper()
	tok, err := r.tokens.CreateForUser(user)
	require.NoError(t, err)
	cfg := &config.Config{
		WebSocketURL:      "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws",
		BaseURL:           r.srv.URL,
		Token:             tok,
		DeviceID:          "device-" + user,
		PingInterval:      time.Minute,
		ReconnectInterval: 50 * time.Millisecond,
		DialTimeout:       2 * time.Second,
		CacheBackend:      "memory",
		ProfileCacheTTL:   time.Minute,
		ProfileCacheSize:  10,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	var c *app.Client
	fxApp := fxtest.New(t, app.Options(cfg, zap.NewNop()), fx.Populate(&c))
	fxApp.RequireStart()
	require.Eventually(t, c.Connection.Connected, 2*time.Second, 10*time.Millisecond)
	return c, fxApp
}

func messageStatus(c *app.Client, conv, id string) protocol.Status {
	cv, ok := c.Conversations.Get(conv)
	if !ok {
		return ""
	}
	if i := cv.FindMessage(id); i >= 0 {
		return cv.Messages[i].Status
	}
	return ""
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t)
	a, appA := r.client(t, "A")
	defer appA.RequireStop()
	b, appB := r.client(t, "B")

	assert.Equal(t, "A", a.Identity.Identity())

	_, err := a.Messages.SendChat(ctx, service.ChatInput{ID: "m1", To: "B", Content: "hello"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return messageStatus(a, "B", "m1") == protocol.StatusSuccess }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return messageStatus(b, "A", "m1") == protocol.StatusSuccess }, 2*time.Second, 10*time.Millisecond)

	conv, _ := b.Conversations.Get("A")
	assert.Equal(t, uint32(1), conv.UnreadCount)
	assert.Equal(t, "hello", conv.LastMessage)
	require.Eventually(t, func() bool {
		cv, _ := b.Conversations.Get("A")
		return cv.UserInfo != nil && cv.UserInfo.Nickname == "Alice"
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("SensitiveContentFails", func(t *testing.T) {
		_, err := a.Messages.SendChat(ctx, service.ChatInput{ID: "m2", To: "B", Content: "this is forbidden"})
		require.NoError(t, err)
		require.Eventually(t, func() bool { return messageStatus(a, "B", "m2") == protocol.StatusFailed }, 2*time.Second, 10*time.Millisecond)
		cv, ok := b.Conversations.Get("A")
		require.True(t, ok)
		assert.Equal(t, -1, cv.FindMessage("m2"), "rejected message must not reach the recipient")
		assert.Empty(t, messageStatus(b, "A", "m2"))
	})

	t.Run("Presence", func(t *testing.T) {
		online := make(chan bool, 4)
		unsubscribe := a.Presence.Subscribe("B", func(v bool) { online <- v })
		defer unsubscribe()
		require.NoError(t, a.Presence.SendCheckOnline(ctx, "B"))
		select {
		case v := <-online:
			assert.True(t, v)
		case <-time.After(2 * time.Second):
			t.Fatal("no presence reply")
		}
		require.Eventually(t, func() bool {
			cv, _ := a.Conversations.Get("B")
			return cv.IsOnline
		}, 2*time.Second, 10*time.Millisecond)

		appB.RequireStop()
		select {
		case v := <-online:
			assert.False(t, v)
		case <-time.After(2 * time.Second):
			t.Fatal("no offline broadcast")
		}
	})

	t.Run("OfflineDelivery", func(t *testing.T) {
		_, err := a.Messages.SendChat(ctx, service.ChatInput{ID: "m3", To: "B", Content: "while you were out"})
		require.NoError(t, err)
		require.Eventually(t, func() bool { return messageStatus(a, "B", "m3") == protocol.StatusSuccess }, 2*time.Second, 10*time.Millisecond)

		b2, appB2 := r.client(t, "B")
		defer appB2.RequireStop()
		require.Eventually(t, func() bool { return messageStatus(b2, "A", "m3") == protocol.StatusSuccess }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestSocialFeedSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	r := startRelay(t)
	sqliteCache := func(path string) func(*config.Config) {
		return func(cfg *config.Config) {
			cfg.CacheBackend = "sqlite"
			cfg.CachePath = path
		}
	}
	cachePath := filepath.Join(t.TempDir(), "B", "cache.db")

	a, appA := r.client(t, "A")
	defer appA.RequireStop()
	b, appB := r.client(t, "B", sqliteCache(cachePath))

	require.NoError(t, a.Messages.SendLike(ctx, service.SocialInput{To: "B", PostID: "p1"}))
	require.NoError(t, a.Messages.SendComment(ctx, service.SocialInput{To: "B", PostID: "p1", Content: "nice"}))
	require.Eventually(t, func() bool { return len(b.Feed.List()) == 2 }, 2*time.Second, 10*time.Millisecond)
	b.Feed.MarkAllRead(ctx, protocol.KindLike)
	appB.RequireStop()

	b2, appB2 := r.client(t, "B", sqliteCache(cachePath))
	defer appB2.RequireStop()
	items := b2.Feed.List()
	require.Len(t, items, 2)
	assert.Zero(t, b2.Feed.Unread(protocol.KindLike))
	assert.Equal(t, 1, b2.Feed.Unread(protocol.KindComment))
	comments := b2.Feed.List(protocol.KindComment)
	require.Len(t, comments, 1)
	assert.Equal(t, "nice", comments[0].Content)
	assert.Equal(t, "A", comments[0].From)
}
