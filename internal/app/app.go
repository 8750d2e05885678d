// Package app assembles the messaging client with fx. Every service is
// constructed exactly once here and injected; nothing is a package global.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/config"
	"github.com/changyunjeff/campus-mp/internal/connection"
	"github.com/changyunjeff/campus-mp/internal/conversation"
	"github.com/changyunjeff/campus-mp/internal/dispatch"
	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/notify"
	"github.com/changyunjeff/campus-mp/internal/presence"
	"github.com/changyunjeff/campus-mp/internal/profile"
	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/security"
	"github.com/changyunjeff/campus-mp/internal/service"
	"github.com/changyunjeff/campus-mp/internal/store"
	"github.com/changyunjeff/campus-mp/internal/store/pebble"
	"github.com/changyunjeff/campus-mp/internal/store/postgres"
	"github.com/changyunjeff/campus-mp/internal/store/sqlite"
	"github.com/changyunjeff/campus-mp/internal/transport"
)

// Module wires the client. It expects *config.Config and *zap.Logger to be
// supplied by the caller; a clock.Clock and transport.Transport may be
// decorated for tests.
var Module = fx.Module("campus",
	fx.Provide(
		clock.New,
		provideIdentity,
		provideBackend,
		provideSealer,
		provideHistory,
		provideTransport,
		provideIDGenerator,
		provideProfiles,
		dispatch.New,
		provideManager,
		provideStore,
		provideService,
		providePresence,
		provideSystem,
		provideFeed,
		provideInbox,
		newToasts,
		NewClient,
	),
	fx.Invoke(registerHandlers, registerLifecycle),
)

// Options returns everything needed to build a client from cfg.
func Options(cfg *config.Config, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		Module,
	)
}

func provideIdentity(cfg *config.Config) (domain.IdentityProvider, error) {
	if cfg.Identity != "" {
		return domain.StaticIdentity(cfg.Identity), nil
	}
	if cfg.Token == "" {
		return nil, errors.New("APP_TOKEN or APP_IDENTITY is required")
	}
	id, err := security.NewTokenIdentity(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("read identity from token: %w", err)
	}
	return id, nil
}

func provideBackend(cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	switch cfg.CacheBackend {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		c, err := postgres.OpenCache(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if cfg.CacheBackend == "pebble" {
		c, err := pebble.Open(cfg.CachePath, logger.Named("pebble"))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := sqlite.OpenCache(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func provideSealer(cfg *config.Config, id domain.IdentityProvider) (store.Sealer, error) {
	if cfg.CacheSecret == "" {
		return nil, nil
	}
	// per-identity salt keeps two accounts on one device apart
	enc, err := security.NewEncryptor([]byte(cfg.CacheSecret), []byte(id.Identity()))
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func provideHistory(b store.Backend, s store.Sealer, logger *zap.Logger) *store.History {
	return store.NewHistory(b, s, logger.Named("history"))
}

func provideTransport(cfg *config.Config, logger *zap.Logger) transport.Transport {
	return transport.NewWebSocket(cfg.WebSocketURL, cfg.Token, logger.Named("transport"))
}

func provideIDGenerator(cfg *config.Config, clk clock.Clock) *protocol.IDGenerator {
	return protocol.NewIDGenerator(cfg.DeviceID, clk)
}

func provideProfiles(cfg *config.Config, logger *zap.Logger) domain.ProfileFetcher {
	return profile.NewHTTPFetcher(cfg.BaseURL, cfg.Token, cfg.ProfileCacheSize, cfg.ProfileCacheTTL, nil, logger.Named("profile"))
}

func provideManager(cfg *config.Config, tr transport.Transport, d *dispatch.Dispatcher, id domain.IdentityProvider, clk clock.Clock, logger *zap.Logger) *connection.Manager {
	return connection.New(tr, d, id, clk, connection.Config{
		HeartbeatInterval: cfg.PingInterval,
		ReconnectInterval: cfg.ReconnectInterval,
		DialTimeout:       cfg.DialTimeout,
	}, logger.Named("connection"))
}

func provideStore(id domain.IdentityProvider, profiles domain.ProfileFetcher, h *store.History, logger *zap.Logger) *conversation.Store {
	return conversation.New(id, profiles, h, logger.Named("conversation"))
}

func provideService(m *connection.Manager, s *conversation.Store, id domain.IdentityProvider, ids *protocol.IDGenerator, clk clock.Clock, logger *zap.Logger) *service.MessageService {
	return service.NewMessageService(m, s, id, ids, clk, logger.Named("service"))
}

func providePresence(m *connection.Manager, s *conversation.Store, id domain.IdentityProvider, ids *protocol.IDGenerator, clk clock.Clock, logger *zap.Logger) *presence.Registry {
	return presence.New(m, s, id, ids, clk, logger.Named("presence"))
}

// Toast is a notification the server asked to surface immediately.
type Toast struct {
	Title   string
	Content string
}

// toasts forwards system toasts to whoever the client hands them to.
type toasts struct {
	fn atomic.Pointer[func(Toast)]
}

func newToasts() *toasts { return &toasts{} }

func (t *toasts) emit(title, content string) {
	if fn := t.fn.Load(); fn != nil {
		(*fn)(Toast{Title: title, Content: content})
	}
}

func provideSystem(t *toasts, logger *zap.Logger) *notify.System {
	return notify.NewSystem(t.emit, logger.Named("notify"))
}

func provideFeed(h *store.History, logger *zap.Logger) *notify.Feed {
	return notify.NewFeed(h, logger.Named("feed"))
}

func provideInbox(s *conversation.Store, sys *notify.System) *conversation.Inbox {
	return conversation.NewInbox(s, sys)
}

func registerHandlers(d *dispatch.Dispatcher, s *conversation.Store, p *presence.Registry, sys *notify.System, feed *notify.Feed) {
	dispatch.Split(d, dispatch.ChatHandlers{
		Message:  s.HandleChat,
		Feedback: s.HandleFeedback,
	})
	dispatch.On(d, protocol.KindPresence, p.HandlePresence)
	dispatch.On(d, protocol.KindNotification, sys.HandleNotification)
	dispatch.On(d, protocol.KindSystem, sys.HandleSystem)
	for _, k := range protocol.Kinds() {
		if k.Social() {
			dispatch.On(d, k, feed.Handle)
		}
	}
}

func registerLifecycle(lc fx.Lifecycle, m *connection.Manager, s *conversation.Store, feed *notify.Feed, b store.Backend, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Load(ctx); err != nil {
				return fmt.Errorf("load conversations: %w", err)
			}
			if err := feed.Load(ctx); err != nil {
				return fmt.Errorf("load social feed: %w", err)
			}
			// the manager keeps retrying on its own; start must not block on the network
			go func() {
				if err := m.Connect(context.Background()); err != nil {
					logger.Warn("initial_connect_failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Disconnect()
			s.Wait()
			return b.Close()
		},
	})
}
