package app

import (
	"go.uber.org/fx"

	"github.com/changyunjeff/campus-mp/internal/connection"
	"github.com/changyunjeff/campus-mp/internal/conversation"
	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/notify"
	"github.com/changyunjeff/campus-mp/internal/presence"
	"github.com/changyunjeff/campus-mp/internal/service"
)

// Client is the surface a UI drives.
type Client struct {
	Identity      domain.IdentityProvider
	Connection    *connection.Manager
	Conversations *conversation.Store
	Inbox         *conversation.Inbox
	Messages      *service.MessageService
	Presence      *presence.Registry
	System        *notify.System
	Feed          *notify.Feed

	toasts *toasts
}

type clientParams struct {
	fx.In

	Identity      domain.IdentityProvider
	Connection    *connection.Manager
	Conversations *conversation.Store
	Inbox         *conversation.Inbox
	Messages      *service.MessageService
	Presence      *presence.Registry
	System        *notify.System
	Feed          *notify.Feed
	Toasts        *toasts
}

func NewClient(p clientParams) *Client {
	return &Client{
		Identity:      p.Identity,
		Connection:    p.Connection,
		Conversations: p.Conversations,
		Inbox:         p.Inbox,
		Messages:      p.Messages,
		Presence:      p.Presence,
		System:        p.System,
		Feed:          p.Feed,
		toasts:        p.Toasts,
	}
}

// OnToast sets the receiver for server toasts, replacing any earlier one.
func (c *Client) OnToast(fn func(Toast)) {
	if fn == nil {
		c.toasts.fn.Store(nil)
		return
	}
	c.toasts.fn.Store(&fn)
}
