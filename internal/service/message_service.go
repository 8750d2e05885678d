// Package service holds the outbound half of the messaging core: optimistic
// chat sends with delivery tracking, resends, and social notifications.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/conversation"
	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// Sender writes envelopes to the relay. connection.Manager implements it.
type Sender interface {
	Send(ctx context.Context, p protocol.Payload) error
}

type MessageService struct {
	sender   Sender
	store    *conversation.Store
	identity domain.IdentityProvider
	ids      *protocol.IDGenerator
	clock    clock.Clock
	logger   *zap.Logger
}

func NewMessageService(
	sender Sender,
	store *conversation.Store,
	identity domain.IdentityProvider,
	ids *protocol.IDGenerator,
	clk clock.Clock,
	logger *zap.Logger,
) *MessageService {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		sender:   sender,
		store:    store,
		identity: identity,
		ids:      ids,
		clock:    clk,
		logger:   logger,
	}
}

type ChatInput struct {
	ID        string
	To        string
	Content   string
	Anonymous bool
	// ConversationID overrides the thread the optimistic copy lands in,
	// e.g. "B_anonymous" when replying inside an anonymous thread.
	ConversationID string
	Avatar         string
}

// SendChat appends an optimistic Sending copy and writes it to the relay.
// Only validation errors are returned; a failed write marks the message Failed.
func (s *MessageService) SendChat(ctx context.Context, in ChatInput) (domain.Message, error) {
	from := s.local()
	switch {
	case from == "":
		return domain.Message{}, fmt.Errorf("%w: no local identity", domain.ErrValidation)
	case strings.TrimSpace(in.To) == "":
		return domain.Message{}, fmt.Errorf("%w: empty recipient", domain.ErrValidation)
	case strings.TrimSpace(in.Content) == "":
		return domain.Message{}, fmt.Errorf("%w: empty content", domain.ErrValidation)
	}

	id := in.ID
	if id == "" {
		id = s.ids.Next()
	}
	convID := in.ConversationID
	if convID == "" {
		convID = in.To
	}
	msg := domain.Message{
		ID:        id,
		Content:   in.Content,
		Timestamp: s.clock.Now().UnixMilli(),
		IsSelf:    true,
		Status:    protocol.StatusSending,
		From:      from,
		To:        in.To,
		Kind:      protocol.KindChat,
		Method:    protocol.ChatFlags,
		Anonymous: in.Anonymous,
		Avatar:    in.Avatar,
	}
	if err := s.store.AppendOutgoing(ctx, convID, msg); err != nil {
		return domain.Message{}, err
	}
	s.store.EnsureProfile(convID)

	s.transmit(ctx, convID, msg)
	if cur, ok := s.find(convID, id); ok {
		msg = cur
	}
	return msg, nil
}

// ResendMessage retransmits a Failed or Blocked message under its original id.
func (s *MessageService) ResendMessage(ctx context.Context, conversationID, messageID string) error {
	msg, err := s.store.MarkResending(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	s.logger.Info("message_resend", zap.String("conversation", conversationID), zap.String("id", messageID))
	s.transmit(ctx, conversationID, msg)
	return nil
}

func (s *MessageService) transmit(ctx context.Context, convID string, m domain.Message) {
	err := s.sender.Send(ctx, protocol.Chat{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		From:      m.From,
		To:        m.To,
		Content:   m.Content,
		Anonymous: m.Anonymous,
		Avatar:    m.Avatar,
		Method:    protocol.ChatFlags,
	})
	if err == nil {
		return
	}
	s.logger.Warn("message_send_failed", zap.String("conversation", convID), zap.String("id", m.ID), zap.Error(err))
	if uerr := s.store.UpdateStatus(ctx, convID, m.ID, protocol.StatusFailed); uerr != nil {
		// feedback may already have settled it
		s.logger.Debug("message_fail_skipped", zap.String("id", m.ID), zap.Error(uerr))
	}
}

func (s *MessageService) find(convID, id string) (domain.Message, bool) {
	c, ok := s.store.Get(convID)
	if !ok {
		return domain.Message{}, false
	}
	if i := c.FindMessage(id); i >= 0 {
		return c.Messages[i], true
	}
	return domain.Message{}, false
}

func (s *MessageService) local() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.Identity()
}
