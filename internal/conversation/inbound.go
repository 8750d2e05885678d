package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/metrics"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// RouteInbound returns the conversation an inbound chat belongs to.
// Our own messages (echoes) go to the recipient's thread. Anonymous messages
// from others go to a separate "<from>_anonymous" thread, but echoes of our
// own anonymous sends stay in the real-identity thread with the recipient.
func RouteInbound(local string, c protocol.Chat) (conversationID string, isSelf bool) {
	isSelf = c.From == local
	switch {
	case isSelf:
		return c.To, true
	case c.Anonymous:
		return domain.AnonymousConversationID(c.From), false
	default:
		return c.From, false
	}
}

// HandleChat appends an inbound message. A message whose id is already in
// the target conversation is dropped.
func (s *Store) HandleChat(ctx context.Context, c protocol.Chat) {
	local := ""
	if s.identity != nil {
		local = s.identity.Identity()
	}
	convID, isSelf := RouteInbound(local, c)
	if convID == "" || c.ID == "" {
		s.logger.Warn("chat_dropped", zap.String("id", c.ID), zap.String("from", c.From))
		return
	}

	s.mu.Lock()
	conv, created := s.getOrCreateLocked(convID)
	if conv.FindMessage(c.ID) >= 0 {
		s.mu.Unlock()
		s.logger.Debug("chat_duplicate", zap.String("conversation", convID), zap.String("id", c.ID))
		return
	}
	appendLocked(conv, domain.Message{
		ID:        c.ID,
		Content:   c.Content,
		Timestamp: c.Timestamp,
		IsSelf:    isSelf,
		Status:    protocol.StatusSuccess,
		From:      c.From,
		To:        c.To,
		Kind:      protocol.KindChat,
		Method:    c.Method,
		Anonymous: c.Anonymous,
		Avatar:    c.Avatar,
	})
	if conv.IsAnonymous && c.Avatar != "" {
		conv.UserInfo = &domain.Profile{Nickname: domain.AnonymousNickname, Avatar: c.Avatar}
	}
	if !isSelf && s.focused != convID {
		conv.UnreadCount++
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	events := []Event{{Type: MessageAdded, ConversationID: convID, MessageID: c.ID}}
	if created {
		events = append([]Event{{Type: ConversationUpdated, ConversationID: convID}}, events...)
	}
	s.emit(events...)
	s.EnsureProfile(convID)
}

// ResolveFeedbackTarget picks the conversation holding the acknowledged
// message. It defaults to the real-identity thread and switches to the
// anonymous thread only when that thread exists and already holds the id.
func (s *Store) ResolveFeedbackTarget(fb protocol.Feedback) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedbackTargetLocked(fb)
}

func (s *Store) feedbackTargetLocked(fb protocol.Feedback) string {
	target := fb.OriginalTo
	if fb.Anonymous {
		anon := domain.AnonymousConversationID(fb.OriginalTo)
		if c, ok := s.convs[anon]; ok && c.FindMessage(fb.ID) >= 0 {
			target = anon
		}
	}
	return target
}

// HandleFeedback applies a server verdict to a message we sent. Unknown ids
// and messages that already left Sending are ignored.
func (s *Store) HandleFeedback(ctx context.Context, fb protocol.Feedback) {
	if !fb.Status.Terminal() {
		s.logger.Debug("feedback_ignored", zap.String("id", fb.ID), zap.String("status", string(fb.Status)))
		return
	}

	s.mu.Lock()
	target := s.feedbackTargetLocked(fb)
	c, ok := s.convs[target]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("feedback_unknown_conversation", zap.String("conversation", target), zap.String("id", fb.ID))
		return
	}
	i := c.FindMessage(fb.ID)
	if i < 0 || c.Messages[i].Status != protocol.StatusSending {
		s.mu.Unlock()
		s.logger.Debug("feedback_stale", zap.String("conversation", target), zap.String("id", fb.ID))
		return
	}
	c.Messages[i].Status = fb.Status
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.Feedback.WithLabelValues(string(fb.Status)).Inc()
	s.save(ctx, snap)

	events := []Event{{Type: StatusChanged, ConversationID: target, MessageID: fb.ID, Status: fb.Status}}
	if fb.Status == protocol.StatusBlocked {
		events = append(events, Event{
			Type:           Notice,
			ConversationID: target,
			MessageID:      fb.ID,
			Status:         fb.Status,
			Text:           "消息已发出，但被对方拒收了",
		})
	}
	s.emit(events...)
}
