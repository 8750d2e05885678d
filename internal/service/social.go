package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// SocialInput describes a like, favorite, follow, comment or mention sent to
// the owner of some content.
type SocialInput struct {
	To        string
	Content   string
	PostID    string
	CommentID string
	Avatar    string
}

func (s *MessageService) SendLike(ctx context.Context, in SocialInput) error {
	return s.sendSocial(ctx, protocol.KindLike, in)
}

func (s *MessageService) SendFavorite(ctx context.Context, in SocialInput) error {
	return s.sendSocial(ctx, protocol.KindFavorite, in)
}

func (s *MessageService) SendFollow(ctx context.Context, in SocialInput) error {
	return s.sendSocial(ctx, protocol.KindFollow, in)
}

func (s *MessageService) SendComment(ctx context.Context, in SocialInput) error {
	return s.sendSocial(ctx, protocol.KindComment, in)
}

func (s *MessageService) SendMention(ctx context.Context, in SocialInput) error {
	return s.sendSocial(ctx, protocol.KindMention, in)
}

// sendSocial is fire and forget: transport errors are logged, never returned.
func (s *MessageService) sendSocial(ctx context.Context, kind protocol.Kind, in SocialInput) error {
	from := s.local()
	if from == "" {
		return fmt.Errorf("%w: no local identity", domain.ErrValidation)
	}
	if strings.TrimSpace(in.To) == "" {
		return fmt.Errorf("%w: empty recipient", domain.ErrValidation)
	}
	p := protocol.Social{
		Type:      kind,
		ID:        s.ids.Next(),
		Timestamp: s.clock.Now().UnixMilli(),
		From:      from,
		To:        in.To,
		Content:   in.Content,
		PostID:    in.PostID,
		CommentID: in.CommentID,
		Avatar:    in.Avatar,
	}
	if err := s.sender.Send(ctx, p); err != nil {
		s.logger.Warn("social_send_failed", zap.Stringer("kind", kind), zap.String("to", in.To), zap.Error(err))
	}
	return nil
}
