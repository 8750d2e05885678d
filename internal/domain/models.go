package domain

import (
	"strings"

	"github.com/changyunjeff/campus-mp/internal/protocol"
)

// AnonymousSuffix distinguishes a received anonymous thread from the real-identity
// thread with the same participant.
const AnonymousSuffix = "_anonymous"

// SystemConversationID is the id of the synthetic system entry in the inbox.
const SystemConversationID = "system"

// AnonymousNickname is the display name for anonymous threads.
const AnonymousNickname = "匿名用户"

// AnonymousConversationID returns the anonymous thread id for a participant.
func AnonymousConversationID(participant string) string {
	return participant + AnonymousSuffix
}

// SplitConversationID returns the real participant behind a conversation id and
// whether the id names an anonymous thread.
func SplitConversationID(id string) (participant string, anonymous bool) {
	if p, ok := strings.CutSuffix(id, AnonymousSuffix); ok && p != "" {
		return p, true
	}
	return id, false
}

// Profile is the display metadata of a counterpart.
type Profile struct {
	ID       string `json:"openid" cbor:"id"`
	Nickname string `json:"nickname" cbor:"nickname"`
	Avatar   string `json:"avatar" cbor:"avatar"`
}

// Message is one entry in a conversation's history.
type Message struct {
	ID        string               `cbor:"id"`
	Content   string               `cbor:"content"`
	Timestamp int64                `cbor:"timestamp"`
	IsSelf    bool                 `cbor:"isSelf"`
	Status    protocol.Status      `cbor:"status,omitempty"`
	From      string               `cbor:"from"`
	To        string               `cbor:"to"`
	Kind      protocol.Kind        `cbor:"type"`
	Method    protocol.MethodFlags `cbor:"method"`
	Anonymous bool                 `cbor:"anonymous,omitempty"`
	Avatar    string               `cbor:"avatar,omitempty"`
}

// Conversation is the aggregate for one thread.
type Conversation struct {
	ID              string
	ParticipantID   string
	IsAnonymous     bool
	Messages        []Message
	UnreadCount     uint32
	LastMessage     string
	LastMessageTime int64
	IsOnline        bool
	IsPinned        bool
	IsMuted         bool
	UserInfo        *Profile
}

// DisplayUnread is the badge count shown for the conversation; muted threads show none.
func (c Conversation) DisplayUnread() uint32 {
	if c.IsMuted {
		return 0
	}
	return c.UnreadCount
}

// FindMessage returns the index of the message with the given id, or -1.
func (c Conversation) FindMessage(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the owning store.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	if c.UserInfo != nil {
		info := *c.UserInfo
		out.UserInfo = &info
	}
	return out
}
