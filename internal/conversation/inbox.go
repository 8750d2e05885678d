package conversation

import (
	"sort"

	"github.com/changyunjeff/campus-mp/internal/domain"
)

const (
	systemDisplayName  = "系统通知"
	systemEmptyMessage = "暂无系统通知"
	defaultNamePrefix  = "用户"
)

// SystemSource summarizes the system notification store for the inbox.
type SystemSource interface {
	Summary() (latest string, latestTime int64, unread uint32)
}

// Item is one row of the message home screen.
type Item struct {
	domain.Conversation
	System        bool
	DisplayName   string
	DisplayAvatar string
	DisplayUnread uint32
}

// Inbox merges private conversations with the system notifications entry.
type Inbox struct {
	store  *Store
	system SystemSource
}

func NewInbox(s *Store, system SystemSource) *Inbox {
	return &Inbox{store: s, system: system}
}

// Items returns the system entry and every private conversation, pinned
// first and then newest first. The system entry is never pinned or muted.
func (i *Inbox) Items() []Item {
	convs := i.store.List()
	items := make([]Item, 0, len(convs)+1)
	items = append(items, i.systemItem())
	for _, c := range convs {
		name := defaultNamePrefix + c.ParticipantID
		avatar := ""
		if c.UserInfo != nil {
			if c.UserInfo.Nickname != "" {
				name = c.UserInfo.Nickname
			}
			avatar = c.UserInfo.Avatar
		}
		items = append(items, Item{
			Conversation:  c,
			DisplayName:   name,
			DisplayAvatar: avatar,
			DisplayUnread: c.DisplayUnread(),
		})
	}
	sort.SliceStable(items, func(a, b int) bool {
		return displayLess(&items[a].Conversation, &items[b].Conversation)
	})
	return items
}

func (i *Inbox) systemItem() Item {
	c := domain.Conversation{ID: domain.SystemConversationID, LastMessage: systemEmptyMessage}
	if i.system != nil {
		latest, at, unread := i.system.Summary()
		if latest != "" {
			c.LastMessage = latest
		}
		c.LastMessageTime = at
		c.UnreadCount = unread
	}
	return Item{Conversation: c, System: true, DisplayName: systemDisplayName, DisplayUnread: c.UnreadCount}
}

// TotalUnread is private unread (muted excluded) plus system unread.
func (i *Inbox) TotalUnread() uint32 {
	n := i.store.TotalUnread()
	if i.system != nil {
		_, _, unread := i.system.Summary()
		n += unread
	}
	return n
}
