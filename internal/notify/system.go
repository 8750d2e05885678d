// Package notify keeps the feature stores fed by non-chat envelopes: system
// notifications and the social activity feed. Neither is persisted.
package notify

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/protocol"
)

const defaultToastTitle = "新消息"

type Notification struct {
	ID        string
	Kind      protocol.Kind
	Title     string
	Content   string
	Timestamp int64
	Read      bool
}

// System stores notifications newest first.
type System struct {
	mu    sync.Mutex
	items []Notification

	toast  func(title, content string)
	logger *zap.Logger
}

// NewSystem builds the store. toast, if non-nil, is called for
// notifications that ask to be shown immediately.
func NewSystem(toast func(title, content string), logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{toast: toast, logger: logger}
}

// Add stores n as unread. Returns false if a notification with the same id exists.
func (s *System) Add(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID != "" {
		for _, it := range s.items {
			if it.ID == n.ID {
				return false
			}
		}
	}
	n.Read = false
	s.items = append([]Notification{n}, s.items...)
	return true
}

func (s *System) HandleNotification(_ context.Context, n protocol.Notification) {
	if !s.Add(Notification{ID: n.ID, Kind: protocol.KindNotification, Title: n.Title, Content: n.Content, Timestamp: n.Timestamp}) {
		return
	}
	s.logger.Debug("notification_received", zap.String("id", n.ID))
	if n.ShowToast && s.toast != nil {
		title := n.Title
		if title == "" {
			title = defaultToastTitle
		}
		s.toast(title, n.Content)
	}
}

func (s *System) HandleSystem(_ context.Context, m protocol.SystemMessage) {
	s.Add(Notification{ID: m.ID, Kind: protocol.KindSystem, Title: m.Title, Content: m.Content, Timestamp: m.Timestamp})
}

func (s *System) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Read = true
			return true
		}
	}
	return false
}

func (s *System) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].Read = true
	}
}

func (s *System) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *System) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

func (s *System) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Latest returns up to n notifications, newest timestamp first.
func (s *System) Latest(n int) []Notification {
	s.mu.Lock()
	out := append([]Notification(nil), s.items...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary feeds the system entry of the inbox.
func (s *System) Summary() (latest string, latestTime int64, unread uint32) {
	if top := s.Latest(1); len(top) == 1 {
		latest, latestTime = top[0].Content, top[0].Timestamp
	}
	return latest, latestTime, uint32(s.UnreadCount())
}
