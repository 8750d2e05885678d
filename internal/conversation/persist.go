package conversation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/store"
)

// Load rebuilds all conversations from the cache, replacing in-memory
// state. Call it once at startup, before the connection opens.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	snap, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	convs := Rehydrate(snap)

	s.mu.Lock()
	s.convs = convs
	s.mu.Unlock()

	s.logger.Info("conversations_loaded", zap.Int("count", len(convs)))
	for id := range convs {
		s.EnsureProfile(id)
	}
	return nil
}

// Rehydrate reconstructs aggregates from a snapshot: messages are
// deduplicated by id, sorted by timestamp, and default to success when no
// status was stored. This is the only place messages are sorted.
func Rehydrate(snap store.Snapshot) map[string]*domain.Conversation {
	out := make(map[string]*domain.Conversation, len(snap.History))
	for id, msgs := range snap.History {
		c := newConversation(id)

		seen := make(map[string]struct{}, len(msgs))
		for _, m := range msgs {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			if m.Status == "" {
				m.Status = protocol.StatusSuccess
			}
			c.Messages = append(c.Messages, m)
		}
		sort.SliceStable(c.Messages, func(i, j int) bool {
			return c.Messages[i].Timestamp < c.Messages[j].Timestamp
		})
		if n := len(c.Messages); n > 0 {
			c.LastMessage = c.Messages[n-1].Content
			c.LastMessageTime = c.Messages[n-1].Timestamp
		}

		if meta, ok := snap.Meta[id]; ok {
			c.IsPinned = meta.Pinned
			c.IsMuted = meta.Muted
			c.UnreadCount = meta.Unread
			if meta.UserInfo != nil && !c.IsAnonymous {
				info := *meta.UserInfo
				c.UserInfo = &info
			}
		}
		out[id] = c
	}
	return out
}

// snapshotLocked copies the persistent part of the state and bumps the version.
func (s *Store) snapshotLocked() versioned {
	s.version++
	snap := store.Snapshot{
		History: make(map[string][]domain.Message, len(s.convs)),
		Meta:    make(map[string]store.ConversationMeta, len(s.convs)),
	}
	for id, c := range s.convs {
		snap.History[id] = append([]domain.Message(nil), c.Messages...)
		meta := store.ConversationMeta{Pinned: c.IsPinned, Muted: c.IsMuted, Unread: c.UnreadCount}
		if c.UserInfo != nil && !c.IsAnonymous {
			info := *c.UserInfo
			meta.UserInfo = &info
		}
		if meta != (store.ConversationMeta{}) {
			snap.Meta[id] = meta
		}
	}
	return versioned{version: s.version, snap: snap}
}

type versioned struct {
	version uint64
	snap    store.Snapshot
}

// save writes a snapshot unless a newer one has already been written.
// Failures are logged; the in-memory state stays authoritative.
func (s *Store) save(ctx context.Context, v versioned) {
	if s.persist == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if v.version <= s.saved {
		return
	}
	if err := s.persist.Save(context.WithoutCancel(ctx), v.snap); err != nil {
		s.logger.Error("history_save_failed", zap.Error(err))
		return
	}
	s.saved = v.version
}
