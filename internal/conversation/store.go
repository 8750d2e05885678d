// Package conversation is the single source of truth for private
// conversations: inbound routing, delivery-status reconciliation, unread
// bookkeeping, and persistence to the local cache.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/store"
)

const profileFetchTimeout = 10 * time.Second

// Persister is the durable cache boundary. It is read once at startup and
// written after every mutation.
type Persister interface {
	Load(ctx context.Context) (store.Snapshot, error)
	Save(ctx context.Context, snap store.Snapshot) error
}

type Store struct {
	identity domain.IdentityProvider
	profiles domain.ProfileFetcher
	persist  Persister
	logger   *zap.Logger

	mu       sync.Mutex
	convs    map[string]*domain.Conversation
	focused  string
	fetching map[string]bool
	version  uint64

	saveMu sync.Mutex
	saved  uint64
	subMu  sync.Mutex
	subs   subscribers
	bg     sync.WaitGroup
}

// New builds an empty store. profiles and persist may be nil.
func New(identity domain.IdentityProvider, profiles domain.ProfileFetcher, persist Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		identity: identity,
		profiles: profiles,
		persist:  persist,
		logger:   logger,
		convs:    make(map[string]*domain.Conversation),
		fetching: make(map[string]bool),
	}
}

func newConversation(id string) *domain.Conversation {
	participant, anonymous := domain.SplitConversationID(id)
	c := &domain.Conversation{ID: id, ParticipantID: participant, IsAnonymous: anonymous}
	if anonymous {
		c.UserInfo = &domain.Profile{Nickname: domain.AnonymousNickname}
	}
	return c
}

// getOrCreateLocked returns the conversation, creating it on first reference.
func (s *Store) getOrCreateLocked(id string) (*domain.Conversation, bool) {
	if c, ok := s.convs[id]; ok {
		return c, false
	}
	c := newConversation(id)
	s.convs[id] = c
	return c, true
}

func appendLocked(c *domain.Conversation, m domain.Message) {
	c.Messages = append(c.Messages, m)
	c.LastMessage = m.Content
	c.LastMessageTime = m.Timestamp
}

// AppendOutgoing inserts a locally authored message, creating the
// conversation if needed.
func (s *Store) AppendOutgoing(ctx context.Context, conversationID string, m domain.Message) error {
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation id", domain.ErrValidation)
	}
	s.mu.Lock()
	c, created := s.getOrCreateLocked(conversationID)
	if c.FindMessage(m.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: duplicate message id %s", domain.ErrValidation, m.ID)
	}
	m.IsSelf = true
	appendLocked(c, m)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	events := []Event{{Type: MessageAdded, ConversationID: conversationID, MessageID: m.ID, Status: m.Status}}
	if created {
		events = append([]Event{{Type: ConversationUpdated, ConversationID: conversationID}}, events...)
	}
	s.emit(events...)
	return nil
}

// UpdateStatus moves a Sending message to a terminal status.
func (s *Store) UpdateStatus(ctx context.Context, conversationID, messageID string, status protocol.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %q is not a terminal status", domain.ErrInvalidState, status)
	}
	s.mu.Lock()
	m, err := s.messageLocked(conversationID, messageID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if m.Status != protocol.StatusSending {
		s.mu.Unlock()
		return fmt.Errorf("%w: message %s is %s", domain.ErrInvalidState, messageID, m.Status)
	}
	m.Status = status
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.emit(Event{Type: StatusChanged, ConversationID: conversationID, MessageID: messageID, Status: status})
	return nil
}

// MarkResending moves a Failed or Blocked message back to Sending and
// returns a copy for retransmission.
func (s *Store) MarkResending(ctx context.Context, conversationID, messageID string) (domain.Message, error) {
	s.mu.Lock()
	m, err := s.messageLocked(conversationID, messageID)
	if err != nil {
		s.mu.Unlock()
		return domain.Message{}, err
	}
	if !m.Status.Resendable() {
		s.mu.Unlock()
		return domain.Message{}, fmt.Errorf("%w: message %s is %s", domain.ErrInvalidState, messageID, m.Status)
	}
	m.Status = protocol.StatusSending
	out := *m
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.emit(Event{Type: StatusChanged, ConversationID: conversationID, MessageID: messageID, Status: protocol.StatusSending})
	return out, nil
}

func (s *Store) messageLocked(conversationID, messageID string) (*domain.Message, error) {
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	i := c.FindMessage(messageID)
	if i < 0 {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	return &c.Messages[i], nil
}

// MarkRead zeroes the unread counter. Message-level state is untouched.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	c, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	if c.UnreadCount == 0 {
		s.mu.Unlock()
		return nil
	}
	c.UnreadCount = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.emit(Event{Type: ConversationUpdated, ConversationID: conversationID})
	return nil
}

// SetFocused records the conversation currently on screen; inbound messages
// there do not count as unread. An empty id clears focus.
func (s *Store) SetFocused(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.focused = conversationID
	_, exists := s.convs[conversationID]
	s.mu.Unlock()
	if conversationID == "" || !exists {
		return nil
	}
	return s.MarkRead(ctx, conversationID)
}

func (s *Store) Focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// TogglePin flips the pin flag and returns the new value.
func (s *Store) TogglePin(ctx context.Context, conversationID string) (bool, error) {
	return s.toggle(ctx, conversationID, func(c *domain.Conversation) bool {
		c.IsPinned = !c.IsPinned
		return c.IsPinned
	})
}

// ToggleMute flips the mute flag and returns the new value.
func (s *Store) ToggleMute(ctx context.Context, conversationID string) (bool, error) {
	return s.toggle(ctx, conversationID, func(c *domain.Conversation) bool {
		c.IsMuted = !c.IsMuted
		return c.IsMuted
	})
}

func (s *Store) toggle(ctx context.Context, conversationID string, flip func(*domain.Conversation) bool) (bool, error) {
	s.mu.Lock()
	c, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	v := flip(c)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.emit(Event{Type: ConversationUpdated, ConversationID: conversationID})
	return v, nil
}

// Delete removes a conversation and its history.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if _, ok := s.convs[conversationID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	delete(s.convs, conversationID)
	if s.focused == conversationID {
		s.focused = ""
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.emit(Event{Type: ConversationDeleted, ConversationID: conversationID})
	return nil
}

// SetUserInfo patches display metadata. Anonymous threads keep their placeholder.
func (s *Store) SetUserInfo(ctx context.Context, conversationID string, p domain.Profile) error {
	s.mu.Lock()
	c, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	if c.IsAnonymous {
		s.mu.Unlock()
		return nil
	}
	c.UserInfo = &p
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, snap)
	s.emit(Event{Type: ConversationUpdated, ConversationID: conversationID})
	return nil
}

// SetOnline updates presence on the real-identity conversation with the
// participant. Anonymous threads never show presence.
func (s *Store) SetOnline(participantID string, online bool) {
	s.mu.Lock()
	c, ok := s.convs[participantID]
	if !ok || c.IsAnonymous || c.IsOnline == online {
		s.mu.Unlock()
		return
	}
	c.IsOnline = online
	s.mu.Unlock()
	s.emit(Event{Type: ConversationUpdated, ConversationID: participantID})
}

// Get returns a copy of one conversation.
func (s *Store) Get(conversationID string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return domain.Conversation{}, false
	}
	return c.Clone(), true
}

// List returns copies of all conversations in display order.
func (s *Store) List() []domain.Conversation {
	s.mu.Lock()
	out := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()
	SortConversations(out)
	return out
}

// TotalUnread sums unread counts of conversations that are not muted.
func (s *Store) TotalUnread() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint32
	for _, c := range s.convs {
		n += c.DisplayUnread()
	}
	return n
}

// SortConversations orders pinned before unpinned, then newest first.
func SortConversations(cs []domain.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool { return displayLess(&cs[i], &cs[j]) })
}

func displayLess(a, b *domain.Conversation) bool {
	if a.IsPinned != b.IsPinned {
		return a.IsPinned
	}
	if a.LastMessageTime != b.LastMessageTime {
		return a.LastMessageTime > b.LastMessageTime
	}
	return a.ID < b.ID
}

// EnsureProfile fetches counterpart metadata in the background if the
// conversation has none yet. It never blocks the caller.
func (s *Store) EnsureProfile(conversationID string) {
	if s.profiles == nil {
		return
	}
	s.mu.Lock()
	c, ok := s.convs[conversationID]
	if !ok || c.IsAnonymous || c.UserInfo != nil || s.fetching[conversationID] {
		s.mu.Unlock()
		return
	}
	s.fetching[conversationID] = true
	participant := c.ParticipantID
	s.mu.Unlock()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
		defer cancel()

		p, err := s.profiles.FetchProfile(ctx, participant)

		s.mu.Lock()
		delete(s.fetching, conversationID)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("profile_fetch_failed", zap.String("user", participant), zap.Error(err))
			return
		}
		if err := s.SetUserInfo(ctx, conversationID, p); err != nil {
			s.logger.Debug("profile_dropped", zap.String("conversation", conversationID), zap.Error(err))
		}
	}()
}

// Wait blocks until background profile fetches have finished.
func (s *Store) Wait() { s.bg.Wait() }
