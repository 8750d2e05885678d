package conversation

import "github.com/changyunjeff/campus-mp/internal/protocol"

type EventType int

const (
	ConversationUpdated EventType = iota
	MessageAdded
	StatusChanged
	ConversationDeleted
	// Notice carries user-facing text, e.g. a blocked delivery.
	Notice
)

func (t EventType) String() string {
	switch t {
	case ConversationUpdated:
		return "conversation_updated"
	case MessageAdded:
		return "message_added"
	case StatusChanged:
		return "status_changed"
	case ConversationDeleted:
		return "conversation_deleted"
	case Notice:
		return "notice"
	}
	return "unknown"
}

// Event is published after a mutation has been applied.
type Event struct {
	Type           EventType
	ConversationID string
	MessageID      string
	Status         protocol.Status
	Text           string
}

type subscribers struct {
	next uint64
	fns  map[uint64]func(Event)
}

// Subscribe registers fn for every future event and returns a function that
// removes it. fn runs synchronously after the store lock is released.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs.fns == nil {
		s.subs.fns = make(map[uint64]func(Event))
	}
	s.subs.next++
	id := s.subs.next
	s.subs.fns[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs.fns, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs.fns))
	for _, fn := range s.subs.fns {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}
