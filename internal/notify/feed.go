package notify

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/store"
)

// Activity is one like, favorite, follow, comment or mention.
type Activity struct {
	ID        string        `cbor:"id"`
	Kind      protocol.Kind `cbor:"type"`
	From      string        `cbor:"from"`
	Content   string        `cbor:"content,omitempty"`
	PostID    string        `cbor:"postId,omitempty"`
	CommentID string        `cbor:"commentId,omitempty"`
	Avatar    string        `cbor:"avatar,omitempty"`
	Timestamp int64         `cbor:"timestamp"`
	Read      bool          `cbor:"read,omitempty"`
}

// Feed collects social notifications across kinds, newest first. With a
// history it is flushed to the social_feed namespace after every change,
// one entry per kind.
type Feed struct {
	history *store.History
	logger  *zap.Logger

	mu      sync.Mutex
	items   []Activity
	version uint64

	saveMu sync.Mutex
	saved  uint64
}

// NewFeed builds an empty feed. history may be nil to keep it in memory only.
func NewFeed(history *store.History, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{history: history, logger: logger}
}

// Load replaces the feed with what was last saved.
func (f *Feed) Load(ctx context.Context) error {
	if f.history == nil {
		return nil
	}
	entries, err := store.LoadEntries[[]Activity](ctx, f.history, store.FeedNamespace)
	if err != nil {
		return err
	}
	var items []Activity
	seen := make(map[activityKey]struct{})
	for _, list := range entries {
		for _, it := range list {
			k := activityKey{it.Kind, it.ID}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			items = append(items, it)
		}
	}
	sortNewestFirst(items)

	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
	f.logger.Info("feed_loaded", zap.Int("count", len(items)))
	return nil
}

// Handle stores an inbound social envelope. Duplicate ids are ignored.
func (f *Feed) Handle(ctx context.Context, s protocol.Social) {
	f.mu.Lock()
	for _, it := range f.items {
		if it.ID == s.ID && it.Kind == s.Type {
			f.mu.Unlock()
			return
		}
	}
	f.items = append(f.items, Activity{
		ID: s.ID, Kind: s.Type, From: s.From, Content: s.Content,
		PostID: s.PostID, CommentID: s.CommentID, Avatar: s.Avatar, Timestamp: s.Timestamp,
	})
	sortNewestFirst(f.items)
	v := f.snapshotLocked()
	f.mu.Unlock()
	f.save(ctx, v)
}

// List returns activities of the given kinds, or all when none are given.
func (f *Feed) List(kinds ...protocol.Kind) []Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Activity, 0, len(f.items))
	for _, it := range f.items {
		if matches(it.Kind, kinds) {
			out = append(out, it)
		}
	}
	return out
}

// Unread counts unread activities of the given kinds, or all when none are given.
func (f *Feed) Unread(kinds ...protocol.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if !it.Read && matches(it.Kind, kinds) {
			n++
		}
	}
	return n
}

func (f *Feed) MarkRead(ctx context.Context, id string) bool {
	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			v := f.snapshotLocked()
			f.mu.Unlock()
			f.save(ctx, v)
			return true
		}
	}
	f.mu.Unlock()
	return false
}

// MarkAllRead marks activities of the given kinds, or all when none are given.
func (f *Feed) MarkAllRead(ctx context.Context, kinds ...protocol.Kind) {
	f.mu.Lock()
	changed := false
	for i := range f.items {
		if !f.items[i].Read && matches(f.items[i].Kind, kinds) {
			f.items[i].Read = true
			changed = true
		}
	}
	if !changed {
		f.mu.Unlock()
		return
	}
	v := f.snapshotLocked()
	f.mu.Unlock()
	f.save(ctx, v)
}

func (f *Feed) Delete(ctx context.Context, id string) bool {
	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			v := f.snapshotLocked()
			f.mu.Unlock()
			f.save(ctx, v)
			return true
		}
	}
	f.mu.Unlock()
	return false
}

type activityKey struct {
	kind protocol.Kind
	id   string
}

type feedSnapshot struct {
	version uint64
	byKind  map[string][]Activity
}

func (f *Feed) snapshotLocked() feedSnapshot {
	f.version++
	byKind := make(map[string][]Activity)
	for _, it := range f.items {
		k := it.Kind.String()
		byKind[k] = append(byKind[k], it)
	}
	return feedSnapshot{version: f.version, byKind: byKind}
}

// save writes v unless a newer snapshot is already on disk. Failures are
// logged; the in-memory feed stays authoritative.
func (f *Feed) save(ctx context.Context, v feedSnapshot) {
	if f.history == nil {
		return
	}
	f.saveMu.Lock()
	defer f.saveMu.Unlock()
	if v.version <= f.saved {
		return
	}
	if err := store.SaveEntries(context.WithoutCancel(ctx), f.history, store.FeedNamespace, v.byKind); err != nil {
		f.logger.Error("feed_save_failed", zap.Error(err))
		return
	}
	f.saved = v.version
}

func sortNewestFirst(items []Activity) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp > items[j].Timestamp })
}

func matches(k protocol.Kind, kinds []protocol.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
