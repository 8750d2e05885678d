// Package store holds the durable cache used to rehydrate conversations
// across restarts. A namespace is always read whole at startup and replaced
// whole on flush; nothing reads it back mid-session.
package store

import "context"

// Namespaces written by the conversation store and the social feed.
const (
	HistoryNamespace = "message_history"
	MetaNamespace    = "conversation_meta"
	FeedNamespace    = "social_feed"
)

// Backend is a namespaced key-value cache.
type Backend interface {
	GetAll(ctx context.Context, namespace string) (map[string][]byte, error)
	SetAll(ctx context.Context, namespace string, entries map[string][]byte) error
	Close() error
}
