package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
)

// Sealer encrypts cache values at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// ConversationMeta is the per-conversation state that is not derivable from history.
type ConversationMeta struct {
	Pinned   bool            `cbor:"pinned,omitempty"`
	Muted    bool            `cbor:"muted,omitempty"`
	Unread   uint32          `cbor:"unread,omitempty"`
	UserInfo *domain.Profile `cbor:"userInfo,omitempty"`
}

// Snapshot is everything the conversation store persists.
type Snapshot struct {
	History map[string][]domain.Message
	Meta    map[string]ConversationMeta
}

// History persists snapshots into a Backend, one CBOR value per conversation.
type History struct {
	backend Backend
	sealer  Sealer
	logger  *zap.Logger
}

// NewHistory wires a backend. sealer may be nil to store plaintext.
func NewHistory(backend Backend, sealer Sealer, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{backend: backend, sealer: sealer, logger: logger}
}

// Load reads both namespaces. Entries that fail to open or decode are
// logged and skipped so one corrupt key does not block startup.
func (h *History) Load(ctx context.Context) (Snapshot, error) {
	hist, err := LoadEntries[[]domain.Message](ctx, h, HistoryNamespace)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load history: %w", err)
	}
	meta, err := LoadEntries[ConversationMeta](ctx, h, MetaNamespace)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load conversation meta: %w", err)
	}
	return Snapshot{History: hist, Meta: meta}, nil
}

// Save replaces both namespaces with the snapshot's contents.
func (h *History) Save(ctx context.Context, snap Snapshot) error {
	if err := SaveEntries(ctx, h, HistoryNamespace, snap.History); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := SaveEntries(ctx, h, MetaNamespace, snap.Meta); err != nil {
		return fmt.Errorf("save conversation meta: %w", err)
	}
	return nil
}

// LoadEntries decodes every entry of a namespace into T. Corrupt entries are
// logged and skipped.
func LoadEntries[T any](ctx context.Context, h *History, namespace string) (map[string]T, error) {
	raw, err := h.backend.GetAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for key, val := range raw {
		var v T
		if err := h.decode(val, &v); err != nil {
			h.logger.Warn("cache_entry_skipped", zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
			continue
		}
		out[key] = v
	}
	return out, nil
}

// SaveEntries encodes entries and replaces the namespace with them.
func SaveEntries[T any](ctx context.Context, h *History, namespace string, entries map[string]T) error {
	raw := make(map[string][]byte, len(entries))
	for key, v := range entries {
		b, err := h.encode(v)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
		}
		raw[key] = b
	}
	return h.backend.SetAll(ctx, namespace, raw)
}

func (h *History) encode(v any) ([]byte, error) {
	b, err := marshal(v)
	if err != nil {
		return nil, err
	}
	if h.sealer == nil {
		return b, nil
	}
	return h.sealer.Seal(b)
}

func (h *History) decode(b []byte, v any) error {
	if h.sealer != nil {
		plain, err := h.sealer.Open(b)
		if err != nil {
			return err
		}
		b = plain
	}
	return unmarshal(b, v)
}
