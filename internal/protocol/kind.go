package protocol

import "strconv"

// Kind is the discriminant carried in the envelope's "type" field.
type Kind int

const (
	KindChat         Kind = 1
	KindNotification Kind = 2
	KindSystem       Kind = 3
	KindPresence     Kind = 4
	KindLike         Kind = 5
	KindFavorite     Kind = 6
	KindFetchOffline Kind = 7
	KindFollow       Kind = 8
	KindComment      Kind = 9
	KindMention      Kind = 10
)

var kindNames = map[Kind]string{
	KindChat:         "chat",
	KindNotification: "notification",
	KindSystem:       "system",
	KindPresence:     "presence",
	KindLike:         "like",
	KindFavorite:     "favorite",
	KindFetchOffline: "fetch_offline",
	KindFollow:       "follow",
	KindComment:      "comment",
	KindMention:      "mention",
}

// Kinds lists every kind this package understands, in wire order.
func Kinds() []Kind {
	return []Kind{
		KindChat, KindNotification, KindSystem, KindPresence, KindLike,
		KindFavorite, KindFetchOffline, KindFollow, KindComment, KindMention,
	}
}

// Known reports whether k is one of the kinds this package understands.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// Social reports whether k is one of the fire-and-forget social notification kinds.
func (k Kind) Social() bool {
	switch k {
	case KindLike, KindFavorite, KindFollow, KindComment, KindMention:
		return true
	}
	return false
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}
