package protocol

// Payload is the typed view of an envelope. The set of implementations is
// closed; Envelope.Payload is the single place that maps kinds to types.
type Payload interface {
	Kind() Kind
	Envelope() Envelope
	isPayload()
}

// Chat is an ordinary private message.
type Chat struct {
	ID        string
	Timestamp int64
	From      string
	To        string
	Content   string
	Anonymous bool
	Avatar    string
	Method    MethodFlags
}

// Feedback is the server's delivery verdict for a chat message we sent.
type Feedback struct {
	ID         string
	Timestamp  int64
	From       string
	To         string
	OriginalTo string
	Status     Status
	Anonymous  bool
}

type Notification struct {
	ID        string
	Timestamp int64
	From      string
	To        string
	Title     string
	Content   string
	ShowToast bool
}

type SystemMessage struct {
	ID        string
	Timestamp int64
	From      string
	Title     string
	Content   string
}

// Presence is both the outbound online check and the inbound reply or broadcast.
type Presence struct {
	ID        string
	Timestamp int64
	From      string
	To        string
	Target    string
	Status    string
	Method    MethodFlags
}

// Online reports whether the presence status says the target is online.
func (p Presence) Online() bool { return p.Status == PresenceOnline }

// TargetOrSender is the identity this presence event is about.
func (p Presence) TargetOrSender() string {
	if p.Target != "" {
		return p.Target
	}
	return p.From
}

// Social covers like, favorite, follow, comment and mention notifications.
type Social struct {
	Type      Kind
	ID        string
	Timestamp int64
	From      string
	To        string
	Content   string
	PostID    string
	CommentID string
	Avatar    string
}

// FetchOffline asks the server to flush messages queued while we were away.
type FetchOffline struct {
	From      string
	Timestamp int64
}

// Unknown carries envelopes of kinds this build does not understand.
type Unknown struct {
	Raw Envelope
}

func (Chat) Kind() Kind { return KindChat }
func (Feedback) Kind() Kind { return KindChat }
func (Notification) Kind() Kind { return KindNotification }
func (SystemMessage) Kind() Kind { return KindSystem }
func (Presence) Kind() Kind { return KindPresence }
func (s Social) Kind() Kind { return s.Type }
func (FetchOffline) Kind() Kind { return KindFetchOffline }
func (u Unknown) Kind() Kind { return u.Raw.Kind }

func (Chat) isPayload() {}
func (Feedback) isPayload() {}
func (Notification) isPayload() {}
func (SystemMessage) isPayload() {}
func (Presence) isPayload() {}
func (Social) isPayload() {}
func (FetchOffline) isPayload() {}
func (Unknown) isPayload() {}

func (c Chat) Envelope() Envelope {
	return Envelope{
		ID: c.ID, Timestamp: c.Timestamp, From: c.From, To: c.To,
		Kind: KindChat, Method: c.Method, Content: c.Content,
		Anonymous: c.Anonymous, Avatar: c.Avatar,
	}
}

func (f Feedback) Envelope() Envelope {
	return Envelope{
		ID: f.ID, Timestamp: f.Timestamp, From: f.From, To: f.To,
		Kind: KindChat, Status: string(f.Status), OriginalTo: f.OriginalTo,
		Anonymous: f.Anonymous,
	}
}

func (n Notification) Envelope() Envelope {
	return Envelope{
		ID: n.ID, Timestamp: n.Timestamp, From: n.From, To: n.To,
		Kind: KindNotification, Title: n.Title, Content: n.Content, ShowToast: n.ShowToast,
	}
}

func (s SystemMessage) Envelope() Envelope {
	return Envelope{
		ID: s.ID, Timestamp: s.Timestamp, From: s.From,
		Kind: KindSystem, Title: s.Title, Content: s.Content,
	}
}

func (p Presence) Envelope() Envelope {
	return Envelope{
		ID: p.ID, Timestamp: p.Timestamp, From: p.From, To: p.To,
		Kind: KindPresence, Method: p.Method, TargetID: p.Target, Status: p.Status,
	}
}

func (s Social) Envelope() Envelope {
	return Envelope{
		ID: s.ID, Timestamp: s.Timestamp, From: s.From, To: s.To,
		Kind: s.Type, Method: SocialFlags, Content: s.Content,
		PostID: s.PostID, CommentID: s.CommentID, Avatar: s.Avatar,
	}
}

func (f FetchOffline) Envelope() Envelope {
	return Envelope{From: f.From, Timestamp: f.Timestamp, Kind: KindFetchOffline}
}

func (u Unknown) Envelope() Envelope { return u.Raw }

// Payload converts the flat envelope into its typed form.
func (e Envelope) Payload() Payload {
	if e.Kind.Social() {
		return Social{
			Type: e.Kind, ID: e.ID, Timestamp: e.Timestamp, From: e.From, To: e.To,
			Content: e.Content, PostID: e.PostID, CommentID: e.CommentID, Avatar: e.Avatar,
		}
	}
	switch e.Kind {
	case KindChat:
		if e.IsFeedback() {
			return Feedback{
				ID: e.ID, Timestamp: e.Timestamp, From: e.From, To: e.To, OriginalTo: e.OriginalTo,
				Status: Status(e.Status), Anonymous: e.Anonymous,
			}
		}
		return Chat{
			ID: e.ID, Timestamp: e.Timestamp, From: e.From, To: e.To, Content: e.Content,
			Anonymous: e.Anonymous, Avatar: e.Avatar, Method: e.Method,
		}
	case KindNotification:
		return Notification{
			ID: e.ID, Timestamp: e.Timestamp, From: e.From, To: e.To,
			Title: e.Title, Content: e.Content, ShowToast: e.ShowToast,
		}
	case KindSystem:
		return SystemMessage{ID: e.ID, Timestamp: e.Timestamp, From: e.From, Title: e.Title, Content: e.Content}
	case KindPresence:
		return Presence{
			ID: e.ID, Timestamp: e.Timestamp, From: e.From, To: e.To,
			Target: e.TargetID, Status: e.Status, Method: e.Method,
		}
	case KindFetchOffline:
		return FetchOffline{From: e.From, Timestamp: e.Timestamp}
	default:
		return Unknown{Raw: e}
	}
}
