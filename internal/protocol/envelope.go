package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks an inbound frame that cannot be decoded into an envelope.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the flat wire form shared by every kind. Callers should
// convert it to a Payload rather than reading kind-specific fields directly.
type Envelope struct {
	ID         string      `json:"id,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	From       string      `json:"from,omitempty"`
	To         string      `json:"to,omitempty"`
	Kind       Kind        `json:"type"`
	Method     MethodFlags `json:"method"`
	Content    string      `json:"content,omitempty"`
	Status     string      `json:"status,omitempty"`
	Anonymous  bool        `json:"anonymous,omitempty"`
	Avatar     string      `json:"avatar,omitempty"`
	OriginalTo string      `json:"originalTo,omitempty"`
	TargetID   string      `json:"targetId,omitempty"`
	Title      string      `json:"title,omitempty"`
	ShowToast  bool        `json:"showToast,omitempty"`
	PostID     string      `json:"postId,omitempty"`
	CommentID  string      `json:"commentId,omitempty"`
}

// UnmarshalJSON accepts the id either as a JSON string or as a bare number.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	type wire Envelope
	aux := struct {
		*wire
		ID json.RawMessage `json:"id"`
	}{wire: (*wire)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	id := bytes.TrimSpace(aux.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		e.ID = ""
	case id[0] == '"':
		return json.Unmarshal(id, &e.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		e.ID = n.String()
	}
	return nil
}

// IsFeedback reports whether a chat envelope is a server acknowledgement
// for a message we sent rather than a new message.
func (e Envelope) IsFeedback() bool {
	return e.Kind == KindChat && e.OriginalTo != "" && e.Status != ""
}

// Decode parses a text frame.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Kind == 0 {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return e, nil
}

// Encode renders a payload as a text frame.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p.Envelope())
}
