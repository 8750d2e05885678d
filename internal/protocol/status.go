package protocol

// Status is the delivery state of an outbound message, as carried on the wire.
type Status string

const (
	StatusSending Status = "sending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusBlocked Status = "blocked"
)

// Presence values share the envelope's status field.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSending, StatusSuccess, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Terminal reports whether s ends the delivery lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusBlocked
}

// Resendable reports whether a user may retry a message in state s.
func (s Status) Resendable() bool {
	return s == StatusFailed || s == StatusBlocked
}
