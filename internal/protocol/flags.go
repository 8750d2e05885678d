package protocol

import "strings"

// Flag is a single server-side processing directive.
type Flag uint8

const (
	FlagRedirect       Flag = 0x1
	FlagCheckSensitive Flag = 0x2
	FlagNeedFeedback   Flag = 0x4
)

// MethodFlags is the combinable set of directives sent in the envelope's "method" field.
type MethodFlags uint8

// Flags builds a set from individual directives.
func Flags(fs ...Flag) MethodFlags {
	var m MethodFlags
	for _, f := range fs {
		m |= MethodFlags(f)
	}
	return m
}

// ChatFlags is the directive set every outbound chat message carries.
var ChatFlags = Flags(FlagCheckSensitive, FlagRedirect, FlagNeedFeedback)

// SocialFlags is the directive set for fire-and-forget social notifications.
var SocialFlags = Flags(FlagRedirect)

func (m MethodFlags) Has(f Flag) bool { return m&MethodFlags(f) != 0 }

func (m MethodFlags) With(f Flag) MethodFlags { return m | MethodFlags(f) }

func (m MethodFlags) Without(f Flag) MethodFlags { return m &^ MethodFlags(f) }

func (m MethodFlags) RequiresRedirect() bool { return m.Has(FlagRedirect) }

func (m MethodFlags) RequiresContentCheck() bool { return m.Has(FlagCheckSensitive) }

func (m MethodFlags) RequiresFeedback() bool { return m.Has(FlagNeedFeedback) }

func (m MethodFlags) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m.RequiresRedirect() {
		parts = append(parts, "redirect")
	}
	if m.RequiresContentCheck() {
		parts = append(parts, "check_sensitive")
	}
	if m.RequiresFeedback() {
		parts = append(parts, "need_feedback")
	}
	if rest := m &^ Flags(FlagRedirect, FlagCheckSensitive, FlagNeedFeedback); rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}
