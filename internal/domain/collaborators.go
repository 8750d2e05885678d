package domain

import (
	"context"
)

// IdentityProvider exposes the local identity used to stamp outbound
// envelopes and decide which inbound messages are our own.
type IdentityProvider interface {
	Identity() string
}

// ProfileFetcher resolves display metadata for a counterpart.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, id string) (Profile, error)
}

// StaticIdentity is an IdentityProvider with a fixed value.
type StaticIdentity string

func (s StaticIdentity) Identity() string { return string(s) }
