// Copyright 2024-2026 Aiku AI

package bridge

import (
	"github.com/aiku/telebridge/pkg/identity"
)

// Resolver translates a reply target from one platform's native ID space
// to the other's via the canonical identity.
type Resolver struct {
	mapper *identity.Mapper
}

func NewResolver(mapper *identity.Mapper) *Resolver {
	return &Resolver{mapper: mapper}
}

// ResolveReply maps replyNativeID (a message on sourcePlatform) to its
// counterpart on destPlatform. When the target was relayed there and
// still exists, destNativeID is returned and the reply can be native.
// Otherwise destNativeID is empty and fallbackAuthor carries the original
// author's name, if known, for a textual annotation.
func (r *Resolver) ResolveReply(sourcePlatform, replyNativeID, destPlatform string) (destNativeID, fallbackAuthor string, err error) {
	origin, ok, err := r.mapper.Get(sourcePlatform, replyNativeID)
	if err != nil || !ok {
		return "", "", err
	}

	nativeID, ok, err := r.mapper.ResolveNative(origin.CanonicalID, destPlatform)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", origin.AuthorName, nil
	}

	dest, ok, err := r.mapper.Get(destPlatform, nativeID)
	if err != nil {
		return "", "", err
	}
	if !ok || dest.DeletedAt != nil || dest.Status == identity.StatusFailed {
		return "", origin.AuthorName, nil
	}
	return nativeID, "", nil
}
