package protocol

import (
	"errors"

	"github.com/scenesync/server/internal/authority"
	"github.com/scenesync/server/internal/lifecycle"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
)

// Error codes carried in error and ownership_response messages.
const (
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrInvalidField = "E_INVALID_FIELD"
	ErrConflict     = "E_CONFLICT"
	ErrNotOwner     = "E_NOT_OWNER"
	ErrUnknownActor = "E_UNKNOWN_ACTOR"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:   {},
	ErrInvalidField: {},
	ErrConflict:     {},
	ErrNotOwner:     {},
	ErrUnknownActor: {},
	ErrNoPermission: {},
	ErrRateLimit:    {},
	ErrInternal:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var (
	ErrInvalidMessage = errors.New("protocol: invalid message")
	ErrUnknownType    = errors.New("protocol: unknown message type")
	ErrNotAllowed     = errors.New("protocol: message not allowed in session state")
	ErrHandlerPanic   = errors.New("protocol: handler panic")
	ErrRateLimited    = errors.New("protocol: rate limit exceeded")
	// ErrNotSimulator rejects motion and trigger reports from a peer that
	// does not simulate the actor.
	ErrNotSimulator = errors.New("protocol: peer does not simulate actor")
)

// CodeFor maps an error returned by a handler to its wire code. Nil maps
// to the empty code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrUnknownType), errors.Is(err, ErrNotAllowed):
		return ErrBadRequest
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimit
	case errors.Is(err, patch.ErrInvalidFieldName), errors.Is(err, patch.ErrEmptyPath),
		errors.Is(err, patch.ErrPathConflict), errors.Is(err, replica.ErrFieldType):
		return ErrInvalidField
	case errors.Is(err, authority.ErrOwnershipConflict):
		return ErrConflict
	case errors.Is(err, authority.ErrNotOwner), errors.Is(err, ErrNotSimulator):
		return ErrNotOwner
	case errors.Is(err, authority.ErrUnknownActor), errors.Is(err, scene.ErrUnknownActor),
		errors.Is(err, lifecycle.ErrUnknownActor):
		return ErrUnknownActor
	case errors.Is(err, scene.ErrReadOnlyPath):
		return ErrNoPermission
	}
	return ErrInternal
}
