package lifecycle

import "chatrelay/pkg/types"

// Request errors surfaced in acknowledgments.
var (
	ErrNotJoined     = types.ErrNotJoined
	ErrAlreadyJoined = types.ErrAlreadyJoined
	ErrDisconnected  = types.ErrDisconnected
	ErrProfanity     = types.ErrProfanity
	ErrRateLimited   = types.ErrRateLimited
)
