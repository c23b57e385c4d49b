package session

import "chatrelay/pkg/types"

// Registry errors. Admission failures reuse the client-facing sentinels so the
// join acknowledgment can carry them verbatim.
var (
	ErrInvalidInput  = types.ErrInvalidInput
	ErrNameTaken     = types.ErrNameTaken
	ErrAlreadyJoined = types.ErrAlreadyJoined
)
