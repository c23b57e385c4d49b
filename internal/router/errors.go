package router

import "errors"

// Router errors
var (
	ErrUnknownScope = errors.New("unknown delivery scope")
)
