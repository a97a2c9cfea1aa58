package events

import "errors"

// ErrEngineClosed is returned by operations on a closed engine.
var ErrEngineClosed = errors.New("events engine is closed")
