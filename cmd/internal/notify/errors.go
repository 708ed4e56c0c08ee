package notify

import "errors"

var (
	ErrSend          = errors.New("notify: send failed")
	ErrInvalidConfig = errors.New("notify: invalid config")
	ErrUnknownKind   = errors.New("notify: unknown message kind")
)
