package app

import "errors"

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid app config")

// ErrBackendNotReady is returned when a storage backend cannot be reached.
var ErrBackendNotReady = errors.New("backend not ready")
