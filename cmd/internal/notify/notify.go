package notify

import (
	"log/slog"

	"sessiond/cmd/identity"
)

// New returns the notifier selected by cfg.Backend.
func New(cfg Config, log *slog.Logger) (identity.Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendPostmark:
		return NewPostmarkNotifier(cfg)
	case BackendLog:
		return NewLogNotifier(log, cfg.ProductName), nil
	default:
		return identity.NoopNotifier{}, nil
	}
}
