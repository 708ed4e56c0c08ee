package app

import "context"

// Run builds the runtime from cfg and serves until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.fail", "error", err)
		return err
	}
	return a.Run(ctx)
}
