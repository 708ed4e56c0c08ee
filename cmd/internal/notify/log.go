package notify

import (
	"context"
	"log/slog"
	"strings"

	"sessiond/cmd/identity"
)

// LogNotifier renders messages and writes a summary to the log. Bodies are
// not logged.
type LogNotifier struct {
	log     *slog.Logger
	product string
}

var _ identity.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *slog.Logger, product string) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log, product: product}
}

func (n *LogNotifier) Notify(ctx context.Context, kind identity.NotifyKind, email string, data map[string]string) error {
	msg, err := Render(kind, email, data, n.product, "")
	if err != nil {
		return err
	}
	n.log.InfoContext(ctx, "notify.send", "kind", kind, "to_domain", domainOf(email), "subject", msg.Subject)
	return nil
}

func domainOf(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
