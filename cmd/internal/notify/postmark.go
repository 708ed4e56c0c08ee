package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"sessiond/cmd/identity"
)

type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkNotifier sends rendered messages through Postmark's
// transactional API.
type PostmarkNotifier struct {
	client postmarkSender
	cfg    Config
}

var _ identity.Notifier = (*PostmarkNotifier)(nil)

// NewPostmarkNotifier validates cfg and builds a client from its tokens.
func NewPostmarkNotifier(cfg Config) (*PostmarkNotifier, error) {
	cfg.Backend = BackendPostmark
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PostmarkNotifier{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		cfg:    cfg,
	}, nil
}

func (n *PostmarkNotifier) Notify(ctx context.Context, kind identity.NotifyKind, email string, data map[string]string) error {
	msg, err := Render(kind, email, data, n.cfg.ProductName, n.cfg.SupportEmail)
	if err != nil {
		return err
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.cfg.SenderEmail,
		ReplyTo:  n.cfg.SupportEmail,
		To:       msg.To,
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		HTMLBody: msg.HTML,
	})
	if err != nil {
		return errors.Join(ErrSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
