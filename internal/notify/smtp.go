package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// senderName は送信元の表示名。
const senderName = "Foliora Support"

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier はSMTPでHTMLメールを送信する。
type SMTPNotifier struct {
	client *mail.Client
	from   string
}

// NewSMTPNotifier はSMTPNotifierを生成する。接続は送信時に確立する。
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPNotifier{client: client, from: from}, nil
}

// Notify はメールを1通送信する。
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.FromFormat(senderName, n.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

var _ Notifier = (*SMTPNotifier)(nil)
