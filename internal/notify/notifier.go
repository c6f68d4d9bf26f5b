// Package notify はメール通知の送信を提供する。
// 通知はベストエフォートであり、配信は保証しない。
package notify

import (
	"context"
	"log/slog"
)

// Message は1通の通知メール。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier は通知の送信インターフェース。
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier はSMTPが未設定の環境で、送信の代わりに通知内容をログに出力する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify は通知内容をログに出力する。
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification (not sent: SMTP is not configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
