package borrow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/notify"
)

// SendReminder は所有者の操作で借り手に返却リマインダーを同期送信する。
// 送信に失敗した場合はEMAIL_SEND_FAILEDを返す。リクエストの状態は変更しない。
func (s *Service) SendReminder(ctx context.Context, actorID, requestID string) (err error) {
	defer func() { s.record(TransitionReminder, err) }()

	repos := s.store.Repos()
	req, err := repos.Requests.FindByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("リクエストの取得に失敗しました: %w", err)
	}
	if req == nil {
		return model.NewRequestNotFoundError(requestID)
	}
	if req.OwnerID != actorID {
		return model.NewNotRequestOwnerError()
	}

	book, err := repos.Books.FindByID(ctx, req.BookID)
	if err != nil {
		return fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return model.NewBookNotFoundError(req.BookID)
	}
	borrower, err := repos.Users.FindByID(ctx, req.RequesterID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if borrower == nil {
		return model.NewUserNotFoundError()
	}

	msg, err := notify.ReturnReminder(borrower.Email, book.Title, book.ExpectedReturnDate)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.reminderTimeout)
	defer cancel()
	if err := s.notifier.Notify(sendCtx, msg); err != nil {
		slog.Error("リマインダーの送信に失敗しました",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
		return model.NewEmailSendFailedError()
	}

	if err := repos.Requests.MarkReminded(ctx, req.ID, s.now()); err != nil {
		slog.Warn("リマインダー送信日時の記録に失敗しました",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("リマインダーを送信しました",
		slog.String("request_id", req.ID),
		slog.String("book_id", req.BookID),
	)
	return nil
}
