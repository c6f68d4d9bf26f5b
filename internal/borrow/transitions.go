package borrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/repository"
)

// RequestBook は書籍の貸出リクエストを作成する。書籍のステータスは変更しない。
func (s *Service) RequestBook(ctx context.Context, actorID, bookID string) (req *model.BorrowRequest, err error) {
	defer func() { s.record(TransitionRequest, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		book, err := repos.Books.LockByID(ctx, bookID)
		if err != nil {
			return fmt.Errorf("書籍のロックに失敗しました: %w", err)
		}
		if book == nil {
			return model.NewBookNotFoundError(bookID)
		}
		actor, err := repos.Users.FindByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if actor == nil {
			return model.NewUserNotFoundError()
		}
		if book.OwnerID == actorID {
			return model.NewOwnBookError()
		}
		if book.Status == model.BookBorrowed {
			return model.NewBookAlreadyBorrowedError()
		}

		accepted, err := repos.Requests.FindByBookAndStatus(ctx, bookID, model.RequestAccepted)
		if err != nil {
			return fmt.Errorf("リクエストの検索に失敗しました: %w", err)
		}
		if accepted != nil {
			return model.NewRequestAlreadyAcceptedError()
		}
		pending, err := repos.Requests.FindPending(ctx, bookID, actorID)
		if err != nil {
			return fmt.Errorf("リクエストの検索に失敗しました: %w", err)
		}
		if pending != nil {
			return model.NewDuplicateRequestError()
		}

		now := s.now()
		created := &model.BorrowRequest{
			ID:          uuid.New().String(),
			BookID:      book.ID,
			RequesterID: actorID,
			OwnerID:     book.OwnerID,
			Status:      model.RequestRequested,
			RequestDate: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := repos.Requests.Create(ctx, created); err != nil {
			if mapped := mapDuplicate(err); mapped != nil {
				return mapped
			}
			return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
		}
		req = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logTransition("貸出リクエストを作成しました", req, actorID)
	return req, nil
}

// Decide は所有者がリクエストを承認または拒否する。
// 承認時は書籍を貸出中にし、同じ書籍の他の保留中リクエストをすべて拒否する。
func (s *Service) Decide(ctx context.Context, actorID, requestID, rawStatus string) (req *model.BorrowRequest, book *model.Book, err error) {
	transition := TransitionReject
	defer func() { s.record(transition, err) }()

	decision, err := model.ParseDecision(rawStatus)
	if err != nil {
		return nil, nil, err
	}
	if decision == model.DecisionAccept {
		transition = TransitionAccept
	}

	bookID, err := s.peekBookID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	rejected := 0
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		r, b, err := lockRequest(ctx, repos, bookID, requestID)
		if err != nil {
			return err
		}
		if r.OwnerID != actorID {
			return model.NewNotRequestOwnerError()
		}
		if b == nil {
			return model.NewBookNotFoundError(bookID)
		}
		if decision == model.DecisionAccept && b.Status == model.BookBorrowed {
			return model.NewBookAlreadyBorrowedError()
		}
		if r.Status != model.RequestRequested {
			return model.NewInvalidRequestStateError(r.Status)
		}

		now := s.now()
		r.UpdatedAt = now
		if decision == model.DecisionReject {
			r.Status = model.RequestRejected
			if err := saveRequest(ctx, repos, r); err != nil {
				return err
			}
			req, book = r, b
			return nil
		}

		r.Status = model.RequestAccepted
		if err := saveRequest(ctx, repos, r); err != nil {
			return err
		}
		b.MarkBorrowed(r.RequesterID, now)
		if err := saveBook(ctx, repos, b); err != nil {
			return err
		}
		n, err := repos.Requests.RejectPendingSiblings(ctx, b.ID, r.ID, now)
		if err != nil {
			return fmt.Errorf("他のリクエストの拒否に失敗しました: %w", err)
		}
		rejected = n
		req, book = r, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logTransition("貸出リクエストを判断しました", req, actorID)
	if rejected > 0 {
		s.logRejectedSiblings(req, rejected)
	}
	return req, book, nil
}

// RequestReturn は借り手が返却を申請する。書籍のステータスは変更しない。
func (s *Service) RequestReturn(ctx context.Context, actorID, requestID string) (req *model.BorrowRequest, err error) {
	defer func() { s.record(TransitionReturnRequest, err) }()

	bookID, err := s.peekBookID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		r, _, err := lockRequest(ctx, repos, bookID, requestID)
		if err != nil {
			return err
		}
		if r.RequesterID != actorID {
			return model.NewNotRequesterError()
		}
		if r.Status != model.RequestAccepted {
			return model.NewNotCurrentlyBorrowedError()
		}

		now := s.now()
		r.Status = model.RequestReturnRequested
		r.ReturnRequestedAt = &now
		r.UpdatedAt = now
		if err := saveRequest(ctx, repos, r); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logTransition("返却が申請されました", req, actorID)
	return req, nil
}

// ConfirmReturn は所有者が返却を確認する。書籍は貸出可能に戻る。
func (s *Service) ConfirmReturn(ctx context.Context, actorID, requestID string) (req *model.BorrowRequest, err error) {
	defer func() { s.record(TransitionConfirmReturn, err) }()

	bookID, err := s.peekBookID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		r, b, err := lockRequest(ctx, repos, bookID, requestID)
		if err != nil {
			return err
		}
		if r.OwnerID != actorID {
			return model.NewNotRequestOwnerError()
		}
		if r.Status != model.RequestReturnRequested {
			return model.NewReturnNotRequestedError()
		}

		now := s.now()
		r.Status = model.RequestReturned
		r.ReturnDate = &now
		r.UpdatedAt = now
		if err := saveRequest(ctx, repos, r); err != nil {
			return err
		}
		if b != nil {
			b.MarkAvailable(now)
			if err := saveBook(ctx, repos, b); err != nil {
				return err
			}
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logTransition("返却が確認されました", req, actorID)
	return req, nil
}

// Cancel は申請者が保留中のリクエストを取り消す。リクエストは削除される。
func (s *Service) Cancel(ctx context.Context, actorID, requestID string) (err error) {
	defer func() { s.record(TransitionCancel, err) }()

	bookID, err := s.peekBookID(ctx, requestID)
	if err != nil {
		return err
	}

	var canceled *model.BorrowRequest
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		r, _, err := lockRequest(ctx, repos, bookID, requestID)
		if err != nil {
			return err
		}
		if r.RequesterID != actorID {
			return model.NewNotRequesterError()
		}
		if r.Status != model.RequestRequested {
			return model.NewNotCancellableError()
		}
		if err := repos.Requests.DeleteByID(ctx, r.ID); err != nil {
			return fmt.Errorf("リクエストの削除に失敗しました: %w", err)
		}
		canceled = r
		return nil
	})
	if err != nil {
		return err
	}

	logTransition("貸出リクエストを取り消しました", canceled, actorID)
	return nil
}

// SetReturnDeadline は所有者が返却期限を現在時刻からdays日後に設定する。
// 期限は書籍に保存し、同じ値をリクエストにも記録する。
func (s *Service) SetReturnDeadline(ctx context.Context, actorID, requestID string, days int) (book *model.Book, err error) {
	defer func() { s.record(TransitionSetDeadline, err) }()

	if err := model.ValidateDeadlineDays(days); err != nil {
		return nil, err
	}

	bookID, err := s.peekBookID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var req *model.BorrowRequest
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		r, b, err := lockRequest(ctx, repos, bookID, requestID)
		if err != nil {
			return err
		}
		if r.OwnerID != actorID {
			return model.NewNotRequestOwnerError()
		}
		if r.Status != model.RequestAccepted {
			return model.NewNotCurrentlyBorrowedError()
		}
		if b == nil {
			return model.NewBookNotFoundError(bookID)
		}

		now := s.now()
		deadline := now.Add(time.Duration(days) * 24 * time.Hour)
		b.ExpectedReturnDate = &deadline
		b.UpdatedAt = now
		if err := saveBook(ctx, repos, b); err != nil {
			return err
		}
		r.ExpectedReturnDate = &deadline
		r.UpdatedAt = now
		if err := saveRequest(ctx, repos, r); err != nil {
			return err
		}
		req, book = r, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logTransition("返却期限を設定しました", req, actorID)
	return book, nil
}
