// Package borrow は書籍の貸出リクエストのライフサイクルを管理する。
//
// 状態遷移:
//
//	Requested → Accepted → ReturnRequested → Returned
//	Requested → Rejected
//	Requested → （削除: Cancel）
//
// すべての遷移は単一トランザクション内で対象書籍の行をロックしてから実行するため、
// 同じ書籍に対する遷移は直列化される。検証順序は 存在 → 権限 → 状態 → 入力値 で統一する。
package borrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/notify"
	"github.com/hitoshi/foliora/internal/repository"
)

// DefaultReminderTimeout はリマインダー送信（同期）のタイムアウト。
const DefaultReminderTimeout = 15 * time.Second

// 遷移名（メトリクスのラベル）
const (
	TransitionRequest       = "request"
	TransitionAccept        = "accept"
	TransitionReject        = "reject"
	TransitionReturnRequest = "return_request"
	TransitionConfirmReturn = "confirm_return"
	TransitionCancel        = "cancel"
	TransitionSetDeadline   = "set_deadline"
	TransitionReminder      = "reminder"
)

// OutcomeSuccess は遷移成功時のメトリクスラベル。失敗時はエラーコードを使用する。
const OutcomeSuccess = "success"

// Recorder は遷移結果の記録インターフェース。
type Recorder interface {
	RecordTransition(transition, outcome string)
}

// Service は貸出ライフサイクルのサービス層。
type Service struct {
	store           repository.Store
	notifier        notify.Notifier
	recorder        Recorder
	now             func() time.Time
	reminderTimeout time.Duration
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(store repository.Store, notifier notify.Notifier, recorder Recorder) *Service {
	return &Service{
		store:           store,
		notifier:        notifier,
		recorder:        recorder,
		now:             time.Now,
		reminderTimeout: DefaultReminderTimeout,
	}
}

func (s *Service) record(transition string, err error) {
	if s.recorder == nil {
		return
	}
	if err == nil {
		s.recorder.RecordTransition(transition, OutcomeSuccess)
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.recorder.RecordTransition(transition, apiErr.Code)
		return
	}
	s.recorder.RecordTransition(transition, "error")
}

// peekBookID はトランザクション外でリクエストを取得し、ロック対象の書籍IDを返す。
func (s *Service) peekBookID(ctx context.Context, requestID string) (string, error) {
	req, err := s.store.Repos().Requests.FindByID(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("リクエストの取得に失敗しました: %w", err)
	}
	if req == nil {
		return "", model.NewRequestNotFoundError(requestID)
	}
	return req.BookID, nil
}

// lockRequest は書籍行をロックしたうえでリクエストを再取得する。
// ロック取得までの間にリクエストが削除されていた場合は404を返す。
// 書籍が存在しない場合、bookはnilになる。
func lockRequest(ctx context.Context, repos repository.Repositories, bookID, requestID string) (*model.BorrowRequest, *model.Book, error) {
	book, err := repos.Books.LockByID(ctx, bookID)
	if err != nil {
		return nil, nil, fmt.Errorf("書籍のロックに失敗しました: %w", err)
	}
	req, err := repos.Requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("リクエストの取得に失敗しました: %w", err)
	}
	if req == nil || req.BookID != bookID {
		return nil, nil, model.NewRequestNotFoundError(requestID)
	}
	return req, book, nil
}

// mapDuplicate は一意制約違反をドメインエラーに変換する。該当しない場合はnilを返す。
func mapDuplicate(err error) error {
	var dup *repository.ErrDuplicate
	if !errors.As(err, &dup) {
		return nil
	}
	switch dup.Constraint {
	case repository.ConstraintActiveLoan:
		return model.NewRequestAlreadyAcceptedError()
	case repository.ConstraintPendingByUser:
		return model.NewDuplicateRequestError()
	default:
		return nil
	}
}

func saveRequest(ctx context.Context, repos repository.Repositories, req *model.BorrowRequest) error {
	if err := repos.Requests.Update(ctx, req); err != nil {
		if mapped := mapDuplicate(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("リクエストの更新に失敗しました: %w", err)
	}
	return nil
}

func saveBook(ctx context.Context, repos repository.Repositories, book *model.Book) error {
	if err := repos.Books.Update(ctx, book); err != nil {
		return fmt.Errorf("書籍の更新に失敗しました: %w", err)
	}
	return nil
}

func logTransition(msg string, req *model.BorrowRequest, actorID string) {
	slog.Info(msg,
		slog.String("request_id", req.ID),
		slog.String("book_id", req.BookID),
		slog.String("actor_id", actorID),
		slog.String("status", string(req.Status)),
	)
}
