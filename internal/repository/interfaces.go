// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/foliora/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// ErrDuplicate は一意制約に違反した場合に返される。
// Constraint には違反した制約名が入る。
type ErrDuplicate struct {
	Constraint string
}

func (e *ErrDuplicate) Error() string {
	return "unique constraint violated: " + e.Constraint
}

// 一意制約名
const (
	ConstraintUsername      = "users_username_key"
	ConstraintEmail         = "users_email_key"
	ConstraintActiveLoan    = "borrow_requests_active_loan_idx"
	ConstraintPendingByUser = "borrow_requests_pending_idx"
	ConstraintBookTitle     = "books_owner_title_author_idx"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindSummaries は指定IDのユーザーの公開情報をIDをキーとして返す。
	FindSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error)

	// List は全ユーザーを登録日の新しい順に返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報を上書き更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するbooks、borrow_requestsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// BookRepository は書籍データの永続化インターフェース。
type BookRepository interface {
	// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// LockByID は指定IDの書籍を行ロック付きで取得する。見つからない場合はnilを返す。
	// トランザクション内でのみ意味を持つ。
	LockByID(ctx context.Context, id string) (*model.Book, error)

	// FindByOwnerTitleAuthor は所有者・タイトル・著者が一致する書籍を検索する。
	// 見つからない場合はnilを返す。
	FindByOwnerTitleAuthor(ctx context.Context, ownerID, title, author string) (*model.Book, error)

	// List は書籍を登録日の新しい順に返す。limitが0以下の場合は全件返す。
	List(ctx context.Context, limit int) ([]*model.Book, error)

	// ListByOwner は所有者の書籍一覧を返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Book, error)

	// ListBorrowedBy は指定ユーザーが借りている書籍一覧を返す。
	ListBorrowedBy(ctx context.Context, userID string) ([]*model.Book, error)

	// Search はフィルタ条件に一致する書籍を返す。
	Search(ctx context.Context, filter model.BookFilter) ([]*model.Book, error)

	// CountByOwner は所有者の書籍数を返す。
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// CountBorrowedBy は指定ユーザーが借りている書籍数を返す。
	CountBorrowedBy(ctx context.Context, userID string) (int, error)

	// CountLentByOwner は所有者の書籍のうち貸出中の数を返す。
	CountLentByOwner(ctx context.Context, ownerID string) (int, error)

	// Create は書籍を作成する。
	Create(ctx context.Context, book *model.Book) error

	// Update は書籍情報を上書き更新する。
	Update(ctx context.Context, book *model.Book) error

	// DeleteByID は指定IDの書籍を削除する。関連するborrow_requestsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByOwner は所有者の全書籍を削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// BorrowRequestRepository は貸出リクエストの永続化インターフェース。
type BorrowRequestRepository interface {
	// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.BorrowRequest, error)

	// FindByBookAndStatus は書籍とステータスが一致するリクエストを1件返す。
	// 見つからない場合はnilを返す。
	FindByBookAndStatus(ctx context.Context, bookID string, status model.RequestStatus) (*model.BorrowRequest, error)

	// FindPending は申請者が書籍に対して出している保留中のリクエストを返す。
	// 見つからない場合はnilを返す。
	FindPending(ctx context.Context, bookID, requesterID string) (*model.BorrowRequest, error)

	// FindActiveByBook は書籍の現在の貸出（Accepted または ReturnRequested）を返す。
	// 見つからない場合はnilを返す。
	FindActiveByBook(ctx context.Context, bookID string) (*model.BorrowRequest, error)

	// ListByOwner は所有者宛てのリクエストを新しい順に返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.BorrowRequest, error)

	// ListByRequester は申請者のリクエストを新しい順に返す。
	ListByRequester(ctx context.Context, requesterID string) ([]*model.BorrowRequest, error)

	// ListReturnedByRequester は申請者の返却済みリクエストを返却日の新しい順に返す。
	ListReturnedByRequester(ctx context.Context, requesterID string) ([]*model.BorrowRequest, error)

	// CountByRequester は申請者のリクエスト総数を返す。
	CountByRequester(ctx context.Context, requesterID string) (int, error)

	// ListOverdue は返却期限を過ぎた貸出のうち、remindedBefore以前に通知済みか未通知のものを返す。
	ListOverdue(ctx context.Context, now, remindedBefore time.Time) ([]model.OverdueLoan, error)

	// Create はリクエストを作成する。
	Create(ctx context.Context, req *model.BorrowRequest) error

	// Update はリクエストを上書き更新する。
	Update(ctx context.Context, req *model.BorrowRequest) error

	// RejectPendingSiblings は同じ書籍の保留中リクエストのうちexceptID以外をRejectedにする。
	// 更新した件数を返す。
	RejectPendingSiblings(ctx context.Context, bookID, exceptID string, now time.Time) (int, error)

	// MarkReminded はリマインダー送信日時を記録する。
	MarkReminded(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのリクエストを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUser は指定ユーザーが申請者または所有者であるリクエストを全て削除する。
	DeleteByUser(ctx context.Context, userID string) error
}

// Repositories は同一の接続またはトランザクションに束縛されたリポジトリの組。
type Repositories struct {
	Users    UserRepository
	Books    BookRepository
	Requests BorrowRequestRepository
}

// TxRunner はトランザクション境界を提供するインターフェース。
type TxRunner interface {
	// WithinTx はfnを単一トランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store はトランザクション外のリポジトリとトランザクション境界をまとめたもの。
type Store interface {
	TxRunner
	// Repos はトランザクション外で使用するリポジトリを返す。
	Repos() Repositories
}
