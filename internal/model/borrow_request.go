package model

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus は貸出リクエストの状態。
type RequestStatus string

// 定義済みリクエストステータス
// RequestBorrowed は旧データとの互換のための値で、ライフサイクル処理では書き込まれない。
const (
	RequestRequested       RequestStatus = "Requested"
	RequestAccepted        RequestStatus = "Accepted"
	RequestRejected        RequestStatus = "Rejected"
	RequestBorrowed        RequestStatus = "Borrowed"
	RequestReturnRequested RequestStatus = "ReturnRequested"
	RequestReturned        RequestStatus = "Returned"
)

// IsActiveLoan はリクエストが書籍の現在の貸出を表すかどうかを返す。
func (s RequestStatus) IsActiveLoan() bool {
	return s == RequestAccepted || s == RequestReturnRequested
}

// Decision は所有者によるリクエストへの判断。
type Decision string

// 定義済み判断
const (
	DecisionAccept Decision = "accepted"
	DecisionReject Decision = "rejected"
)

// ParseDecision は前後の空白を除去し小文字化した文字列をDecisionに変換する。
// 空文字と accepted/rejected 以外は*APIErrorを返す。
func ParseDecision(raw string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(raw))); d {
	case DecisionAccept, DecisionReject:
		return d, nil
	default:
		return "", NewInvalidStatusError(raw)
	}
}

// MaxDeadlineDays は返却期限として指定できる最大日数（約10年）。
const MaxDeadlineDays = 3650

// ValidateDeadlineDays は返却期限の日数が1以上MaxDeadlineDays以下であることを検証する。
func ValidateDeadlineDays(days int) error {
	if days < 1 || days > MaxDeadlineDays {
		return NewInvalidDaysError()
	}
	return nil
}

// BorrowRequest は書籍の貸出リクエストを表す。
type BorrowRequest struct {
	ID                 string
	BookID             string
	RequesterID        string
	OwnerID            string // リクエスト作成時点の書籍所有者
	Status             RequestStatus
	RequestDate        time.Time
	ReturnRequestedAt  *time.Time
	ReturnDate         *time.Time
	ExpectedReturnDate *time.Time
	LastReminderAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// String はログ出力用の表現を返す。
func (r *BorrowRequest) String() string {
	return fmt.Sprintf("BorrowRequest{id=%s book=%s status=%s}", r.ID, r.BookID, r.Status)
}

// RequestView はリクエストに書籍と関係ユーザーの情報を埋め込んだ表示用データ。
type RequestView struct {
	Request   BorrowRequest
	Book      *Book
	Requester *UserSummary
	Owner     *UserSummary
}

// BorrowedBook は借りている書籍と現在の貸出リクエストの組。
type BorrowedBook struct {
	Book    Book
	Owner   *UserSummary
	Request *BorrowRequest
}

// OverdueLoan は返却期限を過ぎた貸出の通知対象。
type OverdueLoan struct {
	RequestID      string
	BookTitle      string
	BorrowerEmail  string
	BorrowerName   string
	ExpectedReturn time.Time
}
