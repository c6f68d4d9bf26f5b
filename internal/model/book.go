package model

import (
	"fmt"
	"strings"
	"time"
)

// BookStatus は書籍の貸出状態。
type BookStatus string

// 定義済み書籍ステータス
// BookRequested は表示用の値で、ライフサイクル処理では書き込まれない。
const (
	BookAvailable BookStatus = "Available"
	BookRequested BookStatus = "Requested"
	BookBorrowed  BookStatus = "Borrowed"
)

// ParseBookStatus は大文字小文字を区別せずに文字列をBookStatusに変換する。
func ParseBookStatus(s string) (BookStatus, error) {
	trimmed := strings.TrimSpace(s)
	for _, st := range []BookStatus{BookAvailable, BookRequested, BookBorrowed} {
		if strings.EqualFold(trimmed, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown book status: %q", s)
}

// Book は共有される書籍を表す。
type Book struct {
	ID                 string
	Title              string
	Author             string
	Description        string
	Genre              string
	ImageURL           string
	OwnerID            string
	Status             BookStatus
	BorrowedBy         string     // 貸出中の借り手ID。貸出中でなければ空文字
	ExpectedReturnDate *time.Time // 返却期限。貸出中のみ設定される
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsLent は書籍が貸出中かどうかを返す。
func (b *Book) IsLent() bool {
	return b.Status == BookBorrowed
}

// MarkBorrowed は書籍を指定ユーザーへの貸出中状態にする。
func (b *Book) MarkBorrowed(borrowerID string, now time.Time) {
	b.Status = BookBorrowed
	b.BorrowedBy = borrowerID
	b.UpdatedAt = now
}

// MarkAvailable は書籍を貸出可能状態に戻し、借り手と返却期限を消去する。
func (b *Book) MarkAvailable(now time.Time) {
	b.Status = BookAvailable
	b.BorrowedBy = ""
	b.ExpectedReturnDate = nil
	b.UpdatedAt = now
}

// BookFilter は書籍検索の条件。空の項目は条件に含めない。
type BookFilter struct {
	Title         string      // タイトル部分一致
	Genre         string      // ジャンル部分一致
	TitleOrAuthor string      // タイトルまたは著者の部分一致
	Status        *BookStatus // ステータス完全一致
}
