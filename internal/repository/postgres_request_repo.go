package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/foliora/internal/model"
)

const requestColumns = `id, book_id, requester_id, owner_id, status, request_date,
	return_requested_at, return_date, expected_return_date, last_reminder_at,
	created_at, updated_at`

// PostgresBorrowRequestRepo はPostgreSQLを使用した貸出リクエストリポジトリ。
type PostgresBorrowRequestRepo struct {
	db dbtx
}

// NewPostgresBorrowRequestRepo はPostgresBorrowRequestRepoを生成する。
func NewPostgresBorrowRequestRepo(db *sql.DB) *PostgresBorrowRequestRepo {
	return &PostgresBorrowRequestRepo{db: sqlxDB(db)}
}

func scanRequest(row interface{ Scan(...any) error }) (*model.BorrowRequest, error) {
	req := &model.BorrowRequest{}
	var status string
	var returnRequestedAt, returnDate, expectedReturn, lastReminder sql.NullTime
	err := row.Scan(&req.ID, &req.BookID, &req.RequesterID, &req.OwnerID, &status,
		&req.RequestDate, &returnRequestedAt, &returnDate, &expectedReturn, &lastReminder,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Status = model.RequestStatus(status)
	req.ReturnRequestedAt = timePtr(returnRequestedAt)
	req.ReturnDate = timePtr(returnDate)
	req.ExpectedReturnDate = timePtr(expectedReturn)
	req.LastReminderAt = timePtr(lastReminder)
	return req, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *PostgresBorrowRequestRepo) findOne(ctx context.Context, where string, args ...any) (*model.BorrowRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM borrow_requests WHERE `+where+` LIMIT 1`, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *PostgresBorrowRequestRepo) list(ctx context.Context, query string, args ...any) ([]*model.BorrowRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*model.BorrowRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan borrow request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// FindByID は指定IDのリクエストを取得する。見つからない場合やIDがUUIDでない場合はnilを返す。
func (r *PostgresBorrowRequestRepo) FindByID(ctx context.Context, id string) (*model.BorrowRequest, error) {
	if !isUUID(id) {
		return nil, nil
	}
	req, err := r.findOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find borrow request by ID: %w", err)
	}
	return req, nil
}

// FindByBookAndStatus は書籍とステータスが一致するリクエストを1件返す。
func (r *PostgresBorrowRequestRepo) FindByBookAndStatus(ctx context.Context, bookID string, status model.RequestStatus) (*model.BorrowRequest, error) {
	req, err := r.findOne(ctx, `book_id = $1 AND status = $2`, bookID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to find borrow request by status: %w", err)
	}
	return req, nil
}

// FindPending は申請者が書籍に対して出している保留中のリクエストを返す。
func (r *PostgresBorrowRequestRepo) FindPending(ctx context.Context, bookID, requesterID string) (*model.BorrowRequest, error) {
	req, err := r.findOne(ctx, `book_id = $1 AND requester_id = $2 AND status = $3`,
		bookID, requesterID, string(model.RequestRequested))
	if err != nil {
		return nil, fmt.Errorf("failed to find pending borrow request: %w", err)
	}
	return req, nil
}

// FindActiveByBook は書籍の現在の貸出を返す。
func (r *PostgresBorrowRequestRepo) FindActiveByBook(ctx context.Context, bookID string) (*model.BorrowRequest, error) {
	req, err := r.findOne(ctx, `book_id = $1 AND status IN ($2, $3)`,
		bookID, string(model.RequestAccepted), string(model.RequestReturnRequested))
	if err != nil {
		return nil, fmt.Errorf("failed to find active loan: %w", err)
	}
	return req, nil
}

// ListByOwner は所有者宛てのリクエストを新しい順に返す。
func (r *PostgresBorrowRequestRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.BorrowRequest, error) {
	reqs, err := r.list(ctx,
		`SELECT `+requestColumns+` FROM borrow_requests WHERE owner_id = $1 ORDER BY request_date DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}
	return reqs, nil
}

// ListByRequester は申請者のリクエストを新しい順に返す。
func (r *PostgresBorrowRequestRepo) ListByRequester(ctx context.Context, requesterID string) ([]*model.BorrowRequest, error) {
	reqs, err := r.list(ctx,
		`SELECT `+requestColumns+` FROM borrow_requests WHERE requester_id = $1 ORDER BY request_date DESC`,
		requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list my requests: %w", err)
	}
	return reqs, nil
}

// ListReturnedByRequester は申請者の返却済みリクエストを返却日の新しい順に返す。
func (r *PostgresBorrowRequestRepo) ListReturnedByRequester(ctx context.Context, requesterID string) ([]*model.BorrowRequest, error) {
	reqs, err := r.list(ctx,
		`SELECT `+requestColumns+` FROM borrow_requests
		 WHERE requester_id = $1 AND status = $2
		 ORDER BY return_date DESC NULLS LAST`,
		requesterID, string(model.RequestReturned))
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow history: %w", err)
	}
	return reqs, nil
}

// CountByRequester は申請者のリクエスト総数を返す。
func (r *PostgresBorrowRequestRepo) CountByRequester(ctx context.Context, requesterID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_requests WHERE requester_id = $1`, requesterID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return n, nil
}

// ListOverdue は返却期限を過ぎた貸出のうち、remindedBefore以前に通知済みか未通知のものを返す。
func (r *PostgresBorrowRequestRepo) ListOverdue(ctx context.Context, now, remindedBefore time.Time) ([]model.OverdueLoan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT br.id, b.title, u.email, u.username, b.expected_return_date
		 FROM borrow_requests br
		 JOIN books b ON b.id = br.book_id
		 JOIN users u ON u.id = br.requester_id
		 WHERE br.status = $1
		   AND b.expected_return_date IS NOT NULL
		   AND b.expected_return_date < $2
		   AND (br.last_reminder_at IS NULL OR br.last_reminder_at <= $3)
		 ORDER BY b.expected_return_date ASC`,
		string(model.RequestAccepted), now, remindedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	defer rows.Close()

	var loans []model.OverdueLoan
	for rows.Next() {
		var l model.OverdueLoan
		if err := rows.Scan(&l.RequestID, &l.BookTitle, &l.BorrowerEmail, &l.BorrowerName, &l.ExpectedReturn); err != nil {
			return nil, fmt.Errorf("failed to scan overdue loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overdue loans: %w", err)
	}
	return loans, nil
}

// Create はリクエストを作成する。
// 保留中リクエストや貸出の重複は*ErrDuplicateを返す。
func (r *PostgresBorrowRequestRepo) Create(ctx context.Context, req *model.BorrowRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO borrow_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.BookID, req.RequesterID, req.OwnerID, string(req.Status), req.RequestDate,
		req.ReturnRequestedAt, req.ReturnDate, req.ExpectedReturnDate, req.LastReminderAt,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert borrow request: %w", err)
	}
	return nil
}

// Update はリクエストを上書き更新する。
func (r *PostgresBorrowRequestRepo) Update(ctx context.Context, req *model.BorrowRequest) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE borrow_requests
		 SET status = $2, return_requested_at = $3, return_date = $4,
		     expected_return_date = $5, last_reminder_at = $6, updated_at = $7
		 WHERE id = $1`,
		req.ID, string(req.Status), req.ReturnRequestedAt, req.ReturnDate,
		req.ExpectedReturnDate, req.LastReminderAt, req.UpdatedAt,
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update borrow request: %w", err)
	}
	return requireAffected(result, "borrow request", req.ID)
}

// RejectPendingSiblings は同じ書籍の保留中リクエストのうちexceptID以外をRejectedにする。
func (r *PostgresBorrowRequestRepo) RejectPendingSiblings(ctx context.Context, bookID, exceptID string, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE borrow_requests SET status = $1, updated_at = $2
		 WHERE book_id = $3 AND id <> $4 AND status = $5`,
		string(model.RequestRejected), now, bookID, exceptID, string(model.RequestRequested),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reject sibling requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// MarkReminded はリマインダー送信日時を記録する。
func (r *PostgresBorrowRequestRepo) MarkReminded(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE borrow_requests SET last_reminder_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark reminded: %w", err)
	}
	return requireAffected(result, "borrow request", id)
}

// DeleteByID は指定IDのリクエストを削除する。
func (r *PostgresBorrowRequestRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM borrow_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete borrow request: %w", err)
	}
	return requireAffected(result, "borrow request", id)
}

// DeleteByUser は指定ユーザーが申請者または所有者であるリクエストを全て削除する。
func (r *PostgresBorrowRequestRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM borrow_requests WHERE requester_id = $1 OR owner_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete borrow requests by user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BorrowRequestRepository = (*PostgresBorrowRequestRepo)(nil)
