// Package memory はプロセス内メモリに保持するStore実装を提供する。
// テストとSTORE_DRIVER=memoryでの起動に使用する。
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/repository"
)

type tables struct {
	users    map[string]model.User
	books    map[string]model.Book
	requests map[string]model.BorrowRequest
}

func (t *tables) clone() tables {
	c := tables{
		users:    make(map[string]model.User, len(t.users)),
		books:    make(map[string]model.Book, len(t.books)),
		requests: make(map[string]model.BorrowRequest, len(t.requests)),
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.books {
		c.books[k] = v
	}
	for k, v := range t.requests {
		c.requests[k] = v
	}
	return c
}

// Store はメモリ上のStore実装。
// トランザクション中はストア全体のロックを保持するため、トランザクションは直列に実行される。
type Store struct {
	mu   sync.RWMutex
	data tables
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{data: tables{
		users:    make(map[string]model.User),
		books:    make(map[string]model.Book),
		requests: make(map[string]model.BorrowRequest),
	}}
}

// Repos はトランザクション外で使用するリポジトリを返す。
func (s *Store) Repos() repository.Repositories {
	return s.view(false)
}

// WithinTx はfnをストア全体の排他ロック下で実行する。
// fnがエラーを返した場合は実行前の状態に戻す。
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, s.view(true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) view(inTx bool) repository.Repositories {
	v := &view{s: s, inTx: inTx}
	return repository.Repositories{
		Users:    (*userRepo)(v),
		Books:    (*bookRepo)(v),
		Requests: (*requestRepo)(v),
	}
}

// view はロック取得の要否を切り替える。トランザクション内ではロックを取得済み。
type view struct {
	s    *Store
	inTx bool
}

func (v *view) read() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v *view) write() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
}

// ---- users ----

type userRepo view

func (r *userRepo) v() *view { return (*view)(r) }

func (r *userRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	defer r.v().read()()
	if u, ok := r.s.data.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	defer r.v().read()()
	for _, u := range r.s.data.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	defer r.v().read()()
	for _, u := range r.s.data.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *userRepo) FindSummaries(_ context.Context, ids []string) (map[string]model.UserSummary, error) {
	defer r.v().read()()
	result := make(map[string]model.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := r.s.data.users[id]; ok {
			result[id] = u.Summary()
		}
	}
	return result, nil
}

func (r *userRepo) List(_ context.Context) ([]*model.User, error) {
	defer r.v().read()()
	users := make([]*model.User, 0, len(r.s.data.users))
	for _, u := range r.s.data.users {
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (r *userRepo) checkUnique(user *model.User) error {
	for _, u := range r.s.data.users {
		if u.ID == user.ID {
			continue
		}
		if u.Username == user.Username {
			return &repository.ErrDuplicate{Constraint: repository.ConstraintUsername}
		}
		if strings.EqualFold(u.Email, user.Email) {
			return &repository.ErrDuplicate{Constraint: repository.ConstraintEmail}
		}
	}
	return nil
}

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	defer r.v().write()()
	if err := r.checkUnique(user); err != nil {
		return err
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *userRepo) Update(_ context.Context, user *model.User) error {
	defer r.v().write()()
	if _, ok := r.s.data.users[user.ID]; !ok {
		return notFound("user", user.ID)
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}
	r.s.data.users[user.ID] = *user
	return nil
}

// DeleteByID はユーザーを削除し、外部キーのCASCADEと同様に関連データも削除する。
func (r *userRepo) DeleteByID(_ context.Context, id string) error {
	defer r.v().write()()
	if _, ok := r.s.data.users[id]; !ok {
		return notFound("user", id)
	}
	delete(r.s.data.users, id)
	for bid, b := range r.s.data.books {
		if b.OwnerID == id {
			delete(r.s.data.books, bid)
		}
	}
	for rid, req := range r.s.data.requests {
		_, bookAlive := r.s.data.books[req.BookID]
		if req.RequesterID == id || req.OwnerID == id || !bookAlive {
			delete(r.s.data.requests, rid)
		}
	}
	return nil
}

// ---- books ----

type bookRepo view

func (r *bookRepo) v() *view { return (*view)(r) }

func (r *bookRepo) FindByID(_ context.Context, id string) (*model.Book, error) {
	defer r.v().read()()
	if b, ok := r.s.data.books[id]; ok {
		return &b, nil
	}
	return nil, nil
}

// LockByID はトランザクション内ではストア全体がロック済みのため、FindByIDと同じ動作になる。
func (r *bookRepo) LockByID(ctx context.Context, id string) (*model.Book, error) {
	return r.FindByID(ctx, id)
}

func (r *bookRepo) FindByOwnerTitleAuthor(_ context.Context, ownerID, title, author string) (*model.Book, error) {
	defer r.v().read()()
	for _, b := range r.s.data.books {
		if b.OwnerID == ownerID && strings.EqualFold(b.Title, title) && strings.EqualFold(b.Author, author) {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *bookRepo) filter(match func(*model.Book) bool) []*model.Book {
	var books []*model.Book
	for _, b := range r.s.data.books {
		if match(&b) {
			books = append(books, &b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.After(books[j].CreatedAt) })
	return books
}

func (r *bookRepo) List(_ context.Context, limit int) ([]*model.Book, error) {
	defer r.v().read()()
	books := r.filter(func(*model.Book) bool { return true })
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (r *bookRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.Book, error) {
	defer r.v().read()()
	return r.filter(func(b *model.Book) bool { return b.OwnerID == ownerID }), nil
}

func (r *bookRepo) ListBorrowedBy(_ context.Context, userID string) ([]*model.Book, error) {
	defer r.v().read()()
	return r.filter(func(b *model.Book) bool { return b.BorrowedBy == userID }), nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (r *bookRepo) Search(_ context.Context, f model.BookFilter) ([]*model.Book, error) {
	defer r.v().read()()
	return r.filter(func(b *model.Book) bool {
		if f.Title != "" && !containsFold(b.Title, f.Title) {
			return false
		}
		if f.Genre != "" && !containsFold(b.Genre, f.Genre) {
			return false
		}
		if f.TitleOrAuthor != "" && !containsFold(b.Title, f.TitleOrAuthor) && !containsFold(b.Author, f.TitleOrAuthor) {
			return false
		}
		if f.Status != nil && b.Status != *f.Status {
			return false
		}
		return true
	}), nil
}

func (r *bookRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	books, _ := r.ListByOwner(ctx, ownerID)
	return len(books), nil
}

func (r *bookRepo) CountBorrowedBy(ctx context.Context, userID string) (int, error) {
	books, _ := r.ListBorrowedBy(ctx, userID)
	return len(books), nil
}

func (r *bookRepo) CountLentByOwner(_ context.Context, ownerID string) (int, error) {
	defer r.v().read()()
	return len(r.filter(func(b *model.Book) bool { return b.OwnerID == ownerID && b.Status == model.BookBorrowed })), nil
}

func (r *bookRepo) checkUnique(book *model.Book) error {
	for _, b := range r.s.data.books {
		if b.ID != book.ID && b.OwnerID == book.OwnerID &&
			strings.EqualFold(b.Title, book.Title) && strings.EqualFold(b.Author, book.Author) {
			return &repository.ErrDuplicate{Constraint: repository.ConstraintBookTitle}
		}
	}
	return nil
}

func (r *bookRepo) Create(_ context.Context, book *model.Book) error {
	defer r.v().write()()
	if err := r.checkUnique(book); err != nil {
		return err
	}
	r.s.data.books[book.ID] = *book
	return nil
}

func (r *bookRepo) Update(_ context.Context, book *model.Book) error {
	defer r.v().write()()
	if _, ok := r.s.data.books[book.ID]; !ok {
		return notFound("book", book.ID)
	}
	if err := r.checkUnique(book); err != nil {
		return err
	}
	r.s.data.books[book.ID] = *book
	return nil
}

func (r *bookRepo) DeleteByID(_ context.Context, id string) error {
	defer r.v().write()()
	if _, ok := r.s.data.books[id]; !ok {
		return notFound("book", id)
	}
	delete(r.s.data.books, id)
	for rid, req := range r.s.data.requests {
		if req.BookID == id {
			delete(r.s.data.requests, rid)
		}
	}
	return nil
}

func (r *bookRepo) DeleteByOwner(_ context.Context, ownerID string) error {
	defer r.v().write()()
	for id, b := range r.s.data.books {
		if b.OwnerID != ownerID {
			continue
		}
		delete(r.s.data.books, id)
		for rid, req := range r.s.data.requests {
			if req.BookID == id {
				delete(r.s.data.requests, rid)
			}
		}
	}
	return nil
}

// ---- borrow requests ----

type requestRepo view

func (r *requestRepo) v() *view { return (*view)(r) }

func (r *requestRepo) first(match func(*model.BorrowRequest) bool) *model.BorrowRequest {
	for _, req := range r.s.data.requests {
		if match(&req) {
			return &req
		}
	}
	return nil
}

func (r *requestRepo) collect(match func(*model.BorrowRequest) bool, less func(a, b *model.BorrowRequest) bool) []*model.BorrowRequest {
	var reqs []*model.BorrowRequest
	for _, req := range r.s.data.requests {
		if match(&req) {
			reqs = append(reqs, &req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return less(reqs[i], reqs[j]) })
	return reqs
}

func newestRequestFirst(a, b *model.BorrowRequest) bool {
	return a.RequestDate.After(b.RequestDate)
}

func (r *requestRepo) FindByID(_ context.Context, id string) (*model.BorrowRequest, error) {
	defer r.v().read()()
	if req, ok := r.s.data.requests[id]; ok {
		return &req, nil
	}
	return nil, nil
}

func (r *requestRepo) FindByBookAndStatus(_ context.Context, bookID string, status model.RequestStatus) (*model.BorrowRequest, error) {
	defer r.v().read()()
	return r.first(func(req *model.BorrowRequest) bool {
		return req.BookID == bookID && req.Status == status
	}), nil
}

func (r *requestRepo) FindPending(_ context.Context, bookID, requesterID string) (*model.BorrowRequest, error) {
	defer r.v().read()()
	return r.first(func(req *model.BorrowRequest) bool {
		return req.BookID == bookID && req.RequesterID == requesterID && req.Status == model.RequestRequested
	}), nil
}

func (r *requestRepo) FindActiveByBook(_ context.Context, bookID string) (*model.BorrowRequest, error) {
	defer r.v().read()()
	return r.first(func(req *model.BorrowRequest) bool {
		return req.BookID == bookID && req.Status.IsActiveLoan()
	}), nil
}

func (r *requestRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.BorrowRequest, error) {
	defer r.v().read()()
	return r.collect(func(req *model.BorrowRequest) bool { return req.OwnerID == ownerID }, newestRequestFirst), nil
}

func (r *requestRepo) ListByRequester(_ context.Context, requesterID string) ([]*model.BorrowRequest, error) {
	defer r.v().read()()
	return r.collect(func(req *model.BorrowRequest) bool { return req.RequesterID == requesterID }, newestRequestFirst), nil
}

func (r *requestRepo) ListReturnedByRequester(_ context.Context, requesterID string) ([]*model.BorrowRequest, error) {
	defer r.v().read()()
	return r.collect(
		func(req *model.BorrowRequest) bool {
			return req.RequesterID == requesterID && req.Status == model.RequestReturned
		},
		func(a, b *model.BorrowRequest) bool {
			if a.ReturnDate == nil || b.ReturnDate == nil {
				return b.ReturnDate == nil && a.ReturnDate != nil
			}
			return a.ReturnDate.After(*b.ReturnDate)
		},
	), nil
}

func (r *requestRepo) CountByRequester(ctx context.Context, requesterID string) (int, error) {
	reqs, _ := r.ListByRequester(ctx, requesterID)
	return len(reqs), nil
}

func (r *requestRepo) ListOverdue(_ context.Context, now, remindedBefore time.Time) ([]model.OverdueLoan, error) {
	defer r.v().read()()
	var loans []model.OverdueLoan
	for _, req := range r.s.data.requests {
		if req.Status != model.RequestAccepted {
			continue
		}
		if req.LastReminderAt != nil && req.LastReminderAt.After(remindedBefore) {
			continue
		}
		book, ok := r.s.data.books[req.BookID]
		if !ok || book.ExpectedReturnDate == nil || !book.ExpectedReturnDate.Before(now) {
			continue
		}
		borrower, ok := r.s.data.users[req.RequesterID]
		if !ok {
			continue
		}
		loans = append(loans, model.OverdueLoan{
			RequestID:      req.ID,
			BookTitle:      book.Title,
			BorrowerEmail:  borrower.Email,
			BorrowerName:   borrower.Username,
			ExpectedReturn: *book.ExpectedReturnDate,
		})
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ExpectedReturn.Before(loans[j].ExpectedReturn) })
	return loans, nil
}

// checkUnique はPostgreSQLの部分ユニークインデックスと同じ制約を検証する。
func (r *requestRepo) checkUnique(req *model.BorrowRequest) error {
	for _, other := range r.s.data.requests {
		if other.ID == req.ID || other.BookID != req.BookID {
			continue
		}
		if req.Status.IsActiveLoan() && other.Status.IsActiveLoan() {
			return &repository.ErrDuplicate{Constraint: repository.ConstraintActiveLoan}
		}
		if req.Status == model.RequestRequested && other.Status == model.RequestRequested &&
			other.RequesterID == req.RequesterID {
			return &repository.ErrDuplicate{Constraint: repository.ConstraintPendingByUser}
		}
	}
	return nil
}

func (r *requestRepo) Create(_ context.Context, req *model.BorrowRequest) error {
	defer r.v().write()()
	if _, ok := r.s.data.books[req.BookID]; !ok {
		return fmt.Errorf("book %s does not exist", req.BookID)
	}
	if err := r.checkUnique(req); err != nil {
		return err
	}
	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *requestRepo) Update(_ context.Context, req *model.BorrowRequest) error {
	defer r.v().write()()
	if _, ok := r.s.data.requests[req.ID]; !ok {
		return notFound("borrow request", req.ID)
	}
	if err := r.checkUnique(req); err != nil {
		return err
	}
	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *requestRepo) RejectPendingSiblings(_ context.Context, bookID, exceptID string, now time.Time) (int, error) {
	defer r.v().write()()
	n := 0
	for id, req := range r.s.data.requests {
		if req.BookID == bookID && id != exceptID && req.Status == model.RequestRequested {
			req.Status = model.RequestRejected
			req.UpdatedAt = now
			r.s.data.requests[id] = req
			n++
		}
	}
	return n, nil
}

func (r *requestRepo) MarkReminded(_ context.Context, id string, at time.Time) error {
	defer r.v().write()()
	req, ok := r.s.data.requests[id]
	if !ok {
		return notFound("borrow request", id)
	}
	req.LastReminderAt = &at
	r.s.data.requests[id] = req
	return nil
}

func (r *requestRepo) DeleteByID(_ context.Context, id string) error {
	defer r.v().write()()
	if _, ok := r.s.data.requests[id]; !ok {
		return notFound("borrow request", id)
	}
	delete(r.s.data.requests, id)
	return nil
}

func (r *requestRepo) DeleteByUser(_ context.Context, userID string) error {
	defer r.v().write()()
	for id, req := range r.s.data.requests {
		if req.RequesterID == userID || req.OwnerID == userID {
			delete(r.s.data.requests, id)
		}
	}
	return nil
}

var _ repository.Store = (*Store)(nil)
