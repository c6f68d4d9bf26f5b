package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/foliora/internal/auth"
	"github.com/hitoshi/foliora/internal/catalog"
	"github.com/hitoshi/foliora/internal/middleware"
	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/profile"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	signUpFn    func(ctx context.Context, in auth.SignUpInput) (*model.User, error)
	loginFn     func(ctx context.Context, username, password string) (*auth.LoginResult, error)
	getUserFn   func(ctx context.Context, userID string) (*model.User, error)
	listUsersFn func(ctx context.Context, role model.Role) ([]*model.User, error)
}

func (m *mockUserService) SignUp(ctx context.Context, in auth.SignUpInput) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return &model.User{ID: "user-new", Username: in.Username, Email: in.Email, Role: model.RoleUser}, nil
}

func (m *mockUserService) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockUserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return &model.User{ID: userID, Username: userID, Role: model.RoleUser}, nil
}

func (m *mockUserService) ListUsers(ctx context.Context, role model.Role) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, role)
	}
	return nil, nil
}

// mockBookService はBookServiceInterfaceのモック実装。
type mockBookService struct {
	addBookFn    func(ctx context.Context, ownerID string, in catalog.BookInput) (*model.Book, error)
	updateBookFn func(ctx context.Context, actorID, bookID string, patch catalog.BookInput) (*model.Book, error)
	deleteBookFn func(ctx context.Context, actorID, bookID string) error
	getBookFn    func(ctx context.Context, bookID string) (*catalog.BookDetail, error)
	listAllFn    func(ctx context.Context) ([]*model.Book, error)
	recentFn     func(ctx context.Context) ([]*model.Book, error)
	myBooksFn    func(ctx context.Context, ownerID string) ([]*model.Book, error)
	searchFn     func(ctx context.Context, name string) ([]*model.Book, error)
	filterFn     func(ctx context.Context, genre, author, status string) ([]*model.Book, error)
}

func (m *mockBookService) AddBook(ctx context.Context, ownerID string, in catalog.BookInput) (*model.Book, error) {
	if m.addBookFn != nil {
		return m.addBookFn(ctx, ownerID, in)
	}
	return &model.Book{ID: "book-new", Title: in.Title, OwnerID: ownerID, Status: model.BookAvailable}, nil
}

func (m *mockBookService) UpdateBook(ctx context.Context, actorID, bookID string, patch catalog.BookInput) (*model.Book, error) {
	if m.updateBookFn != nil {
		return m.updateBookFn(ctx, actorID, bookID, patch)
	}
	return &model.Book{ID: bookID, OwnerID: actorID}, nil
}

func (m *mockBookService) DeleteBook(ctx context.Context, actorID, bookID string) error {
	if m.deleteBookFn != nil {
		return m.deleteBookFn(ctx, actorID, bookID)
	}
	return nil
}

func (m *mockBookService) GetBook(ctx context.Context, bookID string) (*catalog.BookDetail, error) {
	if m.getBookFn != nil {
		return m.getBookFn(ctx, bookID)
	}
	return nil, model.NewBookNotFoundError(bookID)
}

func (m *mockBookService) ListAll(ctx context.Context) ([]*model.Book, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockBookService) Recent(ctx context.Context) ([]*model.Book, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx)
	}
	return nil, nil
}

func (m *mockBookService) MyBooks(ctx context.Context, ownerID string) ([]*model.Book, error) {
	if m.myBooksFn != nil {
		return m.myBooksFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockBookService) Search(ctx context.Context, name string) ([]*model.Book, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, name)
	}
	return nil, nil
}

func (m *mockBookService) Filter(ctx context.Context, genre, author, status string) ([]*model.Book, error) {
	if m.filterFn != nil {
		return m.filterFn(ctx, genre, author, status)
	}
	return nil, nil
}

// mockBorrowService はBorrowServiceInterfaceのモック実装。
type mockBorrowService struct {
	requestBookFn       func(ctx context.Context, actorID, bookID string) (*model.BorrowRequest, error)
	decideFn            func(ctx context.Context, actorID, requestID, rawStatus string) (*model.BorrowRequest, *model.Book, error)
	requestReturnFn     func(ctx context.Context, actorID, requestID string) (*model.BorrowRequest, error)
	confirmReturnFn     func(ctx context.Context, actorID, requestID string) (*model.BorrowRequest, error)
	cancelFn            func(ctx context.Context, actorID, requestID string) error
	setReturnDeadlineFn func(ctx context.Context, actorID, requestID string, days int) (*model.Book, error)
	sendReminderFn      func(ctx context.Context, actorID, requestID string) error
	incomingRequestsFn  func(ctx context.Context, ownerID string) ([]model.RequestView, error)
	myRequestsFn        func(ctx context.Context, requesterID string) ([]model.RequestView, error)
	borrowHistoryFn     func(ctx context.Context, requesterID string) ([]model.RequestView, error)
	borrowedBooksFn     func(ctx context.Context, userID string) ([]model.BorrowedBook, error)
}

func (m *mockBorrowService) RequestBook(ctx context.Context, actorID, bookID string) (*model.BorrowRequest, error) {
	if m.requestBookFn != nil {
		return m.requestBookFn(ctx, actorID, bookID)
	}
	return &model.BorrowRequest{ID: "req-new", BookID: bookID, RequesterID: actorID, Status: model.RequestRequested}, nil
}

func (m *mockBorrowService) Decide(ctx context.Context, actorID, requestID, rawStatus string) (*model.BorrowRequest, *model.Book, error) {
	if m.decideFn != nil {
		return m.decideFn(ctx, actorID, requestID, rawStatus)
	}
	return nil, nil, model.NewRequestNotFoundError(requestID)
}

func (m *mockBorrowService) RequestReturn(ctx context.Context, actorID, requestID string) (*model.BorrowRequest, error) {
	if m.requestReturnFn != nil {
		return m.requestReturnFn(ctx, actorID, requestID)
	}
	return nil, model.NewRequestNotFoundError(requestID)
}

func (m *mockBorrowService) ConfirmReturn(ctx context.Context, actorID, requestID string) (*model.BorrowRequest, error) {
	if m.confirmReturnFn != nil {
		return m.confirmReturnFn(ctx, actorID, requestID)
	}
	return nil, model.NewRequestNotFoundError(requestID)
}

func (m *mockBorrowService) Cancel(ctx context.Context, actorID, requestID string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, actorID, requestID)
	}
	return nil
}

func (m *mockBorrowService) SetReturnDeadline(ctx context.Context, actorID, requestID string, days int) (*model.Book, error) {
	if m.setReturnDeadlineFn != nil {
		return m.setReturnDeadlineFn(ctx, actorID, requestID, days)
	}
	return nil, model.NewRequestNotFoundError(requestID)
}

func (m *mockBorrowService) SendReminder(ctx context.Context, actorID, requestID string) error {
	if m.sendReminderFn != nil {
		return m.sendReminderFn(ctx, actorID, requestID)
	}
	return nil
}

func (m *mockBorrowService) IncomingRequests(ctx context.Context, ownerID string) ([]model.RequestView, error) {
	if m.incomingRequestsFn != nil {
		return m.incomingRequestsFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockBorrowService) MyRequests(ctx context.Context, requesterID string) ([]model.RequestView, error) {
	if m.myRequestsFn != nil {
		return m.myRequestsFn(ctx, requesterID)
	}
	return nil, nil
}

func (m *mockBorrowService) BorrowHistory(ctx context.Context, requesterID string) ([]model.RequestView, error) {
	if m.borrowHistoryFn != nil {
		return m.borrowHistoryFn(ctx, requesterID)
	}
	return nil, nil
}

func (m *mockBorrowService) BorrowedBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error) {
	if m.borrowedBooksFn != nil {
		return m.borrowedBooksFn(ctx, userID)
	}
	return nil, nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	meFn             func(ctx context.Context, userID string) (*model.User, error)
	updateFn         func(ctx context.Context, userID string, in profile.UpdateInput) (*model.User, error)
	changePasswordFn func(ctx context.Context, userID, oldPassword, newPassword string) error
	updateAvatarFn   func(ctx context.Context, userID string, upload profile.AvatarUpload) (*model.User, error)
	deleteFn         func(ctx context.Context, userID string) error
	statsFn          func(ctx context.Context, userID string) (*model.UserStats, error)
}

func (m *mockProfileService) Me(ctx context.Context, userID string) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockProfileService) Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockProfileService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, oldPassword, newPassword)
	}
	return nil
}

func (m *mockProfileService) UpdateAvatar(ctx context.Context, userID string, upload profile.AvatarUpload) (*model.User, error) {
	if m.updateAvatarFn != nil {
		return m.updateAvatarFn(ctx, userID, upload)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockProfileService) Delete(ctx context.Context, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

func (m *mockProfileService) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.UserStats{}, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストに一般ユーザーを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), userID, model.RoleUser))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディから統一エラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディを汎用マップにパースするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}
