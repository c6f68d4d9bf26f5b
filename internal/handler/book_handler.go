package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/foliora/internal/catalog"
	"github.com/hitoshi/foliora/internal/model"
)

// BookServiceInterface は書籍ハンドラーが必要とするカタログサービスのインターフェース。
type BookServiceInterface interface {
	AddBook(ctx context.Context, ownerID string, in catalog.BookInput) (*model.Book, error)
	UpdateBook(ctx context.Context, actorID, bookID string, patch catalog.BookInput) (*model.Book, error)
	DeleteBook(ctx context.Context, actorID, bookID string) error
	GetBook(ctx context.Context, bookID string) (*catalog.BookDetail, error)
	ListAll(ctx context.Context) ([]*model.Book, error)
	Recent(ctx context.Context) ([]*model.Book, error)
	MyBooks(ctx context.Context, ownerID string) ([]*model.Book, error)
	Search(ctx context.Context, name string) ([]*model.Book, error)
	Filter(ctx context.Context, genre, author, status string) ([]*model.Book, error)
}

// BorrowedBooksLister は借りている書籍の一覧を返すインターフェース。
type BorrowedBooksLister interface {
	BorrowedBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error)
}

// BookHandler は書籍管理のHTTPハンドラー。
type BookHandler struct {
	service  BookServiceInterface
	borrowed BorrowedBooksLister
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service BookServiceInterface, borrowed BorrowedBooksLister) *BookHandler {
	return &BookHandler{
		service:  service,
		borrowed: borrowed,
	}
}

// bookRequest は書籍の登録・更新リクエストのボディ。
type bookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	ImageURL    string `json:"imageUrl"`
}

func (b bookRequest) toInput() catalog.BookInput {
	return catalog.BookInput{
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genre:       b.Genre,
		ImageURL:    b.ImageURL,
	}
}

// AddBook は書籍を登録する。
// POST /api/books/add-book
func (h *BookHandler) AddBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "書籍を登録しました。",
		"book":    toBookResponse(book, nil),
	})
}

// UpdateBook は書籍情報を更新する。所有者のみ。
// PUT /api/books/update-book/{bookId}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), userID, chi.URLParam(r, "bookId"), req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "書籍を更新しました。",
		"book":    toBookResponse(book, nil),
	})
}

// DeleteBook は書籍を削除する。所有者のみ。
// DELETE /api/books/delete-book/{bookId}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteBook(r.Context(), userID, chi.URLParam(r, "bookId")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "書籍を削除しました。"})
}

// RecentBooks は新着書籍を返す。
// GET /api/books/recent-books
func (h *BookHandler) RecentBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.Recent(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"recentBooks": toBookResponses(books)})
}

// AllBooks は全書籍を返す。
// GET /api/books/get-all-books
func (h *BookHandler) AllBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"books": toBookResponses(books)})
}

// GetBook は書籍詳細を所有者情報と共に返す。
// GET /api/books/get-book/{bookId}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetBook(r.Context(), chi.URLParam(r, "bookId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"book": toBookResponse(detail.Book, detail.Owner)})
}

// MyBooks はログインユーザーが所有する書籍を返す。
// GET /api/books/my-books
func (h *BookHandler) MyBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	books, err := h.service.MyBooks(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"books": toBookResponses(books)})
}

// BorrowedBooks はログインユーザーが借りている書籍を返す。
// GET /api/books/borrowed-books
func (h *BookHandler) BorrowedBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	items, err := h.borrowed.BorrowedBooks(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"books": toBorrowedBookResponses(items, false)})
}

// FilterBooks はジャンル・著者・ステータスで書籍を絞り込む。
// GET /api/books/filter-books?genre=&author=&status=
func (h *BookHandler) FilterBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := h.service.Filter(r.Context(), q.Get("genre"), q.Get("author"), q.Get("status"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"books": toBookResponses(books)})
}

// SearchBooks はタイトルで書籍を検索する。
// GET /api/request/search-books?name=
func (h *BookHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.Search(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(books),
		"books":   toBookResponses(books),
	})
}
