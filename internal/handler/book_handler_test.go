package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/foliora/internal/catalog"
	"github.com/hitoshi/foliora/internal/model"
)

func TestBookHandler_AddBook(t *testing.T) {
	var gotOwner string
	var gotInput catalog.BookInput
	svc := &mockBookService{
		addBookFn: func(ctx context.Context, ownerID string, in catalog.BookInput) (*model.Book, error) {
			gotOwner, gotInput = ownerID, in
			return &model.Book{ID: "book-1", Title: in.Title, OwnerID: ownerID, Status: model.BookAvailable}, nil
		},
	}
	h := NewBookHandler(svc, &mockBorrowService{})

	body := `{"title":"Dune","author":"Frank Herbert","description":"Spice","genre":"SF","imageUrl":"https://example.com/dune.jpg"}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/books/add-book", strings.NewReader(body)), "user-1")
	w := httptest.NewRecorder()

	h.AddBook(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotOwner != "user-1" {
		t.Errorf("owner = %q", gotOwner)
	}
	if gotInput.ImageURL != "https://example.com/dune.jpg" || gotInput.Author != "Frank Herbert" {
		t.Errorf("input = %+v", gotInput)
	}
	book := decodeBody(t, w)["book"].(map[string]any)
	if book["status"] != "Available" {
		t.Errorf("status = %v", book["status"])
	}
}

func TestBookHandler_UpdateBook_NotOwner(t *testing.T) {
	svc := &mockBookService{
		updateBookFn: func(ctx context.Context, actorID, bookID string, patch catalog.BookInput) (*model.Book, error) {
			if bookID != "book-1" {
				t.Errorf("bookID = %q", bookID)
			}
			return nil, model.NewNotBookOwnerError()
		},
	}
	h := NewBookHandler(svc, &mockBorrowService{})

	req := httptest.NewRequest(http.MethodPut, "/api/books/update-book/book-1", strings.NewReader(`{"genre":"X"}`))
	req = withChiURLParam(withUserID(req, "user-2"), "bookId", "book-1")
	w := httptest.NewRecorder()

	h.UpdateBook(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestBookHandler_DeleteBook(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"成功", nil, http.StatusOK},
		{"貸出中", model.NewBookOnLoanError(), http.StatusBadRequest},
		{"存在しない", model.NewBookNotFoundError("book-1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookService{
				deleteBookFn: func(ctx context.Context, actorID, bookID string) error { return tt.err },
			}
			h := NewBookHandler(svc, &mockBorrowService{})

			req := httptest.NewRequest(http.MethodDelete, "/api/books/delete-book/book-1", nil)
			req = withChiURLParam(withUserID(req, "user-1"), "bookId", "book-1")
			w := httptest.NewRecorder()

			h.DeleteBook(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestBookHandler_GetBook_EmbedsOwner(t *testing.T) {
	svc := &mockBookService{
		getBookFn: func(ctx context.Context, bookID string) (*catalog.BookDetail, error) {
			return &catalog.BookDetail{
				Book:  &model.Book{ID: bookID, Title: "Dune", OwnerID: "user-1"},
				Owner: &model.UserSummary{ID: "user-1", Username: "alice"},
			}, nil
		},
	}
	h := NewBookHandler(svc, &mockBorrowService{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/books/get-book/book-1", nil), "bookId", "book-1")
	w := httptest.NewRecorder()

	h.GetBook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	book := decodeBody(t, w)["book"].(map[string]any)
	owner, ok := book["owner"].(map[string]any)
	if !ok || owner["username"] != "alice" {
		t.Errorf("owner = %v", book["owner"])
	}
}

func TestBookHandler_RecentBooks_UsesRecentBooksKey(t *testing.T) {
	svc := &mockBookService{
		recentFn: func(ctx context.Context) ([]*model.Book, error) {
			return []*model.Book{{ID: "b1"}, {ID: "b2"}}, nil
		},
	}
	h := NewBookHandler(svc, &mockBorrowService{})

	w := httptest.NewRecorder()
	h.RecentBooks(w, httptest.NewRequest(http.MethodGet, "/api/books/recent-books", nil))

	resp := decodeBody(t, w)
	if books, ok := resp["recentBooks"].([]any); !ok || len(books) != 2 {
		t.Errorf("recentBooks = %v", resp["recentBooks"])
	}
}

func TestBookHandler_FilterBooks_PassesQuery(t *testing.T) {
	var genre, author, status string
	svc := &mockBookService{
		filterFn: func(ctx context.Context, g, a, s string) ([]*model.Book, error) {
			genre, author, status = g, a, s
			return nil, nil
		},
	}
	h := NewBookHandler(svc, &mockBorrowService{})

	w := httptest.NewRecorder()
	h.FilterBooks(w, httptest.NewRequest(http.MethodGet, "/api/books/filter-books?genre=SF&author=Herbert&status=Available", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if genre != "SF" || author != "Herbert" || status != "Available" {
		t.Errorf("filter = (%q, %q, %q)", genre, author, status)
	}
	if books, ok := decodeBody(t, w)["books"].([]any); !ok || len(books) != 0 {
		t.Errorf("books should be an empty array, got %v", books)
	}
}

func TestBookHandler_SearchBooks(t *testing.T) {
	svc := &mockBookService{
		searchFn: func(ctx context.Context, name string) ([]*model.Book, error) {
			if name == "" {
				return nil, model.NewValidationError("検索キーワードを入力してください。")
			}
			return []*model.Book{{ID: "b1", Title: "Dune"}}, nil
		},
	}
	h := NewBookHandler(svc, &mockBorrowService{})

	t.Run("件数と結果を返す", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.SearchBooks(w, httptest.NewRequest(http.MethodGet, "/api/request/search-books?name=dune", nil))

		resp := decodeBody(t, w)
		if resp["success"] != true || resp["count"] != float64(1) {
			t.Errorf("resp = %v", resp)
		}
	})

	t.Run("キーワードなしは400", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.SearchBooks(w, httptest.NewRequest(http.MethodGet, "/api/request/search-books", nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestBookHandler_BorrowedBooks_OmitsRequest(t *testing.T) {
	borrowed := &mockBorrowService{
		borrowedBooksFn: func(ctx context.Context, userID string) ([]model.BorrowedBook, error) {
			return []model.BorrowedBook{{
				Book:    model.Book{ID: "b1", Status: model.BookBorrowed, BorrowedBy: userID},
				Request: &model.BorrowRequest{ID: "r1", Status: model.RequestAccepted},
			}}, nil
		},
	}
	h := NewBookHandler(&mockBookService{}, borrowed)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/books/borrowed-books", nil), "user-2")
	w := httptest.NewRecorder()

	h.BorrowedBooks(w, req)

	books := decodeBody(t, w)["books"].([]any)
	if len(books) != 1 {
		t.Fatalf("len = %d, want 1", len(books))
	}
	book := books[0].(map[string]any)
	if _, ok := book["borrowRequest"]; ok {
		t.Error("borrowRequest should be omitted on the books route")
	}
	if book["borrowedBy"] != "user-2" {
		t.Errorf("borrowedBy = %v", book["borrowedBy"])
	}
}
