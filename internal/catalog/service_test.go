package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/repository/memory"
	"github.com/hitoshi/foliora/internal/security"
)

const (
	ownerID = "user-owner"
	otherID = "user-other"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	for _, id := range []string{ownerID, otherID} {
		err := store.Repos().Users.Create(context.Background(), &model.User{
			ID: id, Username: id, Email: id + "@example.com", Role: model.RoleUser,
		})
		if err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
	}

	svc := NewService(store, security.NewTextSanitizer())
	// 登録順が作成日時の順になるよう、呼び出しごとに1秒進める
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store
}

func validInput(title string) BookInput {
	return BookInput{
		Title:       title,
		Author:      "Ursula K. Le Guin",
		Description: "A book about <b>wizards</b>.",
		Genre:       "Fantasy",
		ImageURL:    "https://example.com/cover.jpg",
	}
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

func mustAdd(t *testing.T, svc *Service, owner string, in BookInput) *model.Book {
	t.Helper()
	book, err := svc.AddBook(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	return book
}

func TestAddBook_SanitizesDescription(t *testing.T) {
	svc, _ := newTestService(t)

	book := mustAdd(t, svc, ownerID, validInput("Earthsea"))

	if book.Description != "A book about wizards." {
		t.Errorf("Description = %q", book.Description)
	}
	if book.Status != model.BookAvailable {
		t.Errorf("Status = %q, want Available", book.Status)
	}
	if book.OwnerID != ownerID {
		t.Errorf("OwnerID = %q", book.OwnerID)
	}
}

func TestAddBook_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BookInput)
	}{
		{"タイトルなし", func(in *BookInput) { in.Title = "  " }},
		{"著者なし", func(in *BookInput) { in.Author = "" }},
		{"説明がタグのみ", func(in *BookInput) { in.Description = "<script>x</script>" }},
		{"ジャンルなし", func(in *BookInput) { in.Genre = "" }},
		{"画像URLなし", func(in *BookInput) { in.ImageURL = "" }},
		{"画像URLがjavascript", func(in *BookInput) { in.ImageURL = "javascript:alert(1)" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			in := validInput("Earthsea")
			tt.modify(&in)

			_, err := svc.AddBook(context.Background(), ownerID, in)
			assertAPIError(t, err, model.ErrCodeValidation)
		})
	}
}

func TestAddBook_RejectsDuplicateTitleAuthor(t *testing.T) {
	svc, _ := newTestService(t)
	mustAdd(t, svc, ownerID, validInput("Earthsea"))

	_, err := svc.AddBook(context.Background(), ownerID, validInput("Earthsea"))
	assertAPIError(t, err, model.ErrCodeDuplicateBook)

	// 別の所有者であれば同じ書籍を登録できる
	if _, err := svc.AddBook(context.Background(), otherID, validInput("Earthsea")); err != nil {
		t.Fatalf("other owner should be able to add the same book: %v", err)
	}
}

func TestUpdateBook(t *testing.T) {
	svc, _ := newTestService(t)
	book := mustAdd(t, svc, ownerID, validInput("Earthsea"))

	t.Run("空でない項目のみ更新する", func(t *testing.T) {
		updated, err := svc.UpdateBook(context.Background(), ownerID, book.ID, BookInput{Genre: "Classic"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Genre != "Classic" {
			t.Errorf("Genre = %q, want Classic", updated.Genre)
		}
		if updated.Title != "Earthsea" {
			t.Errorf("Title must be kept, got %q", updated.Title)
		}
	})

	t.Run("所有者以外は更新できない", func(t *testing.T) {
		_, err := svc.UpdateBook(context.Background(), otherID, book.ID, BookInput{Genre: "X"})
		assertAPIError(t, err, model.ErrCodeNotBookOwner)
	})

	t.Run("存在しない書籍", func(t *testing.T) {
		_, err := svc.UpdateBook(context.Background(), ownerID, "missing", BookInput{Genre: "X"})
		assertAPIError(t, err, model.ErrCodeBookNotFound)
	})

	t.Run("重複するタイトル・著者への変更", func(t *testing.T) {
		mustAdd(t, svc, ownerID, validInput("Tehanu"))
		_, err := svc.UpdateBook(context.Background(), ownerID, book.ID, BookInput{Title: "Tehanu"})
		assertAPIError(t, err, model.ErrCodeDuplicateBook)
	})
}

func TestDeleteBook(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	t.Run("貸出中は削除できない", func(t *testing.T) {
		book := mustAdd(t, svc, ownerID, validInput("Lent"))
		book.MarkBorrowed(otherID, time.Now())
		if err := store.Repos().Books.Update(ctx, book); err != nil {
			t.Fatalf("failed to mark borrowed: %v", err)
		}

		assertAPIError(t, svc.DeleteBook(ctx, ownerID, book.ID), model.ErrCodeBookOnLoan)
	})

	t.Run("所有者以外は削除できない", func(t *testing.T) {
		book := mustAdd(t, svc, ownerID, validInput("Mine"))
		assertAPIError(t, svc.DeleteBook(ctx, otherID, book.ID), model.ErrCodeNotBookOwner)
	})

	t.Run("削除するとリクエストも削除される", func(t *testing.T) {
		book := mustAdd(t, svc, ownerID, validInput("Gone"))
		req := &model.BorrowRequest{
			ID: "req-1", BookID: book.ID, RequesterID: otherID, OwnerID: ownerID,
			Status: model.RequestRequested,
		}
		if err := store.Repos().Requests.Create(ctx, req); err != nil {
			t.Fatalf("failed to seed request: %v", err)
		}

		if err := svc.DeleteBook(ctx, ownerID, book.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.GetBook(ctx, book.ID); err == nil {
			t.Error("book should be deleted")
		}
		got, _ := store.Repos().Requests.FindByID(ctx, "req-1")
		if got != nil {
			t.Error("request should be cascade-deleted")
		}
	})
}

func TestGetBook_EmbedsOwner(t *testing.T) {
	svc, _ := newTestService(t)
	book := mustAdd(t, svc, ownerID, validInput("Earthsea"))

	detail, err := svc.GetBook(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Owner == nil || detail.Owner.Username != ownerID {
		t.Errorf("Owner = %+v", detail.Owner)
	}

	_, err = svc.GetBook(context.Background(), "missing")
	assertAPIError(t, err, model.ErrCodeBookNotFound)
}

func TestRecent_ReturnsLatestFour(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 1; i <= 6; i++ {
		mustAdd(t, svc, ownerID, validInput(fmt.Sprintf("Book %d", i)))
	}

	recent, err := svc.Recent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != RecentLimit {
		t.Fatalf("len = %d, want %d", len(recent), RecentLimit)
	}
	if recent[0].Title != "Book 6" {
		t.Errorf("newest first: got %q", recent[0].Title)
	}

	all, err := svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("ListAll len = %d, want 6", len(all))
	}
}

func TestMyBooks(t *testing.T) {
	svc, _ := newTestService(t)
	mustAdd(t, svc, ownerID, validInput("Mine"))
	mustAdd(t, svc, otherID, validInput("Theirs"))

	books, err := svc.MyBooks(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Mine" {
		t.Errorf("MyBooks = %+v", books)
	}
}

func TestSearch(t *testing.T) {
	svc, _ := newTestService(t)
	mustAdd(t, svc, ownerID, validInput("The Left Hand of Darkness"))
	mustAdd(t, svc, ownerID, validInput("The Dispossessed"))

	books, err := svc.Search(context.Background(), "  left HAND ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("len = %d, want 1", len(books))
	}

	_, err = svc.Search(context.Background(), "   ")
	assertAPIError(t, err, model.ErrCodeValidation)
}

func TestFilter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	fantasy := mustAdd(t, svc, ownerID, validInput("Earthsea"))
	scifi := validInput("Neuromancer")
	scifi.Author = "William Gibson"
	scifi.Genre = "Science Fiction"
	lent := mustAdd(t, svc, ownerID, scifi)
	lent.MarkBorrowed(otherID, time.Now())
	if err := store.Repos().Books.Update(ctx, lent); err != nil {
		t.Fatalf("failed to mark borrowed: %v", err)
	}

	tests := []struct {
		name                  string
		genre, author, status string
		wantIDs               []string
	}{
		{"ジャンル部分一致", "fiction", "", "", []string{lent.ID}},
		{"著者で一致", "", "gibson", "", []string{lent.ID}},
		{"タイトルでも一致", "", "earth", "", []string{fantasy.ID}},
		{"ステータス", "", "", "available", []string{fantasy.ID}},
		{"条件なし", "", "", "", []string{lent.ID, fantasy.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := svc.Filter(ctx, tt.genre, tt.author, tt.status)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(books) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(books), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if books[i].ID != id {
					t.Errorf("books[%d] = %s, want %s", i, books[i].ID, id)
				}
			}
		})
	}

	books, err := svc.Filter(ctx, "", "", "lost")
	if err != nil {
		t.Fatalf("unexpected error for unknown status: %v", err)
	}
	if books == nil || len(books) != 0 {
		t.Errorf("books = %v, want empty non-nil list", books)
	}
}
