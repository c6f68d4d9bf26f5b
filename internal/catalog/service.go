// Package catalog は書籍の登録・更新・削除と一覧・検索を提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/repository"
	"github.com/hitoshi/foliora/internal/security"
)

// RecentLimit は新着書籍一覧の件数。
const RecentLimit = 4

// BookInput は書籍の登録・更新の入力値。
type BookInput struct {
	Title       string
	Author      string
	Description string
	Genre       string
	ImageURL    string
}

func (in BookInput) trimmed() BookInput {
	return BookInput{
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		Description: in.Description,
		Genre:       strings.TrimSpace(in.Genre),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}
}

// BookDetail は書籍と所有者の公開情報の組。
type BookDetail struct {
	Book  *model.Book
	Owner *model.UserSummary
}

// Service は書籍カタログのサービス層。
type Service struct {
	store     repository.Store
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(store repository.Store, sanitizer security.TextSanitizer) *Service {
	return &Service{store: store, sanitizer: sanitizer, now: time.Now}
}

// AddBook は書籍を登録する。全項目が必須で、同じ所有者による同一タイトル・著者の重複登録は拒否する。
func (s *Service) AddBook(ctx context.Context, ownerID string, in BookInput) (*model.Book, error) {
	in = in.trimmed()
	in.Description = s.sanitizer.Sanitize(in.Description)

	if in.Title == "" || in.Author == "" || in.Description == "" || in.Genre == "" || in.ImageURL == "" {
		return nil, model.NewValidationError("タイトル、著者、説明、ジャンル、画像URLはすべて必須です。")
	}
	if !security.IsWebURL(in.ImageURL) {
		return nil, model.NewValidationError("画像URLはhttpまたはhttpsのURLを指定してください。")
	}

	books := s.store.Repos().Books
	existing, err := books.FindByOwnerTitleAuthor(ctx, ownerID, in.Title, in.Author)
	if err != nil {
		return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateBookError()
	}

	now := s.now()
	book := &model.Book{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Genre:       in.Genre,
		ImageURL:    in.ImageURL,
		OwnerID:     ownerID,
		Status:      model.BookAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := books.Create(ctx, book); err != nil {
		if isDuplicateBook(err) {
			return nil, model.NewDuplicateBookError()
		}
		return nil, fmt.Errorf("書籍の登録に失敗しました: %w", err)
	}

	slog.Info("書籍を登録しました",
		slog.String("book_id", book.ID),
		slog.String("owner_id", ownerID),
	)
	return book, nil
}

// UpdateBook は所有者が書籍情報を更新する。空でない項目のみ置き換える。
func (s *Service) UpdateBook(ctx context.Context, actorID, bookID string, patch BookInput) (*model.Book, error) {
	patch = patch.trimmed()
	if patch.Description != "" {
		patch.Description = s.sanitizer.Sanitize(patch.Description)
	}
	if patch.ImageURL != "" && !security.IsWebURL(patch.ImageURL) {
		return nil, model.NewValidationError("画像URLはhttpまたはhttpsのURLを指定してください。")
	}

	var updated *model.Book
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		book, err := repos.Books.LockByID(ctx, bookID)
		if err != nil {
			return fmt.Errorf("書籍の取得に失敗しました: %w", err)
		}
		if book == nil {
			return model.NewBookNotFoundError(bookID)
		}
		if book.OwnerID != actorID {
			return model.NewNotBookOwnerError()
		}

		applyPatch(book, patch)
		book.UpdatedAt = s.now()
		if err := repos.Books.Update(ctx, book); err != nil {
			if isDuplicateBook(err) {
				return model.NewDuplicateBookError()
			}
			return fmt.Errorf("書籍の更新に失敗しました: %w", err)
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyPatch(book *model.Book, patch BookInput) {
	if patch.Title != "" {
		book.Title = patch.Title
	}
	if patch.Author != "" {
		book.Author = patch.Author
	}
	if patch.Description != "" {
		book.Description = patch.Description
	}
	if patch.Genre != "" {
		book.Genre = patch.Genre
	}
	if patch.ImageURL != "" {
		book.ImageURL = patch.ImageURL
	}
}

// DeleteBook は所有者が書籍を削除する。貸出中の書籍は削除できない。
// 書籍に対する貸出リクエストは合わせて削除される。
func (s *Service) DeleteBook(ctx context.Context, actorID, bookID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		book, err := repos.Books.LockByID(ctx, bookID)
		if err != nil {
			return fmt.Errorf("書籍の取得に失敗しました: %w", err)
		}
		if book == nil {
			return model.NewBookNotFoundError(bookID)
		}
		if book.OwnerID != actorID {
			return model.NewNotBookOwnerError()
		}
		if book.IsLent() {
			return model.NewBookOnLoanError()
		}
		if err := repos.Books.DeleteByID(ctx, bookID); err != nil {
			return fmt.Errorf("書籍の削除に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("書籍を削除しました",
		slog.String("book_id", bookID),
		slog.String("owner_id", actorID),
	)
	return nil
}

// GetBook は書籍を所有者の公開情報と共に返す。
func (s *Service) GetBook(ctx context.Context, bookID string) (*BookDetail, error) {
	repos := s.store.Repos()
	book, err := repos.Books.FindByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}

	owners, err := repos.Users.FindSummaries(ctx, []string{book.OwnerID})
	if err != nil {
		return nil, fmt.Errorf("所有者情報の取得に失敗しました: %w", err)
	}
	detail := &BookDetail{Book: book}
	if owner, ok := owners[book.OwnerID]; ok {
		detail.Owner = &owner
	}
	return detail, nil
}

// ListAll は全書籍を登録日の新しい順に返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Book, error) {
	books, err := s.store.Repos().Books.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の取得に失敗しました: %w", err)
	}
	return books, nil
}

// Recent は新着書籍をRecentLimit件返す。
func (s *Service) Recent(ctx context.Context) ([]*model.Book, error) {
	books, err := s.store.Repos().Books.List(ctx, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("新着書籍の取得に失敗しました: %w", err)
	}
	return books, nil
}

// MyBooks は所有者の書籍一覧を返す。
func (s *Service) MyBooks(ctx context.Context, ownerID string) ([]*model.Book, error) {
	books, err := s.store.Repos().Books.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の取得に失敗しました: %w", err)
	}
	return books, nil
}

// Search はタイトルの部分一致（大文字小文字を区別しない）で書籍を検索する。
func (s *Service) Search(ctx context.Context, name string) ([]*model.Book, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("検索キーワードを入力してください。")
	}
	books, err := s.store.Repos().Books.Search(ctx, model.BookFilter{Title: name})
	if err != nil {
		return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
	}
	return books, nil
}

// Filter はジャンル・タイトルまたは著者・ステータスで書籍を絞り込む。空の条件は無視する。
// 未知のステータスに一致する書籍は存在しないため、空のリストを返す。
func (s *Service) Filter(ctx context.Context, genre, author, status string) ([]*model.Book, error) {
	filter := model.BookFilter{
		Genre:         strings.TrimSpace(genre),
		TitleOrAuthor: strings.TrimSpace(author),
	}
	if strings.TrimSpace(status) != "" {
		st, err := model.ParseBookStatus(status)
		if err != nil {
			return []*model.Book{}, nil
		}
		filter.Status = &st
	}

	books, err := s.store.Repos().Books.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("書籍の絞り込みに失敗しました: %w", err)
	}
	return books, nil
}

func isDuplicateBook(err error) bool {
	var dup *repository.ErrDuplicate
	return errors.As(err, &dup) && dup.Constraint == repository.ConstraintBookTitle
}
