package borrow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/repository"
)

// IncomingRequests は所有者宛てのリクエストを申請者情報付きで新しい順に返す。
func (s *Service) IncomingRequests(ctx context.Context, ownerID string) ([]model.RequestView, error) {
	repos := s.store.Repos()
	reqs, err := repos.Requests.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("受信リクエストの取得に失敗しました: %w", err)
	}
	return buildViews(ctx, repos, reqs, embedRequester)
}

// MyRequests は申請者のリクエストを所有者情報付きで新しい順に返す。
func (s *Service) MyRequests(ctx context.Context, requesterID string) ([]model.RequestView, error) {
	repos := s.store.Repos()
	reqs, err := repos.Requests.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("送信リクエストの取得に失敗しました: %w", err)
	}
	return buildViews(ctx, repos, reqs, embedOwner)
}

// BorrowHistory は申請者の返却済みリクエストを返却日の新しい順に返す。
func (s *Service) BorrowHistory(ctx context.Context, requesterID string) ([]model.RequestView, error) {
	repos := s.store.Repos()
	reqs, err := repos.Requests.ListReturnedByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("貸出履歴の取得に失敗しました: %w", err)
	}
	return buildViews(ctx, repos, reqs, embedOwner)
}

// BorrowedBooks はユーザーが現在借りている書籍を、対応する貸出リクエストと共に返す。
func (s *Service) BorrowedBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error) {
	repos := s.store.Repos()
	books, err := repos.Books.ListBorrowedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("借りている書籍の取得に失敗しました: %w", err)
	}

	ownerIDs := make([]string, 0, len(books))
	for _, b := range books {
		ownerIDs = append(ownerIDs, b.OwnerID)
	}
	owners, err := repos.Users.FindSummaries(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("所有者情報の取得に失敗しました: %w", err)
	}

	result := make([]model.BorrowedBook, 0, len(books))
	for _, b := range books {
		item := model.BorrowedBook{Book: *b}
		if owner, ok := owners[b.OwnerID]; ok {
			item.Owner = &owner
		}
		active, err := repos.Requests.FindActiveByBook(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("貸出リクエストの取得に失敗しました: %w", err)
		}
		if active != nil && active.RequesterID == userID {
			item.Request = active
		}
		result = append(result, item)
	}
	return result, nil
}

type embedUser int

const (
	embedRequester embedUser = iota
	embedOwner
)

func buildViews(ctx context.Context, repos repository.Repositories, reqs []*model.BorrowRequest, embed embedUser) ([]model.RequestView, error) {
	books := make(map[string]*model.Book)
	userIDs := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := books[r.BookID]; !ok {
			b, err := repos.Books.FindByID(ctx, r.BookID)
			if err != nil {
				return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
			}
			books[r.BookID] = b
		}
		if embed == embedRequester {
			userIDs = append(userIDs, r.RequesterID)
		} else {
			userIDs = append(userIDs, r.OwnerID)
		}
	}

	users, err := repos.Users.FindSummaries(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}

	views := make([]model.RequestView, 0, len(reqs))
	for _, r := range reqs {
		v := model.RequestView{Request: *r, Book: books[r.BookID]}
		if embed == embedRequester {
			if u, ok := users[r.RequesterID]; ok {
				v.Requester = &u
			}
		} else if u, ok := users[r.OwnerID]; ok {
			v.Owner = &u
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) logRejectedSiblings(accepted *model.BorrowRequest, count int) {
	slog.Info("承認に伴い他の保留中リクエストを拒否しました",
		slog.String("request_id", accepted.ID),
		slog.String("book_id", accepted.BookID),
		slog.Int("rejected_count", count),
	)
}
