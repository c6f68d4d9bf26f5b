// Package profile はログインユーザー自身のプロフィール管理を提供する。
package profile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hitoshi/foliora/internal/auth"
	"github.com/hitoshi/foliora/internal/blob"
	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/repository"
)

// AvatarURLPrefix はアバター画像の公開URLのパス接頭辞。
const AvatarURLPrefix = "/uploads/"

// UpdateInput はプロフィール更新の入力値。空の項目は変更しない。
type UpdateInput struct {
	Username string
	Email    string
	Address  string
}

// AvatarUpload はアップロードされたアバター画像。
type AvatarUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service はプロフィール管理のサービス層。
type Service struct {
	store         repository.Store
	blobs         blob.Store
	avatarMaxSize int64
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(store repository.Store, blobs blob.Store, avatarMaxSize int64) *Service {
	return &Service{store: store, blobs: blobs, avatarMaxSize: avatarMaxSize, now: time.Now}
}

// Me はログインユーザーの情報を返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.findUser(ctx, s.store.Repos(), userID)
}

func (s *Service) findUser(ctx context.Context, repos repository.Repositories, userID string) (*model.User, error) {
	user, err := repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Update はユーザー名・メールアドレス・住所を更新する。その他の項目は変更できない。
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)

	if in.Username != "" {
		if err := auth.ValidateUsername(in.Username); err != nil {
			return nil, err
		}
	}

	repos := s.store.Repos()
	user, err := s.findUser(ctx, repos, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != "" && in.Username != user.Username {
		other, err := repos.Users.FindByUsername(ctx, in.Username)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
		}
		if other != nil && other.ID != userID {
			return nil, model.NewUsernameTakenError()
		}
		user.Username = in.Username
	}
	if in.Email != "" && !strings.EqualFold(in.Email, user.Email) {
		other, err := repos.Users.FindByEmail(ctx, in.Email)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
		}
		if other != nil && other.ID != userID {
			return nil, model.NewEmailTakenError()
		}
		user.Email = in.Email
	}
	if in.Address != "" {
		user.Address = in.Address
	}

	user.UpdatedAt = s.now()
	if err := repos.Users.Update(ctx, user); err != nil {
		if mapped := auth.MapDuplicateUser(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return user, nil
}

// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更する。
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return model.NewValidationError("現在のパスワードと新しいパスワードは必須です。")
	}

	repos := s.store.Repos()
	user, err := s.findUser(ctx, repos, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return model.NewValidationError("現在のパスワードが正しくありません。")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if err := repos.Users.Update(ctx, user); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	slog.Info("パスワードを変更しました", slog.String("user_id", userID))
	return nil
}

// UpdateAvatar はアバター画像を保存し、ユーザーのアバターを差し替える。
// 以前の画像の削除はベストエフォートで行う。
func (s *Service) UpdateAvatar(ctx context.Context, userID string, upload AvatarUpload) (*model.User, error) {
	if upload.Body == nil || upload.Filename == "" {
		return nil, model.NewValidationError("画像ファイルを選択してください。")
	}
	if s.avatarMaxSize > 0 && upload.Size > s.avatarMaxSize {
		return nil, model.NewAvatarTooLargeError(humanize.Bytes(uint64(s.avatarMaxSize)))
	}
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return nil, model.NewValidationError("画像ファイルのみアップロードできます。")
	}

	repos := s.store.Repos()
	user, err := s.findUser(ctx, repos, userID)
	if err != nil {
		return nil, err
	}

	key := blob.NewKey(upload.Filename)
	if err := s.blobs.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
	}

	previous := user.Avatar
	user.Avatar = AvatarURLPrefix + key
	user.UpdatedAt = s.now()
	if err := repos.Users.Update(ctx, user); err != nil {
		s.deleteBlob(ctx, key)
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	if oldKey, ok := avatarKey(previous); ok {
		s.deleteBlob(ctx, oldKey)
	}
	return user, nil
}

// avatarKey はアップロード済みアバターのURLからキーを取り出す。外部URLの場合はfalseを返す。
func avatarKey(avatar string) (string, bool) {
	key, ok := strings.CutPrefix(avatar, AvatarURLPrefix)
	if !ok || !blob.ValidKey(key) {
		return "", false
	}
	return key, true
}

func (s *Service) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("画像の削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Delete はユーザーの退会処理を実行する。
// 借りている書籍がある場合、または自分の書籍が貸出中の場合は退会できない。
// 削除順序: borrow_requests → books → user を単一トランザクションで実行する。
func (s *Service) Delete(ctx context.Context, userID string) error {
	slog.Info("退会処理を開始します", slog.String("user_id", userID))

	var avatar string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := s.findUser(ctx, repos, userID)
		if err != nil {
			return err
		}

		borrowing, err := repos.Books.CountBorrowedBy(ctx, userID)
		if err != nil {
			return fmt.Errorf("借りている書籍数の取得に失敗しました: %w", err)
		}
		if borrowing > 0 {
			return model.NewAccountInUseError("借りている書籍があるため退会できません。")
		}
		lent, err := repos.Books.CountLentByOwner(ctx, userID)
		if err != nil {
			return fmt.Errorf("貸出中の書籍数の取得に失敗しました: %w", err)
		}
		if lent > 0 {
			return model.NewAccountInUseError("貸出中の書籍があるため退会できません。")
		}

		// 1. 申請者または所有者としてのリクエストを削除
		if err := repos.Requests.DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("リクエストの削除に失敗しました: %w", err)
		}
		// 2. 所有する書籍を削除
		if err := repos.Books.DeleteByOwner(ctx, userID); err != nil {
			return fmt.Errorf("書籍の削除に失敗しました: %w", err)
		}
		// 3. ユーザーを削除
		if err := repos.Users.DeleteByID(ctx, userID); err != nil {
			return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
		}
		avatar = user.Avatar
		return nil
	})
	if err != nil {
		return err
	}

	if key, ok := avatarKey(avatar); ok {
		s.deleteBlob(ctx, key)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", userID))
	return nil
}

// Stats は所有書籍数・借りている書籍数・リクエスト総数を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	repos := s.store.Repos()
	owned, err := repos.Books.CountByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("所有書籍数の取得に失敗しました: %w", err)
	}
	borrowed, err := repos.Books.CountBorrowedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("借りている書籍数の取得に失敗しました: %w", err)
	}
	requests, err := repos.Requests.CountByRequester(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リクエスト数の取得に失敗しました: %w", err)
	}
	return &model.UserStats{OwnedBooks: owned, BorrowedBooks: borrowed, TotalRequests: requests}, nil
}
