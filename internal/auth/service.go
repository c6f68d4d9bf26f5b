// Package auth はユーザー登録、ログイン、アクセストークンの発行・検証を提供する。
package auth

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
)

// 入力値の制約
const (
	MinUsernameLength = 4
	MinPasswordLength = 6
)

// SignUpInput はユーザー登録の入力値。
type SignUpInput struct {
	Username string
	Email    string
	Password string
	Address  string
	Avatar   string
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users  repository.UserRepository
	tokens *TokenManager
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, tokens *TokenManager) *Service {
	return &Service{users: users, tokens: tokens, now: time.Now}
}

// SignUp は一般ユーザーを登録する。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)

	if in.Username == "" || in.Email == "" || in.Password == "" || in.Address == "" {
		return nil, model.NewValidationError("ユーザー名、メールアドレス、パスワード、住所はすべて必須です。")
	}
	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	return s.createUser(ctx, in, model.RoleUser)
}

// CreateAdmin は管理者ユーザーを登録する。create-adminコマンドから使用する。
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	in := SignUpInput{Username: strings.TrimSpace(username), Email: strings.TrimSpace(email), Password: password}
	if in.Username == "" || in.Email == "" {
		return nil, model.NewValidationError("ユーザー名とメールアドレスは必須です。")
	}
	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	return s.createUser(ctx, in, model.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, in SignUpInput, role model.Role) (*model.User, error) {
	existing, err := s.users.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError()
	}
	existing, err = s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Address:      in.Address,
		Avatar:       in.Avatar,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if mapped := MapDuplicateUser(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Login はユーザー名とパスワードを検証し、アクセストークンを発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// VerifyToken はアクセストークンを検証し、ユーザーIDとロールを返す。
func (s *Service) VerifyToken(token string) (string, model.Role, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", "", err
	}
	return claims.UserID, claims.Role, nil
}

// GetUser は指定IDのユーザーを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// ListUsers は全ユーザーを返す。管理者のみ実行できる。
func (s *Service) ListUsers(ctx context.Context, role model.Role) ([]*model.User, error) {
	if role != model.RoleAdmin {
		return nil, model.NewAdminOnlyError()
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// ValidateUsername はユーザー名の長さを検証する。
func ValidateUsername(username string) error {
	if len([]rune(username)) < MinUsernameLength {
		return model.NewValidationError(fmt.Sprintf("ユーザー名は%d文字以上で入力してください。", MinUsernameLength))
	}
	return nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", MinPasswordLength))
	}
	return nil
}

// MapDuplicateUser は一意制約違反をユーザー向けエラーに変換する。
// 一意制約違反でない場合はnilを返す。
func MapDuplicateUser(err error) error {
	var dup *repository.ErrDuplicate
	if !errors.As(err, &dup) {
		return nil
	}
	switch dup.Constraint {
	case repository.ConstraintUsername:
		return model.NewUsernameTakenError()
	case repository.ConstraintEmail:
		return model.NewEmailTakenError()
	default:
		return model.NewValidationError("既に登録されている値です。")
	}
}
