package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/foliora/internal/auth"
	"github.com/hitoshi/foliora/internal/middleware"
	"github.com/hitoshi/foliora/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// SignUp は一般ユーザーを登録する。
	SignUp(ctx context.Context, in auth.SignUpInput) (*model.User, error)
	// Login はユーザー名とパスワードを検証し、トークンを発行する。
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	// GetUser は指定IDのユーザーを返す。
	GetUser(ctx context.Context, userID string) (*model.User, error)
	// ListUsers は全ユーザーを返す。管理者以外はADMIN_ONLYエラーとなる。
	ListUsers(ctx context.Context, role model.Role) ([]*model.User, error)
}

// UserHandler はユーザー登録・ログイン・ユーザー参照のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// signUpRequest はユーザー登録リクエストのボディ。
type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Address  string `json:"address"`
	Avatar   string `json:"avatar"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

// SignUp はユーザー登録を処理する。
// POST /api/users/sign-up
func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address,
		Avatar:   req.Avatar,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "ユーザー登録が完了しました。",
		"user":    toUserResponse(user),
	})
}

// Login はログインを処理し、Bearerトークンを返す。
// POST /api/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message:   "ログインしました。",
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}

// GetUser はログイン中のユーザー情報を返す。
// GET /api/users/get-user
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// AllUsers は全ユーザーの一覧を返す。管理者のみ。
// GET /api/users/all-users
func (h *UserHandler) AllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), middleware.RoleFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": toUserResponses(users)})
}
