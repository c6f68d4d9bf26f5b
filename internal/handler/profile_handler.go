package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/profile"
)

// multipartOverhead はアバターアップロードのリクエストボディ上限に加える余白。
const multipartOverhead = 1 << 20

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Me(ctx context.Context, userID string) (*model.User, error)
	Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateAvatar(ctx context.Context, userID string, upload profile.AvatarUpload) (*model.User, error)
	Delete(ctx context.Context, userID string) error
	Stats(ctx context.Context, userID string) (*model.UserStats, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service       ProfileServiceInterface
	avatarMaxSize int64
}

// NewProfileHandler はProfileHandlerを生成する。
// avatarMaxSize はアップロードを受け付けるアバター画像の最大バイト数。
func NewProfileHandler(service ProfileServiceInterface, avatarMaxSize int64) *ProfileHandler {
	return &ProfileHandler{
		service:       service,
		avatarMaxSize: avatarMaxSize,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Address  string `json:"address"`
}

// changePasswordRequest はパスワード変更リクエストのボディ。
type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Me はログインユーザーのプロフィールを返す。
// GET /api/profile/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// Update はユーザー名・メールアドレス・住所を更新する。
// PUT /api/profile/update
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := h.service.Update(r.Context(), userID, profile.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Address:  req.Address,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "プロフィールを更新しました。",
		"user":    toUserResponse(user),
	})
}

// ChangePassword はパスワードを変更する。
// PUT /api/profile/change-password
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "パスワードを変更しました。"})
}

// UpdateAvatar はmultipartフォームの avatar フィールドで受け取った画像をアバターに設定する。
// PUT /api/profile/update-avatar
func (h *ProfileHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if h.avatarMaxSize > 0 {
		limit := h.avatarMaxSize + multipartOverhead
		if r.ContentLength > limit {
			handleServiceError(w, r, model.NewAvatarTooLargeError(humanize.Bytes(uint64(h.avatarMaxSize))))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, r, model.NewAvatarTooLargeError(humanize.Bytes(uint64(h.avatarMaxSize))))
			return
		}
		handleServiceError(w, r, model.NewValidationError("アバター画像を選択してください。"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("avatar")
	if err != nil {
		handleServiceError(w, r, model.NewValidationError("アバター画像を選択してください。"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}

	user, err := h.service.UpdateAvatar(r.Context(), userID, profile.AvatarUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "アバターを更新しました。",
		"user":    toUserResponse(user),
	})
}

// Delete はアカウントを削除する。
// DELETE /api/profile/delete
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "アカウントを削除しました。"})
}

// Stats は所有書籍数・借りている書籍数・リクエスト総数を返す。
// GET /api/profile/stats
func (h *ProfileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats": statsResponse{
			OwnedBooks:    stats.OwnedBooks,
			BorrowedBooks: stats.BorrowedBooks,
			TotalRequests: stats.TotalRequests,
		},
	})
}
