package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/profile"
)

// newAvatarRequest はavatarフィールドを持つmultipartリクエストを生成するヘルパー。
func newAvatarRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="avatar"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/profile/update-avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withUserID(req, "user-1")
}

func TestProfileHandler_UpdateAvatar_PassesUpload(t *testing.T) {
	var got profile.AvatarUpload
	var gotBody []byte
	svc := &mockProfileService{
		updateAvatarFn: func(ctx context.Context, userID string, upload profile.AvatarUpload) (*model.User, error) {
			got = upload
			gotBody, _ = io.ReadAll(upload.Body)
			return &model.User{ID: userID, Avatar: "/uploads/abc-me.png"}, nil
		},
	}
	h := NewProfileHandler(svc, 1024)

	w := httptest.NewRecorder()
	h.UpdateAvatar(w, newAvatarRequest(t, "me.png", "image/png", []byte("PNGDATA")))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Filename != "me.png" || got.ContentType != "image/png" || got.Size != 7 {
		t.Errorf("upload = %+v", got)
	}
	if string(gotBody) != "PNGDATA" {
		t.Errorf("body = %q", gotBody)
	}
	user := decodeBody(t, w)["user"].(map[string]any)
	if user["avatar"] != "/uploads/abc-me.png" {
		t.Errorf("avatar = %v", user["avatar"])
	}
}

func TestProfileHandler_UpdateAvatar_InfersContentTypeFromExtension(t *testing.T) {
	var got profile.AvatarUpload
	svc := &mockProfileService{
		updateAvatarFn: func(ctx context.Context, userID string, upload profile.AvatarUpload) (*model.User, error) {
			got = upload
			return &model.User{ID: userID}, nil
		},
	}
	h := NewProfileHandler(svc, 1024)

	w := httptest.NewRecorder()
	h.UpdateAvatar(w, newAvatarRequest(t, "me.png", "application/octet-stream", []byte("x")))

	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", got.ContentType)
	}
}

func TestProfileHandler_UpdateAvatar_MissingFile(t *testing.T) {
	h := NewProfileHandler(&mockProfileService{
		updateAvatarFn: func(ctx context.Context, userID string, upload profile.AvatarUpload) (*model.User, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}, 1024)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPut, "/api/profile/update-avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	h.UpdateAvatar(w, withUserID(req, "user-1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeValidation {
		t.Errorf("code = %q", resp["code"])
	}
}

func TestProfileHandler_UpdateAvatar_BodyTooLarge(t *testing.T) {
	h := NewProfileHandler(&mockProfileService{}, 10)

	content := bytes.Repeat([]byte("a"), 2<<20)
	w := httptest.NewRecorder()
	h.UpdateAvatar(w, newAvatarRequest(t, "big.png", "image/png", content))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeAvatarTooLarge {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeAvatarTooLarge)
	}
}

func TestProfileHandler_Update(t *testing.T) {
	var got profile.UpdateInput
	svc := &mockProfileService{
		updateFn: func(ctx context.Context, userID string, in profile.UpdateInput) (*model.User, error) {
			got = in
			return &model.User{ID: userID, Username: in.Username}, nil
		},
	}
	h := NewProfileHandler(svc, 0)

	body := `{"username":"alice2","email":"a2@example.com","address":"Osaka","role":"admin"}`
	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile/update", strings.NewReader(body)), "user-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := profile.UpdateInput{Username: "alice2", Email: "a2@example.com", Address: "Osaka"}
	if got != want {
		t.Errorf("input = %+v, want %+v", got, want)
	}
}

func TestProfileHandler_ChangePassword(t *testing.T) {
	svc := &mockProfileService{
		changePasswordFn: func(ctx context.Context, userID, oldPassword, newPassword string) error {
			if oldPassword != "old-pass" {
				return model.NewValidationError("現在のパスワードが正しくありません。")
			}
			return nil
		},
	}
	h := NewProfileHandler(svc, 0)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"成功", `{"oldPassword":"old-pass","newPassword":"new-pass"}`, http.StatusOK},
		{"現在のパスワードが違う", `{"oldPassword":"wrong","newPassword":"new-pass"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile/change-password", strings.NewReader(tt.body)), "user-1")
			w := httptest.NewRecorder()

			h.ChangePassword(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestProfileHandler_Delete_InUse(t *testing.T) {
	svc := &mockProfileService{
		deleteFn: func(ctx context.Context, userID string) error {
			return model.NewAccountInUseError("借りている書籍があるため退会できません。")
		},
	}
	h := NewProfileHandler(svc, 0)

	w := httptest.NewRecorder()
	h.Delete(w, withUserID(httptest.NewRequest(http.MethodDelete, "/api/profile/delete", nil), "user-1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestProfileHandler_Stats(t *testing.T) {
	svc := &mockProfileService{
		statsFn: func(ctx context.Context, userID string) (*model.UserStats, error) {
			return &model.UserStats{OwnedBooks: 3, BorrowedBooks: 1, TotalRequests: 5}, nil
		},
	}
	h := NewProfileHandler(svc, 0)

	w := httptest.NewRecorder()
	h.Stats(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/profile/stats", nil), "user-1"))

	stats := decodeBody(t, w)["stats"].(map[string]any)
	if stats["ownedBooks"] != float64(3) || stats["borrowedBooks"] != float64(1) || stats["totalRequests"] != float64(5) {
		t.Errorf("stats = %v", stats)
	}
}
