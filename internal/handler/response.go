package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/foliora/internal/middleware"
	"github.com/hitoshi/foliora/internal/model"
)

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvに読み込む。空のボディはゼロ値のまま成功とする。
func decodeJSON(r *http.Request, v any) error {
	err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewValidationError("リクエストボディの解析に失敗しました。")
}

// handleServiceError はサービス層から返されたエラーを統一エラーフォーマットで書き込む。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// currentUserID は認証済みユーザーのIDを返す。取得できない場合は401を書き込みfalseを返す。
func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewTokenMissingError())
		return "", false
	}
	return userID, true
}
