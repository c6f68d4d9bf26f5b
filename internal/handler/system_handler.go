package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/foliora/internal/blob"
	"github.com/hitoshi/foliora/internal/middleware"
	"github.com/hitoshi/foliora/internal/model"
)

// healthCheckTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はデータストアの疎通を確認するインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Health はデータストアへの疎通を確認し、結果を返す。
// GET /health
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// UploadHandler はアップロード済みファイルを配信するHTTPハンドラー。
type UploadHandler struct {
	blobs blob.Store
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(blobs blob.Store) *UploadHandler {
	return &UploadHandler{blobs: blobs}
}

// Serve はキーに対応するファイルを返す。
// GET /uploads/{key}
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !blob.ValidKey(key) {
		middleware.WriteAPIError(w, model.NewFileNotFoundError())
		return
	}

	body, obj, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			middleware.WriteAPIError(w, model.NewFileNotFoundError())
			return
		}
		handleServiceError(w, r, err)
		return
	}
	defer body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("failed to stream upload",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
