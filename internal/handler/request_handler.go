package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/foliora/internal/model"
)

// BorrowServiceInterface はリクエストハンドラーが必要とする貸出ライフサイクルのインターフェース。
type BorrowServiceInterface interface {
	RequestBook(ctx context.Context, actorID, bookID string) (*model.BorrowRequest, error)
	Decide(ctx context.Context, actorID, requestID, rawStatus string) (*model.BorrowRequest, *model.Book, error)
	RequestReturn(ctx context.Context, actorID, requestID string) (*model.BorrowRequest, error)
	ConfirmReturn(ctx context.Context, actorID, requestID string) (*model.BorrowRequest, error)
	Cancel(ctx context.Context, actorID, requestID string) error
	SetReturnDeadline(ctx context.Context, actorID, requestID string, days int) (*model.Book, error)
	SendReminder(ctx context.Context, actorID, requestID string) error

	IncomingRequests(ctx context.Context, ownerID string) ([]model.RequestView, error)
	MyRequests(ctx context.Context, requesterID string) ([]model.RequestView, error)
	BorrowHistory(ctx context.Context, requesterID string) ([]model.RequestView, error)
	BorrowedBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error)
}

// RequestHandler は貸出リクエストのHTTPハンドラー。
type RequestHandler struct {
	service BorrowServiceInterface
}

// NewRequestHandler はRequestHandlerを生成する。
func NewRequestHandler(service BorrowServiceInterface) *RequestHandler {
	return &RequestHandler{
		service: service,
	}
}

// updateRequestBody は承認・却下リクエストのボディ。
type updateRequestBody struct {
	Status string `json:"status"`
}

// setDeadlineBody は返却期限設定リクエストのボディ。
type setDeadlineBody struct {
	Days int `json:"days"`
}

// RequestBook は書籍の貸出をリクエストする。
// POST /api/request/request-book/{bookId}
func (h *RequestHandler) RequestBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	req, err := h.service.RequestBook(r.Context(), userID, chi.URLParam(r, "bookId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "書籍の貸出をリクエストしました。",
		"request": toRequestResponse(req),
	})
}

// IncomingRequests は自分の書籍に届いたリクエストを返す。
// GET /api/request/incoming-requests
func (h *RequestHandler) IncomingRequests(w http.ResponseWriter, r *http.Request) {
	h.listViews(w, r, "requests", h.service.IncomingRequests)
}

// MyRequests は自分が送ったリクエストを返す。
// GET /api/request/my-requests
func (h *RequestHandler) MyRequests(w http.ResponseWriter, r *http.Request) {
	h.listViews(w, r, "requests", h.service.MyRequests)
}

// BorrowHistory は返却済みの貸出履歴を返す。
// GET /api/request/borrow-history
func (h *RequestHandler) BorrowHistory(w http.ResponseWriter, r *http.Request) {
	h.listViews(w, r, "history", h.service.BorrowHistory)
}

func (h *RequestHandler) listViews(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	list func(ctx context.Context, userID string) ([]model.RequestView, error),
) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	views, err := list(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{key: toRequestViewResponses(views)})
}

// UpdateRequest はリクエストを承認または却下する。所有者のみ。
// PUT /api/request/update-request/{id}
func (h *RequestHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var body updateRequestBody
	if err := decodeJSON(r, &body); err != nil {
		handleServiceError(w, r, err)
		return
	}

	req, book, err := h.service.Decide(r.Context(), userID, chi.URLParam(r, "id"), body.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	action := "却下"
	if req.Status == model.RequestAccepted {
		action = "承認"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("リクエストを%sしました。", action),
		"request": toRequestResponse(req),
		"book":    toBookResponse(book, nil),
	})
}

// BorrowedBooks は借りている書籍を有効な貸出リクエストと共に返す。
// GET /api/request/borrowed-books
func (h *RequestHandler) BorrowedBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	items, err := h.service.BorrowedBooks(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"books": toBorrowedBookResponses(items, true)})
}

// ReturnBook は借り手が返却を申請する。
// PUT /api/request/return-book/{id}
func (h *RequestHandler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	req, err := h.service.RequestReturn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "返却を申請しました。所有者の確認をお待ちください。",
		"request": toRequestResponse(req),
	})
}

// ConfirmReturn は所有者が返却を確認する。
// PUT /api/request/confirm-return/{id}
func (h *RequestHandler) ConfirmReturn(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	req, err := h.service.ConfirmReturn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "返却を確認しました。",
		"request": toRequestResponse(req),
	})
}

// Cancel は承認前のリクエストを取り消す。
// DELETE /api/request/cancel/{id}
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "リクエストを取り消しました。"})
}

// SetReturnDeadline は貸出中の書籍に返却期限を設定する。
// PUT /api/request/set-return-deadline/{id}
func (h *RequestHandler) SetReturnDeadline(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var body setDeadlineBody
	if err := decodeJSON(r, &body); err != nil {
		handleServiceError(w, r, model.NewInvalidDaysError())
		return
	}
	if err := model.ValidateDeadlineDays(body.Days); err != nil {
		handleServiceError(w, r, err)
		return
	}

	book, err := h.service.SetReturnDeadline(r.Context(), userID, chi.URLParam(r, "id"), body.Days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	message := "返却期限を設定しました。"
	if book.ExpectedReturnDate != nil {
		message = fmt.Sprintf("返却期限を%sに設定しました。", book.ExpectedReturnDate.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"book":    toBookResponse(book, nil),
	})
}

// SendReminder は借り手に返却リマインダーを送信する。所有者のみ。
// POST /api/request/send-reminder/{id}
func (h *RequestHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.SendReminder(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "リマインダーを送信しました。"})
}
