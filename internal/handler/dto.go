package handler

import (
	"time"

	"github.com/hitoshi/foliora/internal/model"
)

// messageResponse はペイロードを持たない成功レスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// userSummaryResponse は他のリソースに埋め込むユーザーの公開情報。
type userSummaryResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar,omitempty"`
}

// bookResponse は書籍情報のAPIレスポンス。
type bookResponse struct {
	ID                 string               `json:"id"`
	Title              string               `json:"title"`
	Author             string               `json:"author"`
	Description        string               `json:"description"`
	Genre              string               `json:"genre"`
	ImageURL           string               `json:"imageUrl"`
	OwnerID            string               `json:"ownerId"`
	Owner              *userSummaryResponse `json:"owner,omitempty"`
	Status             string               `json:"status"`
	BorrowedBy         string               `json:"borrowedBy,omitempty"`
	ExpectedReturnDate *time.Time           `json:"expectedReturnDate,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// requestResponse は貸出リクエストのAPIレスポンス。
type requestResponse struct {
	ID                 string               `json:"id"`
	BookID             string               `json:"bookId"`
	Book               *bookResponse        `json:"book,omitempty"`
	RequesterID        string               `json:"requesterId"`
	Requester          *userSummaryResponse `json:"requester,omitempty"`
	OwnerID            string               `json:"ownerId"`
	Owner              *userSummaryResponse `json:"owner,omitempty"`
	Status             string               `json:"status"`
	RequestDate        time.Time            `json:"requestDate"`
	ReturnRequestDate  *time.Time           `json:"returnRequestDate,omitempty"`
	ReturnDate         *time.Time           `json:"returnDate,omitempty"`
	ExpectedReturnDate *time.Time           `json:"expectedReturnDate,omitempty"`
	LastReminderAt     *time.Time           `json:"lastReminderAt,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// borrowedBookResponse は借りている書籍と有効な貸出リクエストの組。
type borrowedBookResponse struct {
	bookResponse
	BorrowRequest *requestResponse `json:"borrowRequest,omitempty"`
}

// statsResponse はプロフィール統計のAPIレスポンス。
type statsResponse struct {
	OwnedBooks    int `json:"ownedBooks"`
	BorrowedBooks int `json:"borrowedBooks"`
	TotalRequests int `json:"totalRequests"`
}

// --- 変換関数 ---

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Address:   u.Address,
		Avatar:    u.Avatar,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u)
	}
	return results
}

func toUserSummaryResponse(s *model.UserSummary) *userSummaryResponse {
	if s == nil {
		return nil
	}
	return &userSummaryResponse{
		ID:       s.ID,
		Username: s.Username,
		Email:    s.Email,
		Avatar:   s.Avatar,
	}
}

func toBookResponse(b *model.Book, owner *model.UserSummary) bookResponse {
	return bookResponse{
		ID:                 b.ID,
		Title:              b.Title,
		Author:             b.Author,
		Description:        b.Description,
		Genre:              b.Genre,
		ImageURL:           b.ImageURL,
		OwnerID:            b.OwnerID,
		Owner:              toUserSummaryResponse(owner),
		Status:             string(b.Status),
		BorrowedBy:         b.BorrowedBy,
		ExpectedReturnDate: b.ExpectedReturnDate,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func toBookResponses(books []*model.Book) []bookResponse {
	results := make([]bookResponse, len(books))
	for i, b := range books {
		results[i] = toBookResponse(b, nil)
	}
	return results
}

func toRequestResponse(r *model.BorrowRequest) requestResponse {
	return requestResponse{
		ID:                 r.ID,
		BookID:             r.BookID,
		RequesterID:        r.RequesterID,
		OwnerID:            r.OwnerID,
		Status:             string(r.Status),
		RequestDate:        r.RequestDate,
		ReturnRequestDate:  r.ReturnRequestedAt,
		ReturnDate:         r.ReturnDate,
		ExpectedReturnDate: r.ExpectedReturnDate,
		LastReminderAt:     r.LastReminderAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func toRequestViewResponses(views []model.RequestView) []requestResponse {
	results := make([]requestResponse, len(views))
	for i, v := range views {
		resp := toRequestResponse(&v.Request)
		if v.Book != nil {
			book := toBookResponse(v.Book, nil)
			resp.Book = &book
		}
		resp.Requester = toUserSummaryResponse(v.Requester)
		resp.Owner = toUserSummaryResponse(v.Owner)
		results[i] = resp
	}
	return results
}

// toBorrowedBookResponses は借りている書籍の一覧を変換する。
// withRequest がfalseの場合は貸出リクエストを含めない。
func toBorrowedBookResponses(items []model.BorrowedBook, withRequest bool) []borrowedBookResponse {
	results := make([]borrowedBookResponse, len(items))
	for i, item := range items {
		resp := borrowedBookResponse{bookResponse: toBookResponse(&item.Book, item.Owner)}
		if withRequest && item.Request != nil {
			req := toRequestResponse(item.Request)
			resp.BorrowRequest = &req
		}
		results[i] = resp
	}
	return results
}
