package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/foliora/internal/blob"
	"github.com/hitoshi/foliora/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPRecorder      middleware.HTTPRecorder

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	UserService    UserServiceInterface
	BookService    BookServiceInterface
	BorrowService  BorrowServiceInterface
	ProfileService ProfileServiceInterface
	AvatarMaxSize  int64
	Blobs          blob.Store
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//	  → (認証ルートのみ) Auth → RateLimit(General)
//	  → (ログイン・登録のみ) RateLimit(Auth)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	// CORS はプリフライトを認証より前に処理するため上位に適用
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}

	userHandler := NewUserHandler(deps.UserService)
	bookHandler := NewBookHandler(deps.BookService, deps.BorrowService)
	requestHandler := NewRequestHandler(deps.BorrowService)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.AvatarMaxSize)

	authenticated := []func(http.Handler) http.Handler{middleware.NewAuthMiddleware(deps.TokenVerifier)}
	var authLimited []func(http.Handler) http.Handler
	if deps.RateLimiter != nil {
		authenticated = append(authenticated, deps.RateLimiter.GeneralMiddleware())
		authLimited = append(authLimited, deps.RateLimiter.AuthMiddleware())
	}

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.Blobs != nil {
		r.Get("/uploads/{key}", NewUploadHandler(deps.Blobs).Serve)
	}

	// ユーザー
	r.Route("/api/users", func(r chi.Router) {
		r.With(authLimited...).Post("/sign-up", userHandler.SignUp)
		r.With(authLimited...).Post("/login", userHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)
			r.Get("/get-user", userHandler.GetUser)
			r.With(middleware.RequireAdmin).Get("/all-users", userHandler.AllUsers)
		})
	})

	// 書籍
	r.Route("/api/books", func(r chi.Router) {
		r.Get("/recent-books", bookHandler.RecentBooks)
		r.Get("/get-all-books", bookHandler.AllBooks)
		r.Get("/get-book/{bookId}", bookHandler.GetBook)
		r.Get("/filter-books", bookHandler.FilterBooks)

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)
			r.Post("/add-book", bookHandler.AddBook)
			r.Put("/update-book/{bookId}", bookHandler.UpdateBook)
			r.Delete("/delete-book/{bookId}", bookHandler.DeleteBook)
			r.Get("/my-books", bookHandler.MyBooks)
			r.Get("/borrowed-books", bookHandler.BorrowedBooks)
		})
	})

	// 貸出リクエスト
	r.Route("/api/request", func(r chi.Router) {
		r.Get("/search-books", bookHandler.SearchBooks)

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)
			r.Post("/request-book/{bookId}", requestHandler.RequestBook)
			r.Get("/incoming-requests", requestHandler.IncomingRequests)
			r.Get("/my-requests", requestHandler.MyRequests)
			r.Put("/update-request/{id}", requestHandler.UpdateRequest)
			r.Get("/borrowed-books", requestHandler.BorrowedBooks)
			r.Put("/return-book/{id}", requestHandler.ReturnBook)
			r.Put("/confirm-return/{id}", requestHandler.ConfirmReturn)
			r.Get("/borrow-history", requestHandler.BorrowHistory)
			r.Delete("/cancel/{id}", requestHandler.Cancel)
			r.Put("/set-return-deadline/{id}", requestHandler.SetReturnDeadline)
			r.Post("/send-reminder/{id}", requestHandler.SendReminder)
		})
	})

	// プロフィール
	r.Route("/api/profile", func(r chi.Router) {
		r.Use(authenticated...)
		r.Get("/me", profileHandler.Me)
		r.Put("/update", profileHandler.Update)
		r.Put("/change-password", profileHandler.ChangePassword)
		r.Put("/update-avatar", profileHandler.UpdateAvatar)
		r.Delete("/delete", profileHandler.Delete)
		r.Get("/stats", profileHandler.Stats)
	})

	return r
}
