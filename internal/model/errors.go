// Package model はドメインモデルを定義する。
package model

import "fmt"

// ErrorKind はHTTPステータスへ対応付けられるエラー種別。
type ErrorKind string

// 定義済みエラー種別
const (
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindInvalidState ErrorKind = "invalid_state"
	KindInvalidInput ErrorKind = "invalid_input"
	KindUnauthorized ErrorKind = "unauthorized"
	KindConflict     ErrorKind = "conflict"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInternal     ErrorKind = "internal"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // エラー種別
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, book, request, profile, system
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBookNotFound           = "BOOK_NOT_FOUND"
	ErrCodeRequestNotFound        = "REQUEST_NOT_FOUND"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeOwnBook                = "OWN_BOOK"
	ErrCodeBookAlreadyBorrowed    = "BOOK_ALREADY_BORROWED"
	ErrCodeRequestAlreadyAccepted = "REQUEST_ALREADY_ACCEPTED"
	ErrCodeDuplicateRequest       = "DUPLICATE_REQUEST"
	ErrCodeInvalidStatus          = "INVALID_STATUS"
	ErrCodeNotRequestOwner        = "NOT_REQUEST_OWNER"
	ErrCodeNotRequester           = "NOT_REQUESTER"
	ErrCodeNotBookOwner           = "NOT_BOOK_OWNER"
	ErrCodeInvalidRequestState    = "INVALID_REQUEST_STATE"
	ErrCodeNotCurrentlyBorrowed   = "NOT_CURRENTLY_BORROWED"
	ErrCodeReturnNotRequested     = "RETURN_NOT_REQUESTED"
	ErrCodeNotCancellable         = "NOT_CANCELLABLE"
	ErrCodeInvalidDays            = "INVALID_DAYS"
	ErrCodeEmailSendFailed        = "EMAIL_SEND_FAILED"
	ErrCodeDuplicateBook          = "DUPLICATE_BOOK"
	ErrCodeBookOnLoan             = "BOOK_ON_LOAN"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeUsernameTaken          = "USERNAME_TAKEN"
	ErrCodeEmailTaken             = "EMAIL_TAKEN"
	ErrCodeTokenMissing           = "TOKEN_MISSING"
	ErrCodeTokenInvalid           = "TOKEN_INVALID"
	ErrCodeAdminOnly              = "ADMIN_ONLY"
	ErrCodeAccountInUse           = "ACCOUNT_IN_USE"
	ErrCodeAvatarTooLarge         = "AVATAR_TOO_LARGE"
	ErrCodeFileNotFound           = "FILE_NOT_FOUND"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewBookNotFoundError は書籍未検出エラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された書籍が見つかりません: %s", bookID),
		Category: "book",
		Action:   "書籍IDを確認してください。",
	}
}

// NewRequestNotFoundError は貸出リクエスト未検出エラーを生成する。
func NewRequestNotFoundError(requestID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeRequestNotFound,
		Message:  fmt.Sprintf("指定されたリクエストが見つかりません: %s", requestID),
		Category: "request",
		Action:   "リクエストIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewOwnBookError は自分の書籍を借りようとした場合のエラーを生成する。
func NewOwnBookError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeOwnBook,
		Message:  "自分の書籍を借りることはできません。",
		Category: "request",
		Action:   "他のユーザーの書籍を選択してください。",
	}
}

// NewBookAlreadyBorrowedError は書籍が貸出中の場合のエラーを生成する。
func NewBookAlreadyBorrowedError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeBookAlreadyBorrowed,
		Message:  "この書籍は既に貸出中です。",
		Category: "request",
		Action:   "返却されるまでお待ちください。",
	}
}

// NewRequestAlreadyAcceptedError は承認済みリクエストが存在する場合のエラーを生成する。
func NewRequestAlreadyAcceptedError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeRequestAlreadyAccepted,
		Message:  "この書籍には既に承認済みのリクエストがあります。",
		Category: "request",
		Action:   "返却されるまでお待ちください。",
	}
}

// NewDuplicateRequestError は同一書籍への保留中リクエストが既にある場合のエラーを生成する。
func NewDuplicateRequestError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateRequest,
		Message:  "この書籍には既にリクエストを送信しています。",
		Category: "request",
		Action:   "所有者の返答をお待ちください。",
	}
}

// NewInvalidStatusError は無効なステータス指定のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %q", status),
		Category: "validation",
		Action:   "有効なステータスを指定してください。",
	}
}

// NewNotRequestOwnerError は書籍所有者以外がリクエストを操作した場合のエラーを生成する。
func NewNotRequestOwnerError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeNotRequestOwner,
		Message:  "このリクエストを操作する権限がありません。",
		Category: "request",
		Action:   "書籍の所有者のみが操作できます。",
	}
}

// NewNotRequesterError は申請者以外がリクエストを操作した場合のエラーを生成する。
func NewNotRequesterError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeNotRequester,
		Message:  "このリクエストを操作する権限がありません。",
		Category: "request",
		Action:   "リクエストの申請者のみが操作できます。",
	}
}

// NewNotBookOwnerError は所有者以外が書籍を操作した場合のエラーを生成する。
func NewNotBookOwnerError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeNotBookOwner,
		Message:  "この書籍を操作する権限がありません。",
		Category: "book",
		Action:   "書籍の所有者のみが操作できます。",
	}
}

// NewInvalidRequestStateError はリクエストが承認可能な状態でない場合のエラーを生成する。
func NewInvalidRequestStateError(status RequestStatus) *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeInvalidRequestState,
		Message:  fmt.Sprintf("現在のリクエスト状態では操作できません: %s", status),
		Category: "request",
		Action:   "リクエスト一覧を再読み込みしてください。",
	}
}

// NewNotCurrentlyBorrowedError は貸出中でないリクエストへの操作エラーを生成する。
func NewNotCurrentlyBorrowedError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeNotCurrentlyBorrowed,
		Message:  "この書籍は現在貸出中ではありません。",
		Category: "request",
		Action:   "リクエストの状態を確認してください。",
	}
}

// NewReturnNotRequestedError は返却申請されていないリクエストの返却確認エラーを生成する。
func NewReturnNotRequestedError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeReturnNotRequested,
		Message:  "返却申請がされていません。",
		Category: "request",
		Action:   "借り手による返却申請をお待ちください。",
	}
}

// NewNotCancellableError は取り消しできない状態のリクエストのエラーを生成する。
func NewNotCancellableError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeNotCancellable,
		Message:  "このリクエストは取り消せません。",
		Category: "request",
		Action:   "保留中のリクエストのみ取り消せます。",
	}
}

// NewInvalidDaysError は返却期限の日数が不正な場合のエラーを生成する。
func NewInvalidDaysError() *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeInvalidDays,
		Message:  "日数が不正です。",
		Category: "validation",
		Action:   fmt.Sprintf("1から%dまでの整数を指定してください。", MaxDeadlineDays),
	}
}

// NewEmailSendFailedError はメール送信失敗エラーを生成する。
func NewEmailSendFailedError() *APIError {
	return &APIError{
		Kind:     KindInternal,
		Code:     ErrCodeEmailSendFailed,
		Message:  "リマインダーメールの送信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDuplicateBookError は同じタイトルと著者の書籍を重複登録した場合のエラーを生成する。
func NewDuplicateBookError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateBook,
		Message:  "同じタイトルと著者の書籍は既に登録されています。",
		Category: "book",
		Action:   "マイ書籍一覧を確認してください。",
	}
}

// NewBookOnLoanError は貸出中の書籍を削除しようとした場合のエラーを生成する。
func NewBookOnLoanError() *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeBookOnLoan,
		Message:  "貸出中の書籍は削除できません。",
		Category: "book",
		Action:   "返却を確認してから削除してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeUsernameTaken,
		Message:  "このユーザー名は既に使用されています。",
		Category: "auth",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを指定するか、ログインしてください。",
	}
}

// NewTokenMissingError はトークン未指定エラーを生成する。
func NewTokenMissingError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeTokenMissing,
		Message:  "認証トークンがありません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTokenInvalidError はトークン不正エラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeTokenInvalid,
		Message:  "認証トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAdminOnlyError は管理者専用操作のエラーを生成する。
func NewAdminOnlyError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeAdminOnly,
		Message:  "管理者のみ実行できる操作です。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewAccountInUseError は貸し借りが残っているアカウントの削除エラーを生成する。
func NewAccountInUseError(reason string) *APIError {
	return &APIError{
		Kind:     KindInvalidState,
		Code:     ErrCodeAccountInUse,
		Message:  reason,
		Category: "profile",
		Action:   "すべての貸し借りを完了してから退会してください。",
	}
}

// NewAvatarTooLargeError はアバター画像のサイズ超過エラーを生成する。
func NewAvatarTooLargeError(limit string) *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeAvatarTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限（%s）を超えています。", limit),
		Category: "validation",
		Action:   "より小さい画像を選択してください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Kind:     KindRateLimited,
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Kind:     KindInternal,
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewFileNotFoundError はアップロード済みファイルが見つからない場合のエラーを生成する。
func NewFileNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeFileNotFound,
		Message:  "ファイルが見つかりません。",
		Category: "profile",
		Action:   "URLを確認してください。",
	}
}
