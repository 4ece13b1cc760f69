package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// Messageはクライアントにそのまま返す文言、Detailは元になったエラーの文字列表現。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, workflow, upload, system
	Detail   string // 元エラーの文字列（診断用、省略可）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeUploadRejected    = "UPLOAD_REJECTED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
	}
}

// NewNotOwnerError は記事の所有者でない場合のエラーを生成する。
func NewNotOwnerError() *APIError {
	return NewForbiddenError("Not your article")
}

// NewNotFoundError は "<resource> not found" 形式の未検出エラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  resource + " not found",
		Category: "validation",
	}
}

// NewArticleNotPublishedError は公開記事の取得に失敗した場合のエラーを生成する。
// 未公開と不存在を区別しない単一の文言を返す。
func NewArticleNotPublishedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Article not found or not published",
		Category: "validation",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError(err error) *APIError {
	apiErr := &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body must be valid JSON",
		Category: "validation",
	}
	if err != nil {
		apiErr.Detail = err.Error()
	}
	return apiErr
}

// NewConflictError は一意制約違反エラーを生成する。
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  message,
		Category: "validation",
	}
}

// NewInvalidTransitionError は現在の状態から要求された状態へ遷移できない場合のエラーを生成する。
func NewInvalidTransitionError(from, to ArticleStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("Invalid transition for current state: cannot move article from %q to %q", from, to),
		Category: "workflow",
	}
}

// NewInvalidStateError は現在の状態では操作できない場合のエラーを生成する。
// actionには "edit" や "delete" を指定する。
func NewInvalidStateError(action string, status ArticleStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("Cannot %s an article in %q state", action, status),
		Category: "workflow",
	}
}

// NewInvalidStatusError は未定義のステータスが指定された場合のエラーを生成する。
func NewInvalidStatusError() *APIError {
	names := make([]string, len(AllStatuses))
	for i, s := range AllStatuses {
		names[i] = string(s)
	}
	return NewValidationError("Invalid status. Must be one of: " + strings.Join(names, ", "))
}

// NewInvalidRoleError は未定義のロールが指定された場合のエラーを生成する。
func NewInvalidRoleError() *APIError {
	return NewValidationError("Invalid role. Must be: student, author, or admin")
}

// NewUploadRejectedError はアップロード内容が受け付けられない場合のエラーを生成する。
func NewUploadRejectedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadRejected,
		Message:  message,
		Category: "upload",
	}
}

// NewInternalError は内部エラーを生成する。
// 元エラーの文字列はDetailに保持され、レスポンスのerrorフィールドに出力される。
func NewInternalError(message string, err error) *APIError {
	apiErr := &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
	}
	if err != nil {
		apiErr.Detail = err.Error()
	}
	return apiErr
}
