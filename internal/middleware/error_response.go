package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cybershield/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// Errorは500系でのみ元エラーの文字列を含む。
type ErrorResponseBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusCode はエラーコードに対応するHTTPステータスを返す。
func StatusCode(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidTransition, model.ErrCodeInvalidState,
		model.ErrCodeUploadRejected:
		return http.StatusBadRequest
	case model.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON はJSONレスポンスを書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	status := StatusCode(apiErr)
	body := ErrorResponseBody{
		Message: apiErr.Message,
		Code:    apiErr.Code,
	}
	// 401と500は呼び出し元に原因の文字列を返す
	if status == http.StatusInternalServerError || apiErr.Code == model.ErrCodeUnauthorized {
		body.Error = apiErr.Detail
	}
	WriteJSON(w, status, body)
}

// WriteInternalServerError は内部エラーのレスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter, message string, err error) {
	WriteErrorResponse(w, model.NewInternalError(message, err))
}
