package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/model"
)

// AuthFailureRecorder は認証・認可の失敗を記録する。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// 認証失敗の理由ラベル
const (
	AuthFailureMissingToken = "missing_token"
	AuthFailureInvalidToken = "invalid_token"
	AuthFailureUnknownUser  = "unknown_user"
	AuthFailureForbidden    = "forbidden"
)

const bearerPrefix = "Bearer "

// NewAuthMiddleware はAuthorization: Bearer ヘッダーのIDトークンを検証し、
// 検証済みIDをコンテキストに注入するミドルウェアを返す。
func NewAuthMiddleware(verifier identity.Verifier, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
			if !strings.HasPrefix(header, bearerPrefix) || token == "" {
				recordAuthFailure(recorder, AuthFailureMissingToken)
				WriteJSON(w, http.StatusUnauthorized, ErrorResponseBody{
					Message: "Missing or invalid Authorization header",
					Code:    model.ErrCodeUnauthorized,
				})
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				recordAuthFailure(recorder, AuthFailureInvalidToken)
				slog.Warn("id token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apiErr := model.NewUnauthorizedError("Invalid or expired token")
				apiErr.Detail = err.Error()
				WriteErrorResponse(w, apiErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

func recordAuthFailure(recorder AuthFailureRecorder, reason string) {
	if recorder != nil {
		recorder.RecordAuthFailure(reason)
	}
}
