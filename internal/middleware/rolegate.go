package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cybershield/internal/model"
)

// UserFinder はロール判定に必要なユーザー検索のインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByUID(ctx context.Context, uid string) (*model.User, error)
}

// RequireRole はリクエストごとにローカルユーザーディレクトリからロールを引き、
// rolesのいずれか（adminは常に許可）を持つ場合のみ後続に進めるミドルウェアを返す。
// 通過したリクエストのコンテキストにはmodel.Callerが注入される。
func RequireRole(users UserFinder, recorder AuthFailureRecorder, roles ...model.Role) func(next http.Handler) http.Handler {
	set := model.NewRoleSet(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				recordAuthFailure(recorder, AuthFailureMissingToken)
				WriteErrorResponse(w, model.NewUnauthorizedError("Not authenticated"))
				return
			}

			user, err := users.FindByUID(r.Context(), id.UID)
			if err != nil {
				slog.Error("role check failed",
					slog.String("uid", id.UID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w, "Role check error", err)
				return
			}
			if user == nil {
				recordAuthFailure(recorder, AuthFailureUnknownUser)
				WriteErrorResponse(w, model.NewUnauthorizedError("User not found in database"))
				return
			}

			if !set.Permits(user.Role) {
				recordAuthFailure(recorder, AuthFailureForbidden)
				WriteErrorResponse(w, model.NewForbiddenError("Access denied. Required role: "+set.String()))
				return
			}

			caller := model.Caller{UID: id.UID, Email: id.Email, User: user}
			if caller.Email == "" {
				caller.Email = user.Email
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}
