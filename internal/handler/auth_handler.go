package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login は検証済みIDからローカルユーザーを作成または更新する。
	Login(ctx context.Context, id *identity.Identity) (*model.User, error)
	// Me はUIDに対応するローカルユーザーを返す。
	Me(ctx context.Context, uid string) (*model.User, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

// Login はIdPでのサインイン直後に呼ばれ、ローカルユーザーを同期する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("Not authenticated"))
		return
	}

	user, err := h.service.Login(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "Internal server error")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		User:    toUserResponse(user),
	})
}

// Me はログイン中のユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("Not authenticated"))
		return
	}

	user, err := h.service.Me(r.Context(), id.UID)
	if err != nil {
		handleServiceError(w, err, "Internal server error")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(user)})
}
