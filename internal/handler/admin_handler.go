package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/topic"
)

// TopicAdminServiceInterface はトピック管理に必要なサービスインターフェース。
type TopicAdminServiceInterface interface {
	List(ctx context.Context) ([]*model.Topic, error)
	Create(ctx context.Context, in topic.CreateInput, createdBy string) (*model.Topic, error)
	Update(ctx context.Context, id string, in topic.UpdateInput) (*model.Topic, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// ArticleAdminServiceInterface は記事レビューに必要なサービスインターフェース。
type ArticleAdminServiceInterface interface {
	List(ctx context.Context, status, topicID string) ([]*model.Article, error)
	SetStatus(ctx context.Context, caller model.Caller, id, status, reason string) (*model.Article, error)
	SetOrder(ctx context.Context, id string, order float64) (*model.Article, error)
}

// UserAdminServiceInterface はユーザー管理に必要なサービスインターフェース。
type UserAdminServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	SetRole(ctx context.Context, uid, role string) (*model.User, error)
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	topics   TopicAdminServiceInterface
	articles ArticleAdminServiceInterface
	users    UserAdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(topics TopicAdminServiceInterface, articles ArticleAdminServiceInterface, users UserAdminServiceInterface) *AdminHandler {
	return &AdminHandler{topics: topics, articles: articles, users: users}
}

type createTopicRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Slug        string `json:"slug" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type updateTopicRequest struct {
	Title       *string  `json:"title" validate:"omitempty,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Order       *float64 `json:"order"`
}

type setStatusRequest struct {
	Status          string `json:"status"`
	RejectionReason string `json:"rejectionReason" validate:"max=2000"`
}

// orderは数値以外を400で返すためanyで受ける
type setOrderRequest struct {
	Order any `json:"order"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type topicEnvelope struct {
	Topic topicResponse `json:"topic"`
}

type usersEnvelope struct {
	Users []userResponse `json:"users"`
}

type roleUpdatedResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type topicDeletedResponse struct {
	Message         string `json:"message"`
	DeletedArticles int64  `json:"deletedArticles"`
}

// --- トピック ---

// ListTopics はトピックを表示順に返す。
// GET /api/admin/topics
func (h *AdminHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.List(r.Context())
	if err != nil {
		handleServiceError(w, err, "Failed to fetch topics")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, topicsEnvelope{Topics: toTopicResponses(topics)})
}

// CreateTopic はトピックを作成する。
// POST /api/admin/topics
func (h *AdminHandler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req createTopicRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	t, err := h.topics.Create(r.Context(), topic.CreateInput{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
	}, caller.UID)
	if err != nil {
		handleServiceError(w, err, "Failed to create topic")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, topicEnvelope{Topic: toTopicResponse(t)})
}

// UpdateTopic はトピックを部分更新する。
// PATCH /api/admin/topics/{id}
func (h *AdminHandler) UpdateTopic(w http.ResponseWriter, r *http.Request) {
	var req updateTopicRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	t, err := h.topics.Update(r.Context(), chi.URLParam(r, "id"), topic.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Order:       req.Order,
	})
	if err != nil {
		handleServiceError(w, err, "Failed to update topic")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, topicEnvelope{Topic: toTopicResponse(t)})
}

// DeleteTopic はトピックと配下の記事をすべて削除する。
// DELETE /api/admin/topics/{id}
func (h *AdminHandler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	n, err := h.topics.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, "Failed to delete topic")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, topicDeletedResponse{
		Message:         "Topic and associated articles deleted",
		DeletedArticles: n,
	})
}

// --- 記事レビュー ---

// ListArticles はstatusとtopicIdで絞り込んだ記事を返す。
// GET /api/admin/articles?status=&topicId=
func (h *AdminHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articles, err := h.articles.List(r.Context(), q.Get("status"), q.Get("topicId"))
	if err != nil {
		handleServiceError(w, err, "Failed to fetch articles")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articlesEnvelope{Articles: toArticleResponses(articles, toAdminArticleResponse)})
}

// SetArticleStatus は記事を承認・差し戻し・公開・非公開にする。
// PATCH /api/admin/articles/{id}/status
func (h *AdminHandler) SetArticleStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req setStatusRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	a, err := h.articles.SetStatus(r.Context(), caller, chi.URLParam(r, "id"), req.Status, req.RejectionReason)
	if err != nil {
		handleServiceError(w, err, "Failed to update status")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articleEnvelope{Article: toAdminArticleResponse(a)})
}

// SetArticleOrder はトピック内での記事の表示順を変更する。
// PATCH /api/admin/articles/{id}/order
func (h *AdminHandler) SetArticleOrder(w http.ResponseWriter, r *http.Request) {
	var req setOrderRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}
	order, ok := req.Order.(float64)
	if !ok {
		middleware.WriteErrorResponse(w, model.NewValidationError("order must be a number"))
		return
	}

	a, err := h.articles.SetOrder(r.Context(), chi.URLParam(r, "id"), order)
	if err != nil {
		handleServiceError(w, err, "Failed to update order")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articleEnvelope{Article: toAdminArticleResponse(a)})
}

// --- ユーザー ---

// ListUsers はユーザーを新しい順に返す。
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		handleServiceError(w, err, "Failed to fetch users")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, usersEnvelope{Users: toUserResponses(users)})
}

// SetUserRole はユーザーのロールを変更する。
// PATCH /api/admin/users/{uid}/role
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	u, err := h.users.SetRole(r.Context(), chi.URLParam(r, "uid"), req.Role)
	if err != nil {
		handleServiceError(w, err, "Failed to update role")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, roleUpdatedResponse{
		Message: "Role updated",
		User:    toUserResponse(u),
	})
}
