package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cybershield/internal/article"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	ListMine(ctx context.Context, caller model.Caller) ([]*model.Article, error)
	Create(ctx context.Context, caller model.Caller, in article.CreateInput) (*model.Article, error)
	Get(ctx context.Context, caller model.Caller, id string) (*model.Article, error)
	Update(ctx context.Context, caller model.Caller, id string, in article.UpdateInput) (*model.Article, error)
	Delete(ctx context.Context, caller model.Caller, id string) error
	Submit(ctx context.Context, caller model.Caller, id string) (*model.Article, error)
}

// ArticleHandler は著者向け記事管理のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface) *ArticleHandler {
	return &ArticleHandler{service: service}
}

type createArticleRequest struct {
	Title      string   `json:"title" validate:"max=300"`
	TopicID    string   `json:"topicId" validate:"max=64"`
	Content    string   `json:"content" validate:"max=200000"`
	CoverImage string   `json:"coverImage" validate:"max=2048"`
	Tags       []string `json:"tags" validate:"max=20,dive,max=50"`
}

type updateArticleRequest struct {
	Title      *string  `json:"title" validate:"omitempty,max=300"`
	TopicID    *string  `json:"topicId" validate:"omitempty,max=64"`
	Content    *string  `json:"content" validate:"omitempty,max=200000"`
	CoverImage *string  `json:"coverImage" validate:"omitempty,max=2048"`
	Tags       []string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

type articleEnvelope struct {
	Article articleResponse `json:"article"`
}

type articlesEnvelope struct {
	Articles []articleResponse `json:"articles"`
}

// ListMine は呼び出し元の記事一覧を返す。
// GET /api/articles/my
func (h *ArticleHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	articles, err := h.service.ListMine(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err, "Failed to fetch your articles")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articlesEnvelope{Articles: toArticleResponses(articles, toArticleResponse)})
}

// Create は記事をdraftとして作成する。
// POST /api/articles
func (h *ArticleHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req createArticleRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	a, err := h.service.Create(r.Context(), caller, article.CreateInput{
		Title:      req.Title,
		TopicID:    req.TopicID,
		Content:    req.Content,
		CoverImage: req.CoverImage,
		Tags:       req.Tags,
	})
	if err != nil {
		handleServiceError(w, err, "Failed to create article")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, articleEnvelope{Article: toArticleResponse(a)})
}

// Get は記事を返す。著者本人またはadminのみ取得できる。
// GET /api/articles/{id}
func (h *ArticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	a, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, "Failed to fetch article")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articleEnvelope{Article: toArticleResponse(a)})
}

// Update は記事の内容を更新する。
// PATCH /api/articles/{id}
func (h *ArticleHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req updateArticleRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	a, err := h.service.Update(r.Context(), caller, chi.URLParam(r, "id"), article.UpdateInput{
		Title:      req.Title,
		TopicID:    req.TopicID,
		Content:    req.Content,
		CoverImage: req.CoverImage,
		Tags:       req.Tags,
	})
	if err != nil {
		handleServiceError(w, err, "Failed to update article")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articleEnvelope{Article: toArticleResponse(a)})
}

// Delete はdraftまたはrejectedの記事を削除する。
// DELETE /api/articles/{id}
func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err, "Failed to delete article")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Article deleted"})
}

// Submit は記事をレビュー待ちにする。
// PATCH /api/articles/{id}/submit
func (h *ArticleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	a, err := h.service.Submit(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, "Failed to submit article")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, articleEnvelope{Article: toArticleResponse(a)})
}
