package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cybershield/internal/article"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
)

// TopicListerInterface はトピック一覧の取得に必要なインターフェース。
type TopicListerInterface interface {
	List(ctx context.Context) ([]*model.Topic, error)
}

// PublishedArticleServiceInterface は公開記事の取得に必要なインターフェース。
type PublishedArticleServiceInterface interface {
	ListPublished(ctx context.Context, topicSlug string) (*model.Topic, []*model.Article, error)
	GetPublished(ctx context.Context, topicSlug, articleSlug string) (*model.Topic, *article.PublishedArticle, error)
}

// PublicHandler は認証不要の閲覧用ハンドラー。
type PublicHandler struct {
	topics   TopicListerInterface
	articles PublishedArticleServiceInterface
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(topics TopicListerInterface, articles PublishedArticleServiceInterface) *PublicHandler {
	return &PublicHandler{topics: topics, articles: articles}
}

type topicsEnvelope struct {
	Topics []topicResponse `json:"topics"`
}

type publicArticlesEnvelope struct {
	Topic    topicResponse           `json:"topic"`
	Articles []publicArticleResponse `json:"articles"`
}

type publicArticleEnvelope struct {
	Topic   topicResponse         `json:"topic"`
	Article publicArticleResponse `json:"article"`
}

// ListTopics はトピックを表示順に返す。
// GET /api/topics
func (h *PublicHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.List(r.Context())
	if err != nil {
		handleServiceError(w, err, "Failed to fetch topics")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, topicsEnvelope{Topics: toTopicResponses(topics)})
}

// ListArticles はトピック内の公開記事を返す。
// GET /api/topics/{slug}/articles
func (h *PublicHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	topic, articles, err := h.articles.ListPublished(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err, "Failed to fetch articles")
		return
	}

	out := make([]publicArticleResponse, len(articles))
	for i, a := range articles {
		out[i] = toPublicArticleResponse(a)
	}
	middleware.WriteJSON(w, http.StatusOK, publicArticlesEnvelope{
		Topic:    toTopicResponse(topic),
		Articles: out,
	})
}

// GetArticle は公開記事を本文とレンダリング済みHTMLを含めて返す。
// GET /api/topics/{topicSlug}/articles/{articleSlug}
func (h *PublicHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	topic, pub, err := h.articles.GetPublished(r.Context(), chi.URLParam(r, "topicSlug"), chi.URLParam(r, "articleSlug"))
	if err != nil {
		handleServiceError(w, err, "Failed to fetch article")
		return
	}

	resp := toPublicArticleResponse(pub.Article)
	resp.Content = pub.Content
	resp.ContentHTML = pub.ContentHTML
	middleware.WriteJSON(w, http.StatusOK, publicArticleEnvelope{
		Topic:   toTopicResponse(topic),
		Article: resp,
	})
}
