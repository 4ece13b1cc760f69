package article

import (
	"context"
	"fmt"

	"github.com/hitoshi/cybershield/internal/model"
)

// PublishedArticle は公開記事と描画済みHTMLの組。
type PublishedArticle struct {
	*model.Article
	ContentHTML string
}

// ListPublished はトピック配下の公開記事を (order ASC, publishedAt DESC) で返す。
func (s *Service) ListPublished(ctx context.Context, topicSlug string) (*model.Topic, []*model.Article, error) {
	topic, err := s.topics.FindBySlug(ctx, topicSlug)
	if err != nil {
		return nil, nil, fmt.Errorf("トピックの取得に失敗しました: %w", err)
	}
	if topic == nil {
		return nil, nil, model.NewNotFoundError("Topic")
	}

	articles, err := s.articles.ListPublishedByTopic(ctx, topic.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("公開記事一覧の取得に失敗しました: %w", err)
	}
	return topic, articles, nil
}

// GetPublished はトピックスラッグと記事スラッグで公開記事を取得する。
// トピック・記事が存在しない場合と未公開の場合は同じエラーを返す。
func (s *Service) GetPublished(ctx context.Context, topicSlug, articleSlug string) (*model.Topic, *PublishedArticle, error) {
	topic, err := s.topics.FindBySlug(ctx, topicSlug)
	if err != nil {
		return nil, nil, fmt.Errorf("トピックの取得に失敗しました: %w", err)
	}
	if topic == nil {
		return nil, nil, model.NewArticleNotPublishedError()
	}

	a, err := s.articles.FindPublished(ctx, topic.ID, articleSlug)
	if err != nil {
		return nil, nil, fmt.Errorf("公開記事の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, nil, model.NewArticleNotPublishedError()
	}

	out := &PublishedArticle{Article: a}
	if s.renderer != nil {
		html, err := s.renderer.Render(a.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("記事のレンダリングに失敗しました: %w", err)
		}
		out.ContentHTML = html
	}
	return topic, out, nil
}
