package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
	"github.com/hitoshi/cybershield/internal/workflow"
)

// List は管理者向けに記事を絞り込んで返す。空文字の条件は無視する。
func (s *Service) List(ctx context.Context, status, topicID string) ([]*model.Article, error) {
	var filter model.ArticleFilter
	if status != "" {
		st, ok := model.ParseArticleStatus(status)
		if !ok {
			return nil, model.NewInvalidStatusError()
		}
		filter.Status = st
	}
	if topicID != "" {
		if _, err := uuid.Parse(topicID); err != nil {
			return nil, model.NewValidationError("Invalid topicId")
		}
		filter.TopicID = topicID
	}

	articles, err := s.articles.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// SetStatus は管理者として記事の状態を変更する。
// rejectedへの遷移時、reasonが空でなければ差し戻し理由として保存する。
func (s *Service) SetStatus(ctx context.Context, caller model.Caller, id, status, reason string) (*model.Article, error) {
	to, ok := model.ParseArticleStatus(status)
	if !ok {
		return nil, model.NewInvalidStatusError()
	}
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	from := a.Status
	if err := s.transition(ctx, a, to, workflow.ActorAdmin, strings.TrimSpace(reason)); err != nil {
		return nil, err
	}

	slog.Info("article status changed",
		slog.String("article_id", a.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("by", caller.UID),
	)
	return a, nil
}

// SetOrder はトピック内での記事の表示順を変更する。
func (s *Service) SetOrder(ctx context.Context, id string, order float64) (*model.Article, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Order = order
	a.UpdatedAt = s.now()

	if err := s.articles.UpdateOrder(ctx, id, order, a.UpdatedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Article")
		}
		return nil, fmt.Errorf("記事の並び順の更新に失敗しました: %w", err)
	}
	return a, nil
}

// AllowedTransitions は管理者が記事を遷移させられる状態の一覧を返す。
func AllowedTransitions(a *model.Article) []model.ArticleStatus {
	return workflow.Targets(a.Status, workflow.ActorAdmin)
}
