// Package article は記事の執筆・レビュー・公開ワークフローのドメインロジックを提供する。
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
	"github.com/hitoshi/cybershield/internal/workflow"
)

// Renderer はMarkdown本文を公開用のHTMLに変換する。
type Renderer interface {
	Render(markdown string) (string, error)
}

// TransitionObserver は状態遷移の成功を記録する。
type TransitionObserver interface {
	ObserveTransition(from, to model.ArticleStatus)
}

// CreateInput は記事作成の入力。
type CreateInput struct {
	Title      string
	TopicID    string
	Content    string
	CoverImage string
	Tags       []string
}

// UpdateInput は記事更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title      *string
	TopicID    *string
	Content    *string
	CoverImage *string
	Tags       []string // nilの場合は変更しない
}

// Service は記事のサービス層。
type Service struct {
	articles repository.ArticleRepository
	topics   repository.TopicRepository
	renderer Renderer
	observer TransitionObserver
	clock    *slugClock
	now      func() time.Time
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithRenderer は公開記事のHTML変換に使うRendererを設定する。
func WithRenderer(r Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithTransitionObserver は状態遷移の記録先を設定する。
func WithTransitionObserver(o TransitionObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(articles repository.ArticleRepository, topics repository.TopicRepository, opts ...Option) *Service {
	s := &Service{
		articles: articles,
		topics:   topics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = newSlugClock(func() time.Time { return s.now() })
	return s
}

// ListMine は呼び出し元が執筆した記事を作成日時の降順で返す。
func (s *Service) ListMine(ctx context.Context, caller model.Caller) ([]*model.Article, error) {
	articles, err := s.articles.ListByAuthor(ctx, caller.UID)
	if err != nil {
		return nil, fmt.Errorf("自分の記事一覧の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// Create は記事を下書きとして作成する。
func (s *Service) Create(ctx context.Context, caller model.Caller, in CreateInput) (*model.Article, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.TopicID == "" || strings.TrimSpace(in.Content) == "" {
		return nil, model.NewValidationError("title, topicId, and content are required")
	}
	if err := s.requireTopic(ctx, in.TopicID); err != nil {
		return nil, err
	}

	now := s.now()
	a := &model.Article{
		ID:         uuid.New().String(),
		Title:      title,
		Slug:       model.ArticleSlug(title, s.clock.next()),
		TopicID:    in.TopicID,
		Content:    in.Content,
		CoverImage: strings.TrimSpace(in.CoverImage),
		AuthorUID:  caller.UID,
		AuthorName: caller.DisplayName(),
		Status:     model.StatusDraft,
		Tags:       model.NormalizeTags(in.Tags),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.articles.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("Duplicate slug. Try a slightly different title.")
		}
		// 存在確認の後にトピックが削除された
		if errors.Is(err, repository.ErrReferenceMissing) {
			return nil, model.NewNotFoundError("Topic")
		}
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	slog.Info("article created",
		slog.String("article_id", a.ID),
		slog.String("author_uid", a.AuthorUID),
		slog.String("topic_id", a.TopicID),
	)
	return a, nil
}

// Get は記事を取得する。著者本人とadminのみ参照できる。
func (s *Service) Get(ctx context.Context, caller model.Caller, id string) (*model.Article, error) {
	return s.findOwned(ctx, caller, id)
}

// Update は記事の本文系フィールドを部分更新する。
// 著者はdraftまたはrejectedの記事のみ編集でき、adminは状態に関係なく編集できる。
func (s *Service) Update(ctx context.Context, caller model.Caller, id string, in UpdateInput) (*model.Article, error) {
	a, err := s.findOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !workflow.CanEditContent(a.Status, caller.IsAdmin()) {
		return nil, model.NewInvalidStateError("edit", a.Status)
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, model.NewValidationError("title must not be empty")
		}
		a.Title = title
	}
	if in.TopicID != nil && *in.TopicID != a.TopicID {
		if err := s.requireTopic(ctx, *in.TopicID); err != nil {
			return nil, err
		}
		a.TopicID = *in.TopicID
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, model.NewValidationError("content must not be empty")
		}
		a.Content = *in.Content
	}
	if in.CoverImage != nil {
		a.CoverImage = strings.TrimSpace(*in.CoverImage)
	}
	if in.Tags != nil {
		a.Tags = model.NormalizeTags(in.Tags)
	}
	a.UpdatedAt = s.now()

	if err := s.articles.UpdateContent(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Article")
		}
		if errors.Is(err, repository.ErrReferenceMissing) {
			return nil, model.NewNotFoundError("Topic")
		}
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return a, nil
}

// Delete は記事を削除する。draftまたはrejectedの記事のみ削除できる。
func (s *Service) Delete(ctx context.Context, caller model.Caller, id string) error {
	a, err := s.findOwned(ctx, caller, id)
	if err != nil {
		return err
	}
	if !workflow.CanDelete(a.Status) {
		return model.NewInvalidStateError("delete", a.Status)
	}

	if err := s.articles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Article")
		}
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}

	slog.Info("article deleted",
		slog.String("article_id", id),
		slog.String("by", caller.UID),
	)
	return nil
}

// Submit は著者が記事をレビュー待ちにする。
// 著者本人のみ実行でき、adminであっても他人の記事は提出できない。
func (s *Service) Submit(ctx context.Context, caller model.Caller, id string) (*model.Article, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsOwnedBy(caller.UID) {
		return nil, model.NewNotOwnerError()
	}

	if err := s.transition(ctx, a, model.StatusPending, workflow.ActorOwner, ""); err != nil {
		return nil, err
	}

	slog.Info("article submitted",
		slog.String("article_id", a.ID),
		slog.String("author_uid", a.AuthorUID),
	)
	return a, nil
}

// transition はワークフローの遷移を検証し、直前の状態を条件に永続化する。
// 他のリクエストが先に状態を変えていた場合は遷移エラーとして扱う。
func (s *Service) transition(ctx context.Context, a *model.Article, to model.ArticleStatus, actor workflow.Actor, reason string) error {
	from := a.Status
	now := s.now()
	if err := workflow.Apply(a, to, actor, reason, now); err != nil {
		return model.NewInvalidTransitionError(from, to)
	}
	a.UpdatedAt = now

	applied, err := s.articles.UpdateStatus(ctx, a, from)
	if err != nil {
		return fmt.Errorf("記事ステータスの更新に失敗しました: %w", err)
	}
	if !applied {
		slog.Warn("article status changed concurrently",
			slog.String("article_id", a.ID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return model.NewInvalidTransitionError(from, to)
	}

	if s.observer != nil {
		s.observer.ObserveTransition(from, to)
	}
	return nil
}

// find はIDで記事を取得する。IDがUUID形式でない場合も未検出として扱う。
func (s *Service) find(ctx context.Context, id string) (*model.Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("Article")
	}
	a, err := s.articles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewNotFoundError("Article")
	}
	return a, nil
}

// findOwned は記事を取得し、呼び出し元が著者本人かadminであることを確認する。
func (s *Service) findOwned(ctx context.Context, caller model.Caller, id string) (*model.Article, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !a.IsOwnedBy(caller.UID) {
		return nil, model.NewNotOwnerError()
	}
	return a, nil
}

func (s *Service) requireTopic(ctx context.Context, topicID string) error {
	if _, err := uuid.Parse(topicID); err != nil {
		return model.NewNotFoundError("Topic")
	}
	topic, err := s.topics.FindByID(ctx, topicID)
	if err != nil {
		return fmt.Errorf("トピックの取得に失敗しました: %w", err)
	}
	if topic == nil {
		return model.NewNotFoundError("Topic")
	}
	return nil
}
