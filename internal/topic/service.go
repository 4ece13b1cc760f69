// Package topic はトピック管理のドメインロジックを提供する。
package topic

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
)

// OrderStep は手動並び替えで隣のトピックを追い越すためのオフセット。
// 並び順は相対値のみが意味を持ち、隣接要素の差が1のときに1.5ずらすと入れ替わる。
const OrderStep = 1.5

// Direction は並び替えの方向。
type Direction int

const (
	// Up は表示順を前に移動する。
	Up Direction = -1
	// Down は表示順を後ろに移動する。
	Down Direction = 1
)

// NudgeOrder はorderをdirection方向にOrderStepだけずらした値を返す。
func NudgeOrder(order float64, direction Direction) float64 {
	return order + float64(direction)*OrderStep
}

// CreateInput はトピック作成の入力。
type CreateInput struct {
	Title       string
	Slug        string
	Description string
}

// UpdateInput はトピック更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	Order       *float64
}

// Service はトピック管理のサービス層。
type Service struct {
	repo repository.TopicRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TopicRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List は全トピックを (order, createdAt) の昇順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Topic, error) {
	topics, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("トピック一覧の取得に失敗しました: %w", err)
	}
	return topics, nil
}

// GetBySlug はスラッグでトピックを取得する。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Topic, error) {
	topic, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("トピックの取得に失敗しました: %w", err)
	}
	if topic == nil {
		return nil, model.NewNotFoundError("Topic")
	}
	return topic, nil
}

// Get はIDでトピックを取得する。IDがUUID形式でない場合も未検出として扱う。
func (s *Service) Get(ctx context.Context, id string) (*model.Topic, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("Topic")
	}
	topic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("トピックの取得に失敗しました: %w", err)
	}
	if topic == nil {
		return nil, model.NewNotFoundError("Topic")
	}
	return topic, nil
}

// Create はトピックを作成する。
// スラッグ未指定時はタイトルから生成し、orderは既存の最大値+1（トピックが無い場合は0）とする。
func (s *Service) Create(ctx context.Context, in CreateInput, createdBy string) (*model.Topic, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewValidationError("Title is required")
	}

	slug := model.Slugify(in.Slug)
	if strings.TrimSpace(in.Slug) == "" {
		slug = model.Slugify(title)
	}
	if slug == "" {
		return nil, model.NewValidationError("Slug must contain at least one letter or digit")
	}

	maxOrder, exists, err := s.repo.MaxOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("トピックの並び順の算出に失敗しました: %w", err)
	}
	order := 0.0
	if exists {
		order = maxOrder + 1
	}

	now := s.now()
	topic := &model.Topic{
		ID:          uuid.New().String(),
		Title:       title,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		Order:       order,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, topic); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("A topic with this slug already exists")
		}
		return nil, fmt.Errorf("トピックの作成に失敗しました: %w", err)
	}

	slog.Info("topic created",
		slog.String("topic_id", topic.ID),
		slog.String("slug", topic.Slug),
		slog.String("created_by", createdBy),
	)
	return topic, nil
}

// Update はトピックのtitle、description、orderを部分更新する。
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Topic, error) {
	topic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, model.NewValidationError("Title is required")
		}
		topic.Title = title
	}
	if in.Description != nil {
		topic.Description = strings.TrimSpace(*in.Description)
	}
	if in.Order != nil {
		topic.Order = *in.Order
	}
	topic.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, topic); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Topic")
		}
		return nil, fmt.Errorf("トピックの更新に失敗しました: %w", err)
	}
	return topic, nil
}

// Nudge はトピックの表示順をdirection方向に1つずらす。
func (s *Service) Nudge(ctx context.Context, id string, direction Direction) (*model.Topic, error) {
	topic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	order := NudgeOrder(topic.Order, direction)
	return s.Update(ctx, id, UpdateInput{Order: &order})
}

// Delete はトピックと配下の記事を削除し、削除した記事数を返す。
func (s *Service) Delete(ctx context.Context, id string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, model.NewNotFoundError("Topic")
	}

	deleted, err := s.repo.DeleteWithArticles(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, model.NewNotFoundError("Topic")
	}
	if err != nil {
		return 0, fmt.Errorf("トピックの削除に失敗しました: %w", err)
	}

	slog.Info("topic deleted",
		slog.String("topic_id", id),
		slog.Int64("articles_deleted", deleted),
	)
	return deleted, nil
}
