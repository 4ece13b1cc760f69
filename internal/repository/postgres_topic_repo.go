package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cybershield/internal/model"
)

const topicColumns = `id, title, slug, description, sort_order, created_by, created_at, updated_at`

// PostgresTopicRepo はPostgreSQLを使用したトピックリポジトリ。
type PostgresTopicRepo struct {
	db *sql.DB
}

// NewPostgresTopicRepo はPostgresTopicRepoを生成する。
func NewPostgresTopicRepo(db *sql.DB) *PostgresTopicRepo {
	return &PostgresTopicRepo{db: db}
}

func scanTopic(s rowScanner) (*model.Topic, error) {
	topic := &model.Topic{}
	if err := s.Scan(&topic.ID, &topic.Title, &topic.Slug, &topic.Description,
		&topic.Order, &topic.CreatedBy, &topic.CreatedAt, &topic.UpdatedAt); err != nil {
		return nil, err
	}
	return topic, nil
}

// List は全トピックを (sort_order, created_at) の昇順で返す。
func (r *PostgresTopicRepo) List(ctx context.Context) ([]*model.Topic, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM topics ORDER BY sort_order ASC, created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	topics := make([]*model.Topic, 0)
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return topics, nil
}

// FindByID は指定IDのトピックを取得する。見つからない場合はnilを返す。
func (r *PostgresTopicRepo) FindByID(ctx context.Context, id string) (*model.Topic, error) {
	topic, err := scanTopic(r.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find topic by ID: %w", err)
	}
	return topic, nil
}

// FindBySlug はスラッグでトピックを取得する。見つからない場合はnilを返す。
func (r *PostgresTopicRepo) FindBySlug(ctx context.Context, slug string) (*model.Topic, error) {
	topic, err := scanTopic(r.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE slug = $1`,
		slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find topic by slug: %w", err)
	}
	return topic, nil
}

// MaxOrder は既存トピックの最大sort_orderを返す。
func (r *PostgresTopicRepo) MaxOrder(ctx context.Context) (float64, bool, error) {
	var maxOrder sql.NullFloat64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(sort_order) FROM topics`,
	).Scan(&maxOrder); err != nil {
		return 0, false, fmt.Errorf("failed to get max topic order: %w", err)
	}
	return maxOrder.Float64, maxOrder.Valid, nil
}

// Create はトピックを作成する。
func (r *PostgresTopicRepo) Create(ctx context.Context, topic *model.Topic) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO topics (id, title, slug, description, sort_order, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		topic.ID, topic.Title, topic.Slug, topic.Description, topic.Order,
		topic.CreatedBy, topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert topic: %w", translateError(err))
	}
	return nil
}

// Update はtitle、description、sort_orderを更新する。
func (r *PostgresTopicRepo) Update(ctx context.Context, topic *model.Topic) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE topics SET title = $2, description = $3, sort_order = $4, updated_at = $5
		 WHERE id = $1`,
		topic.ID, topic.Title, topic.Description, topic.Order, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	return requireAffected(result)
}

// DeleteWithArticles はトピックと配下の記事を同一トランザクションで削除する。
func (r *PostgresTopicRepo) DeleteWithArticles(ctx context.Context, id string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 記事の削除中に新しい記事が紐付かないようトピック行をロックする
	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM topics WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock topic: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM articles WHERE topic_id = $1`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete articles of topic: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("failed to delete topic: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// requireAffected は1行も更新されなかった場合にErrNotFoundを返す。
func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ TopicRepository = (*PostgresTopicRepo)(nil)
