package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/cybershield/internal/model"
)

const articleColumns = `a.id, a.title, a.slug, a.topic_id, a.content, a.cover_image,
	a.author_uid, a.author_name, a.status, a.rejection_reason, a.sort_order, a.tags,
	a.created_at, a.updated_at, a.published_at`

// 一覧系はトピック要約をLEFT JOINで取得する。トピック削除済みの場合は要約がnilになる。
const articleWithTopicColumns = articleColumns + `, t.id, t.title, t.slug`

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

func articleScanTargets(a *model.Article, status *string, publishedAt *sql.NullTime) []any {
	return []any{
		&a.ID, &a.Title, &a.Slug, &a.TopicID, &a.Content, &a.CoverImage,
		&a.AuthorUID, &a.AuthorName, status, &a.RejectionReason, &a.Order, pq.Array(&a.Tags),
		&a.CreatedAt, &a.UpdatedAt, publishedAt,
	}
}

func finishArticle(a *model.Article, status string, publishedAt sql.NullTime) {
	a.Status = model.ArticleStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		a.PublishedAt = &t
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
}

func scanArticle(s rowScanner) (*model.Article, error) {
	a := &model.Article{}
	var status string
	var publishedAt sql.NullTime
	if err := s.Scan(articleScanTargets(a, &status, &publishedAt)...); err != nil {
		return nil, err
	}
	finishArticle(a, status, publishedAt)
	return a, nil
}

func scanArticleWithTopic(s rowScanner) (*model.Article, error) {
	a := &model.Article{}
	var status string
	var publishedAt sql.NullTime
	var topicID, topicTitle, topicSlug sql.NullString
	targets := append(articleScanTargets(a, &status, &publishedAt), &topicID, &topicTitle, &topicSlug)
	if err := s.Scan(targets...); err != nil {
		return nil, err
	}
	finishArticle(a, status, publishedAt)
	if topicID.Valid {
		a.Topic = &model.TopicRef{ID: topicID.String, Title: topicTitle.String, Slug: topicSlug.String}
	}
	return a, nil
}

func (r *PostgresArticleRepo) queryArticles(ctx context.Context, query string, args ...any) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]*model.Article, 0)
	for rows.Next() {
		a, err := scanArticleWithTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find article by ID: %w", err)
	}
	return a, nil
}

// ListByAuthor は著者の記事を作成日時の降順で返す。
func (r *PostgresArticleRepo) ListByAuthor(ctx context.Context, authorUID string) ([]*model.Article, error) {
	articles, err := r.queryArticles(ctx,
		`SELECT `+articleWithTopicColumns+`
		 FROM articles a LEFT JOIN topics t ON t.id = a.topic_id
		 WHERE a.author_uid = $1
		 ORDER BY a.created_at DESC`,
		authorUID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles by author: %w", err)
	}
	return articles, nil
}

// List は条件に一致する記事を作成日時の降順で返す。
func (r *PostgresArticleRepo) List(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, error) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if filter.TopicID != "" {
		args = append(args, filter.TopicID)
		conds = append(conds, fmt.Sprintf("a.topic_id = $%d", len(args)))
	}

	query := `SELECT ` + articleWithTopicColumns + `
		 FROM articles a LEFT JOIN topics t ON t.id = a.topic_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY a.created_at DESC`

	articles, err := r.queryArticles(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// ListPublishedByTopic はトピック配下の公開記事を (sort_order ASC, published_at DESC) で返す。
func (r *PostgresArticleRepo) ListPublishedByTopic(ctx context.Context, topicID string) ([]*model.Article, error) {
	articles, err := r.queryArticles(ctx,
		`SELECT `+articleWithTopicColumns+`
		 FROM articles a LEFT JOIN topics t ON t.id = a.topic_id
		 WHERE a.topic_id = $1 AND a.status = $2
		 ORDER BY a.sort_order ASC, a.published_at DESC NULLS LAST`,
		topicID, string(model.StatusPublished),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list published articles: %w", err)
	}
	return articles, nil
}

// FindPublished はトピックIDとスラッグで公開記事を取得する。
func (r *PostgresArticleRepo) FindPublished(ctx context.Context, topicID, slug string) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a
		 WHERE a.topic_id = $1 AND a.slug = $2 AND a.status = $3`,
		topicID, slug, string(model.StatusPublished),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find published article: %w", err)
	}
	return a, nil
}

// Create は記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, a *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, slug, topic_id, content, cover_image, author_uid, author_name,
		     status, rejection_reason, sort_order, tags, created_at, updated_at, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.Title, a.Slug, a.TopicID, a.Content, a.CoverImage, a.AuthorUID, a.AuthorName,
		string(a.Status), a.RejectionReason, a.Order, pq.Array(nonNilTags(a.Tags)),
		a.CreatedAt, a.UpdatedAt, a.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", translateError(err))
	}
	return nil
}

// UpdateContent は本文系のフィールドを更新する。
func (r *PostgresArticleRepo) UpdateContent(ctx context.Context, a *model.Article) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET title = $2, topic_id = $3, content = $4, cover_image = $5,
		     tags = $6, updated_at = $7
		 WHERE id = $1`,
		a.ID, a.Title, a.TopicID, a.Content, a.CoverImage, pq.Array(nonNilTags(a.Tags)), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", translateError(err))
	}
	return requireAffected(result)
}

// UpdateStatus は現在のステータスがfromである場合に限りステータスを更新する。
func (r *PostgresArticleRepo) UpdateStatus(ctx context.Context, a *model.Article, from model.ArticleStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET status = $3, rejection_reason = $4, published_at = $5, updated_at = $6
		 WHERE id = $1 AND status = $2`,
		a.ID, string(from), string(a.Status), a.RejectionReason, a.PublishedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update article status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// UpdateOrder はsort_orderを更新する。
func (r *PostgresArticleRepo) UpdateOrder(ctx context.Context, id string, order float64, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET sort_order = $2, updated_at = $3 WHERE id = $1`,
		id, order, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update article order: %w", err)
	}
	return requireAffected(result)
}

// Delete は記事を削除する。
func (r *PostgresArticleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return requireAffected(result)
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
