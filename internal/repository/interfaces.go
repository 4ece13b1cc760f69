// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/cybershield/internal/model"
)

// UserRepository はローカルユーザーディレクトリの永続化インターフェース。
type UserRepository interface {
	// FindByUID は外部IdPのUIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpsertOnLogin はログイン時にユーザーを作成または更新する。
	// 新規作成時のroleはstudent。既存ユーザーのroleは変更しない。
	UpsertOnLogin(ctx context.Context, user *model.User) (*model.User, error)

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// UpdateRole はロールを更新し、更新後のユーザーを返す。見つからない場合はnilを返す。
	UpdateRole(ctx context.Context, uid string, role model.Role) (*model.User, error)

	// DeleteByEmail はメールアドレスでユーザーを物理削除する。
	// テストデータ削除専用。削除した場合はtrueを返す。
	DeleteByEmail(ctx context.Context, email string) (bool, error)
}

// TopicRepository はトピックの永続化インターフェース。
type TopicRepository interface {
	// List は全トピックを (sort_order, created_at) の昇順で返す。
	List(ctx context.Context) ([]*model.Topic, error)

	// FindByID は指定IDのトピックを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Topic, error)

	// FindBySlug はスラッグでトピックを取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Topic, error)

	// MaxOrder は既存トピックの最大sort_orderを返す。トピックが無い場合はfalseを返す。
	MaxOrder(ctx context.Context) (float64, bool, error)

	// Create はトピックを作成する。スラッグ重複時はErrDuplicateを返す。
	Create(ctx context.Context, topic *model.Topic) error

	// Update はtitle、description、sort_orderを更新する。見つからない場合はErrNotFoundを返す。
	Update(ctx context.Context, topic *model.Topic) error

	// DeleteWithArticles はトピックと配下の記事を同一トランザクションで削除する。
	// 削除した記事数を返す。トピックが見つからない場合はErrNotFoundを返す。
	DeleteWithArticles(ctx context.Context, id string) (int64, error)
}

// ArticleRepository は記事の永続化インターフェース。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// ListByAuthor は著者の記事をトピック要約付きで作成日時の降順で返す。
	ListByAuthor(ctx context.Context, authorUID string) ([]*model.Article, error)

	// List は条件に一致する記事をトピック要約付きで作成日時の降順で返す。
	List(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, error)

	// ListPublishedByTopic はトピック配下の公開記事を (sort_order ASC, published_at DESC) で返す。
	ListPublishedByTopic(ctx context.Context, topicID string) ([]*model.Article, error)

	// FindPublished はトピックIDとスラッグで公開記事を取得する。
	// 見つからない場合・未公開の場合はnilを返す。
	FindPublished(ctx context.Context, topicID, slug string) (*model.Article, error)

	// Create は記事を作成する。スラッグ重複時はErrDuplicateを返す。
	Create(ctx context.Context, article *model.Article) error

	// UpdateContent はtitle、topic_id、content、cover_image、tagsを更新する。
	UpdateContent(ctx context.Context, article *model.Article) error

	// UpdateStatus は現在のステータスがfromである場合に限り、
	// status、rejection_reason、published_atを更新する。
	// 他のリクエストが先に状態を変えていた場合はfalseを返す。
	UpdateStatus(ctx context.Context, article *model.Article, from model.ArticleStatus) (bool, error)

	// UpdateOrder はsort_orderを更新する。見つからない場合はErrNotFoundを返す。
	UpdateOrder(ctx context.Context, id string, order float64, updatedAt time.Time) error

	// Delete は記事を削除する。見つからない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
}
