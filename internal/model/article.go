package model

import (
	"strings"
	"time"
)

// ArticleStatus は記事の公開ワークフロー上の状態を表す。
type ArticleStatus string

const (
	// StatusDraft は作成直後の下書き状態。
	StatusDraft ArticleStatus = "draft"
	// StatusPending はレビュー待ち状態。
	StatusPending ArticleStatus = "pending"
	// StatusApproved は承認済み・未公開の状態。
	StatusApproved ArticleStatus = "approved"
	// StatusPublished は公開中の状態。
	StatusPublished ArticleStatus = "published"
	// StatusRejected は差し戻し状態。
	StatusRejected ArticleStatus = "rejected"
)

// AllStatuses は定義済みステータスの一覧。
var AllStatuses = []ArticleStatus{
	StatusDraft, StatusPending, StatusApproved, StatusPublished, StatusRejected,
}

// ParseArticleStatus は文字列をArticleStatusに変換する。未定義の場合はfalseを返す。
func ParseArticleStatus(s string) (ArticleStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Article はモデレーション付きの公開ライフサイクルを持つ記事を表す。
type Article struct {
	ID              string
	Title           string
	Slug            string
	TopicID         string
	Topic           *TopicRef // 一覧取得時のみ設定される
	Content         string    // Markdown
	CoverImage      string
	AuthorUID       string
	AuthorName      string
	Status          ArticleStatus
	RejectionReason string
	Order           float64
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PublishedAt     *time.Time
}

// IsOwnedBy はuidが記事の著者かを返す。
func (a *Article) IsOwnedBy(uid string) bool {
	return a.AuthorUID != "" && a.AuthorUID == uid
}

// ArticleFilter は管理者向け記事一覧の絞り込み条件。空文字は条件なしを表す。
type ArticleFilter struct {
	Status  ArticleStatus
	TopicID string
}

// NormalizeTags はタグをトリムし、空要素と重複を除いて出現順に返す。
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
