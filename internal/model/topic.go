package model

import "time"

// Topic は記事を分類するトピックを表す。
// Orderは手動並び替え用の実数で、相対的な大小のみが意味を持つ。
type Topic struct {
	ID          string
	Title       string
	Slug        string
	Description string
	Order       float64
	CreatedBy   string // 作成したadminのUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TopicRef は記事一覧に埋め込むトピックの要約。
type TopicRef struct {
	ID    string
	Title string
	Slug  string
}
