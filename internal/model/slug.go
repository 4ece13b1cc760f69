package model

import (
	"regexp"
	"strconv"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify はタイトルからURLスラッグを生成する。
// 小文字化し、英数字以外の連続を単一の "-" に置換し、先頭と末尾の "-" を除去する。
func Slugify(title string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

// ArticleSlug は記事用のスラッグ "<slugify(title)>-<millis>" を生成する。
// タイトルから英数字が得られない場合は "article" を基底にする。
func ArticleSlug(title string, millis int64) string {
	base := Slugify(title)
	if base == "" {
		base = "article"
	}
	return base + "-" + strconv.FormatInt(millis, 10)
}
