// Package markdown は記事本文のMarkdownを公開用の安全なHTMLに変換する。
//
// goldmarkでGFM互換のHTMLを生成したあと、bluemondayの許可リストで
// サニタイズする。本文中の生HTMLはgoldmarkでは除去せず、
// サニタイズ段階で許可タグ以外を落とす。
package markdown

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer はMarkdownを描画してサニタイズする。並行利用できる。
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer はRendererを生成する。
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: newPolicy(),
	}
}

// Render はMarkdownをHTMLに変換し、許可リストに従ってサニタイズする。
func (r *Renderer) Render(source string) (string, error) {
	if source == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Sanitize はHTML断片を許可リストでサニタイズする。
func (r *Renderer) Sanitize(rawHTML string) string {
	return r.policy.Sanitize(rawHTML)
}

var codeLanguageClass = regexp.MustCompile(`^language-[\w+#.-]+$`)

// newPolicy は記事本文用のbluemondayポリシーを構築する。
//   - 許可タグ: 見出し、段落、リスト、引用、コード、表、強調、打ち消し、区切り線、a、img
//   - script, iframe, style と on* 属性は許可リストに無いため除去される
//   - URLはhttps、mailto、および相対URL（/uploads/ 配下の画像など）のみ
//   - 外部リンクには target="_blank" と rel="noopener noreferrer" を付与する
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")
	p.AllowAttrs("align").Matching(regexp.MustCompile(`^(left|center|right)$`)).OnElements("th", "td")

	// タスクリストのチェックボックスは表示専用
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowURLSchemes("https", "mailto")
	p.AllowRelativeURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return p
}
