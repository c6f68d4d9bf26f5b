// Package security はユーザー入力の無害化を提供する。
//
// 書籍の説明文などの自由記述はHTMLを含まないプレーンテキストとして保存する。
// bluemondayのStrictPolicyで全タグを除去し、エンティティを元の文字に戻す。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストからHTMLを除去するインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は除去する。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// IsWebURL はhttpまたはhttpsの絶対URLかどうかを返す。
// 書籍画像など、クライアントがそのまま参照するURLの検証に使用する。
func IsWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
