// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoticeSanitizer はバックエンドから受け取ったメッセージを通知として
// 保存する前にプレーンテキストへ変換し、通知表示経由のXSSを防ぐ。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxNoticeRunes は通知メッセージの最大文字数。
const maxNoticeRunes = 500

// TextSanitizer は外部由来の文字列をプレーンテキストに変換するインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、空白を正規化したテキストを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// noticeSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyは全タグを除去し、テキストをHTMLエスケープして返す。
// 表示側（html/template、JSON）でエスケープするため、ここではエスケープを戻す。
type noticeSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoticeSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewNoticeSanitizer() *noticeSanitizer {
	return &noticeSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は外部由来の文字列をプレーンテキストに変換する。
func (s *noticeSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > maxNoticeRunes {
		runes := []rune(text)
		text = string(runes[:maxNoticeRunes]) + "…"
	}
	return text
}

var _ TextSanitizer = (*noticeSanitizer)(nil)
