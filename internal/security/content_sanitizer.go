// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はメッセージ本文と表示名からマークアップを除去し、
// ライブ配信先や履歴表示でのXSSからユーザーを保護する。
// bluemondayの厳格ポリシーを使用し、テキストのみを通過させる。
package security

import "github.com/microcosm-cc/bluemonday"

// ContentSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// メッセージの保存前およびユーザー名の登録前に使用される。
type ContentSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去してテキストのみを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// チャット本文はプレーンテキストとして扱うため、タグを一切許可しない
// StrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去してテキストのみを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return s.policy.Sanitize(raw)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
