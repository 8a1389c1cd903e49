// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, user, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeInvalidUserName          = "INVALID_USERNAME"
	ErrCodeDuplicateUserName        = "DUPLICATE_USERNAME"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeConversationNotFound     = "CONVERSATION_NOT_FOUND"
	ErrCodeInsufficientParticipants = "INSUFFICIENT_PARTICIPANTS"
	ErrCodeMessageNotFound          = "MESSAGE_NOT_FOUND"
	ErrCodeEmptyMessage             = "EMPTY_MESSAGE"
	ErrCodeInvalidStatus            = "INVALID_STATUS"
	ErrCodeStorageFailure           = "STORAGE_FAILURE"
)

// NewInvalidUserNameError は無効なユーザー名エラーを生成する。
func NewInvalidUserNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUserName,
		Message:  fmt.Sprintf("無効なユーザー名です: %s", reason),
		Category: "validation",
		Action:   fmt.Sprintf("ユーザー名は%d〜%d文字で指定してください。", UserNameMinLength, UserNameMaxLength),
	}
}

// NewDuplicateUserNameError はユーザー名重複エラーを生成する。
// 大文字小文字を区別しない比較で重複と判定された場合に使用する。
func NewDuplicateUserNameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUserName,
		Message:  fmt.Sprintf("このユーザー名は既に使用されています: %s", username),
		Category: "user",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(userID int64) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %d", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewConversationNotFoundError は会話未検出エラーを生成する。
func NewConversationNotFoundError(conversationID int64) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %d", conversationID),
		Category: "chat",
		Action:   "会話IDを確認してください。",
	}
}

// NewInsufficientParticipantsError は参加者不足エラーを生成する。
// 会話の作成には2名以上の参加者指定が必要。
func NewInsufficientParticipantsError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientParticipants,
		Message:  fmt.Sprintf("会話の作成には2名以上の参加者が必要です（指定数: %d）", count),
		Category: "validation",
		Action:   "参加者IDを2名以上指定してください。",
	}
}

// NewMessageNotFoundError はメッセージ未検出エラーを生成する。
func NewMessageNotFoundError(messageID int64) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("指定されたメッセージが見つかりません: %d", messageID),
		Category: "chat",
		Action:   "メッセージIDを確認してください。",
	}
}

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してください。",
	}
}

// NewInvalidStatusError は無効なメッセージ状態エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なメッセージ状態です: %s", status),
		Category: "validation",
		Action:   "状態には sent、delivered、read のいずれかを指定してください。",
	}
}

// NewStorageFailureError は永続化層のI/O失敗エラーを生成する。
// 書き込みは部分適用されないため、リクエスト全体の再試行が安全。
func NewStorageFailureError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailure,
		Message:  fmt.Sprintf("データストアへのアクセスに失敗しました: %v", err),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
