// Package hub はライブ接続の管理とイベントのファンアウトを提供する。
package hub

import "github.com/hitoshi/chatline/internal/model"

// EventType は送出イベントの種別を表す。
type EventType string

const (
	// EventMessageReceived は会話への新規メッセージ通知。
	EventMessageReceived EventType = "messageReceived"
	// EventTypingChanged は入力中フラグの変化通知。
	EventTypingChanged EventType = "typingChanged"
	// EventPresenceChanged はユーザーのオンライン/オフライン変化通知。
	EventPresenceChanged EventType = "presenceChanged"
)

// Event は全送出イベントの正規形。
// メッセージイベントには永続化済み（Messageフィールドあり）と
// 軽量ライブ（Messageフィールドなし）の2アームがあり、
// フィールドの有無を呼び出し側で推測させないよう、
// この境界で1つのタグ付き形へ正規化してから配信する。
type Event struct {
	Type           EventType      `json:"type"`
	ConversationID int64          `json:"conversationId,omitempty"`
	UserID         int64          `json:"userId,omitempty"`
	Username       string         `json:"username,omitempty"`
	SenderUsername string         `json:"senderUsername,omitempty"`
	Content        string         `json:"content,omitempty"`
	IsTyping       *bool          `json:"isTyping,omitempty"`
	IsOnline       *bool          `json:"isOnline,omitempty"`
	Message        *model.Message `json:"message,omitempty"`
}

// NewPersistedMessageEvent は永続化済みメッセージからイベントを生成する。
// 完全なメッセージ（ID、タイムスタンプ、状態）を含む。
func NewPersistedMessageEvent(msg *model.Message) Event {
	ev := Event{
		Type:           EventMessageReceived,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Message:        msg,
	}
	if msg.Sender != nil {
		ev.SenderUsername = msg.Sender.Username
	}
	return ev
}

// NewLiveMessageEvent は永続化を伴わない軽量メッセージイベントを生成する。
func NewLiveMessageEvent(conversationID int64, senderUsername, content string) Event {
	return Event{
		Type:           EventMessageReceived,
		ConversationID: conversationID,
		SenderUsername: senderUsername,
		Content:        content,
	}
}

// NewTypingEvent は入力中フラグの変化イベントを生成する。
func NewTypingEvent(conversationID, userID int64, username string, isTyping bool) Event {
	return Event{
		Type:           EventTypingChanged,
		ConversationID: conversationID,
		UserID:         userID,
		Username:       username,
		IsTyping:       &isTyping,
	}
}

// NewPresenceEvent はオンライン/オフライン変化イベントを生成する。
func NewPresenceEvent(userID int64, username string, isOnline bool) Event {
	return Event{
		Type:     EventPresenceChanged,
		UserID:   userID,
		Username: username,
		IsOnline: &isOnline,
	}
}
