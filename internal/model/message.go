// Package model はドメインモデルを定義する。
package model

import "time"

// MessageStatus はメッセージの配送状態を表す。
// sent → delivered → read の順でのみ遷移する（単調、逆行不可）。
type MessageStatus string

const (
	// StatusSent は永続化直後の初期状態。
	StatusSent MessageStatus = "sent"
	// StatusDelivered はライブ接続中の受信者が受領確認した状態。
	StatusDelivered MessageStatus = "delivered"
	// StatusRead は受信者が既読にした状態。
	StatusRead MessageStatus = "read"
)

// statusRank は状態遷移の順序比較用ランク。
var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Valid は既知の3状態のいずれかであることを返す。
func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before はsがotherより前の状態であることを返す。
// 状態の逆行を拒否する判定に使用する。
func (s MessageStatus) Before(other MessageStatus) bool {
	return statusRank[s] < statusRank[other]
}

// Message は会話内の1メッセージを表す。
// Contentは不変であり、Statusのみが前方向に変化する。
// 履歴の順序キーは (Timestamp, ID) 昇順。
type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversationId"`
	SenderID       int64         `json:"senderId"`
	Content        string        `json:"content"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status"`
	Sender         *User         `json:"sender,omitempty"`
}
