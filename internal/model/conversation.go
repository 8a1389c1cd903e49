// Package model はドメインモデルを定義する。
package model

import "time"

// ConversationKind は会話の種別を表す。
// 作成時の参加者数から導出され、以後変化しない。
type ConversationKind string

const (
	// KindDirect は1対1の会話（参加者指定がちょうど2名）。
	KindDirect ConversationKind = "direct"
	// KindGroup はグループ会話（参加者指定が3名以上）。
	KindGroup ConversationKind = "group"
)

// KindForParticipantCount は参加者指定数から会話種別を導出する。
// 未知のIDを除外する前の指定数で判定する。
func KindForParticipantCount(n int) ConversationKind {
	if n == 2 {
		return KindDirect
	}
	return KindGroup
}

// Conversation は会話チャネルを表す。
// Membershipsは作成時・取得時にユーザー情報込みでロードされる。
type Conversation struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Kind        ConversationKind `json:"kind"`
	CreatedAt   time.Time        `json:"createdAt"`
	Memberships []Membership     `json:"memberships"`
}

// Membership はユーザーが会話に属する永続的な記録を表す。
// (ConversationID, UserID)の組で一意。ライブ接続のルーム参加とは独立している。
type Membership struct {
	ConversationID int64     `json:"conversationId"`
	UserID         int64     `json:"userId"`
	JoinedAt       time.Time `json:"joinedAt"`
	User           *User     `json:"user,omitempty"`
}
