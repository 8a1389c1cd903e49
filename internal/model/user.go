// Package model はドメインモデルを定義する。
package model

import "time"

// User はチャット利用ユーザーを表す。
// Usernameは大文字小文字を区別せず一意であり、作成後はリネームのみ可能。
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserNameMinLength はユーザー名の最小文字数。
const UserNameMinLength = 3

// UserNameMaxLength はユーザー名の最大文字数。
const UserNameMaxLength = 50
