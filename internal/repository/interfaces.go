// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/chatline/internal/model"
)

// ErrDuplicateUserName はユーザー名の一意制約違反を示すセンチネルエラー。
// 大文字小文字を区別しない一意インデックスへの違反時に返される。
var ErrDuplicateUserName = errors.New("username already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// ユーザー名が既に存在する場合（大文字小文字を区別しない）はErrDuplicateUserNameを返す。
	Create(ctx context.Context, username string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する（大文字小文字を区別しない）。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List は全ユーザーを作成日時昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// UpdateUsername はユーザー名を変更する。IDは維持される。
	// ユーザーが存在しない場合はnilを、新しい名前が重複する場合はErrDuplicateUserNameを返す。
	UpdateUsername(ctx context.Context, id int64, username string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 実際に削除された場合はtrueを、存在しなかった場合はfalseを返す。
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// ConversationRepository は会話・メンバーシップデータの永続化インターフェース。
type ConversationRepository interface {
	// Create は会話と参加者のメンバーシップを同一トランザクションで作成する。
	// 既存ユーザーに解決できない参加者IDは黙ってスキップする。
	// メンバーシップとユーザー情報込みでハイドレートした会話を返す。
	Create(ctx context.Context, name string, kind model.ConversationKind, participantIDs []int64) (*model.Conversation, error)

	// FindByID は指定IDの会話をメンバーシップ込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Conversation, error)

	// ListByUserID はユーザーがメンバーシップを持つ会話を作成日時降順で返す。
	// 各会話はメンバーシップ込みでハイドレートされる。
	ListByUserID(ctx context.Context, userID int64) ([]*model.Conversation, error)

	// MemberUserIDs は会話の現時点のメンバーのユーザーID一覧を返す。
	// キャッシュ無効化の対象ユーザー決定に使用する。
	MemberUserIDs(ctx context.Context, conversationID int64) ([]int64, error)

	// AddMembership はメンバーシップを冪等に追加する。
	// 実際に追加された場合はtrueを、既に存在した場合はfalseを返す。
	AddMembership(ctx context.Context, conversationID, userID int64) (bool, error)

	// RemoveMembership はメンバーシップを冪等に削除する。
	// 実際に削除された場合はtrueを、存在しなかった場合はfalseを返す。
	RemoveMembership(ctx context.Context, conversationID, userID int64) (bool, error)
}

// MessageRepository はメッセージデータの永続化インターフェース。
type MessageRepository interface {
	// Add はstatus=sentのメッセージを挿入し、送信者情報込みで返す。
	Add(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error)

	// FindByID は指定IDのメッセージを送信者情報込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Message, error)

	// ListByConversation は会話のメッセージ履歴を時系列昇順で返す。
	// ページングは最新側からのウィンドウ（offsetをスキップしlimit件）を取り、
	// ページ内を昇順に並べ直して返す。beforeIDが正の場合はid < beforeIDに限定する。
	ListByConversation(ctx context.Context, conversationID int64, limit, offset int, beforeID int64) ([]*model.Message, error)

	// SetStatus はメッセージ状態を上書きする。前方向遷移の強制はこの層では行わない。
	// メッセージが存在しない場合はfalseを返す。
	SetStatus(ctx context.Context, id int64, status model.MessageStatus) (bool, error)
}
