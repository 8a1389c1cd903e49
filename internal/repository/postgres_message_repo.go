package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chatline/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Add はstatus=sentのメッセージを挿入し、送信者情報込みで返す。
func (r *PostgresMessageRepo) Add(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content)
		 VALUES ($1, $2, $3) RETURNING id`,
		conversationID, senderID, content,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return r.FindByID(ctx, id)
}

// FindByID は指定IDのメッセージを送信者情報込みで取得する。見つからない場合はnilを返す。
func (r *PostgresMessageRepo) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	msg := &model.Message{Sender: &model.User{}}
	err := r.db.QueryRowContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.status,
		        u.id, u.username, u.created_at
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1`,
		id,
	).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Timestamp, &msg.Status,
		&msg.Sender.ID, &msg.Sender.Username, &msg.Sender.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by ID: %w", err)
	}

	return msg, nil
}

// ListByConversation は会話のメッセージ履歴を時系列昇順で返す。
// 最新側からlimit件のウィンドウ（offsetスキップ後）を取得し、
// 配信用にページ内を(created_at, id)昇順へ並べ直す。
func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, conversationID int64, limit, offset int, beforeID int64) ([]*model.Message, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.status,
	                 u.id, u.username, u.created_at
	          FROM messages m
	          JOIN users u ON u.id = m.sender_id
	          WHERE m.conversation_id = $1`
	args := []any{conversationID}

	if beforeID > 0 {
		args = append(args, beforeID)
		query += fmt.Sprintf(" AND m.id < $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		msg := &model.Message{Sender: &model.User{}}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Timestamp, &msg.Status,
			&msg.Sender.ID, &msg.Sender.Username, &msg.Sender.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// 降順で取得したウィンドウを時系列昇順へ反転する
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// SetStatus はメッセージ状態を上書きする。前方向遷移の強制はサービス層で行う。
func (r *PostgresMessageRepo) SetStatus(ctx context.Context, id int64, status model.MessageStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
