package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/chatline/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// Create は会話と参加者のメンバーシップを同一トランザクションで作成する。
// 既存ユーザーに解決できない参加者IDは黙ってスキップする。
func (r *PostgresConversationRepo) Create(ctx context.Context, name string, kind model.ConversationKind, participantIDs []int64) (*model.Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var conversationID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO conversations (name, kind) VALUES ($1, $2) RETURNING id`,
		name, string(kind),
	).Scan(&conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	// 存在するユーザーのみメンバーシップを作成する。
	// 同一IDが複数回指定された場合もON CONFLICTで1件に収まる。
	_, err = tx.ExecContext(ctx,
		`INSERT INTO memberships (conversation_id, user_id)
		 SELECT $1, id FROM users WHERE id = ANY($2)
		 ON CONFLICT DO NOTHING`,
		conversationID, pq.Array(participantIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert memberships: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.FindByID(ctx, conversationID)
}

// FindByID は指定IDの会話をメンバーシップ込みで取得する。見つからない場合はnilを返す。
func (r *PostgresConversationRepo) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, kind, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&conv.ID, &conv.Name, &conv.Kind, &conv.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation by ID: %w", err)
	}

	memberships, err := r.loadMemberships(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	conv.Memberships = memberships[id]
	if conv.Memberships == nil {
		conv.Memberships = []model.Membership{}
	}

	return conv, nil
}

// ListByUserID はユーザーがメンバーシップを持つ会話を作成日時降順で返す。
func (r *PostgresConversationRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.kind, c.created_at
		 FROM conversations c
		 JOIN memberships m ON m.conversation_id = c.id
		 WHERE m.user_id = $1
		 ORDER BY c.created_at DESC, c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*model.Conversation{}
	ids := []int64{}
	for rows.Next() {
		conv := &model.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.Name, &conv.Kind, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
		ids = append(ids, conv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	if len(ids) == 0 {
		return conversations, nil
	}

	memberships, err := r.loadMemberships(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, conv := range conversations {
		conv.Memberships = memberships[conv.ID]
		if conv.Memberships == nil {
			conv.Memberships = []model.Membership{}
		}
	}

	return conversations, nil
}

// loadMemberships は会話ID群のメンバーシップをユーザー情報込みで一括ロードする。
func (r *PostgresConversationRepo) loadMemberships(ctx context.Context, conversationIDs []int64) (map[int64][]model.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.conversation_id, m.user_id, m.joined_at, u.id, u.username, u.created_at
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.conversation_id = ANY($1)
		 ORDER BY m.joined_at, m.user_id`,
		pq.Array(conversationIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]model.Membership)
	for rows.Next() {
		m := model.Membership{User: &model.User{}}
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.JoinedAt,
			&m.User.ID, &m.User.Username, &m.User.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result[m.ConversationID] = append(result[m.ConversationID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return result, nil
}

// MemberUserIDs は会話の現時点のメンバーのユーザーID一覧を返す。
func (r *PostgresConversationRepo) MemberUserIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM memberships WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list member user IDs: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member user ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member user IDs: %w", err)
	}

	return ids, nil
}

// AddMembership はメンバーシップを冪等に追加する。
// 実際に追加された場合はtrueを、既に存在した場合はfalseを返す。
func (r *PostgresConversationRepo) AddMembership(ctx context.Context, conversationID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (conversation_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		conversationID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add membership: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RemoveMembership はメンバーシップを冪等に削除する。
// 実際に削除された場合はtrueを、存在しなかった場合はfalseを返す。
// 会話のメンバーが2名未満になっても会話自体は削除しない。
func (r *PostgresConversationRepo) RemoveMembership(ctx context.Context, conversationID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove membership: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ ConversationRepository = (*PostgresConversationRepo)(nil)
