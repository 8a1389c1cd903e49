// Package chat は会話とメッセージのドメインロジックを提供する。
//
// 書き込みの順序不変条件はこの層で守られる:
// 永続書き込みのコミット → キャッシュ無効化、の順で必ず実行し、
// ライブ配信は呼び出し側がこの後に行う。
// キャッシュへの書き込みがコミット前に起きることはない。
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/chatline/internal/cache"
	"github.com/hitoshi/chatline/internal/model"
	"github.com/hitoshi/chatline/internal/repository"
	"github.com/hitoshi/chatline/internal/security"
)

// Service は会話・メッセージ管理のサービス層。
// ストアを正とし、キャッシュの無効化タイミングを一元管理する。
type Service struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	userRepo  repository.UserRepository
	cache     *cache.ConversationCache
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	convCache *cache.ConversationCache,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		userRepo:  userRepo,
		cache:     convCache,
		sanitizer: sanitizer,
	}
}

// CreateConversation は会話を作成する。
// 参加者指定が2名未満の場合はエラー。種別は未知ID除外前の指定数から導出する。
// 既存ユーザーに解決できない参加者IDは黙ってスキップされる。
func (s *Service) CreateConversation(ctx context.Context, name string, participantIDs []int64) (*model.Conversation, error) {
	if len(participantIDs) < 2 {
		return nil, model.NewInsufficientParticipantsError(len(participantIDs))
	}

	kind := model.KindForParticipantCount(len(participantIDs))

	conv, err := s.convRepo.Create(ctx, name, kind, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("会話の作成に失敗しました: %w", err)
	}

	// メンバーシップ集合が変化したため、メンバー全員の会話一覧を無効化する
	for _, m := range conv.Memberships {
		s.cache.InvalidateUserConversations(m.UserID)
	}

	return conv, nil
}

// GetConversation は会話を取得する。見つからない場合はnilを返す。
// キャッシュに鮮度内のエントリがあればそれを返し、なければストアから
// ロードしてキャッシュへ格納する。ストアの未検出はキャッシュしない。
func (s *Service) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	if conv, ok := s.cache.GetConversation(id); ok {
		return conv, nil
	}

	conv, err := s.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	if conv == nil {
		return nil, nil
	}

	s.cache.SetConversation(conv)
	return conv, nil
}

// ListUserConversations はユーザーの会話一覧を作成日時降順で返す。
func (s *Service) ListUserConversations(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	if conversations, ok := s.cache.GetUserConversations(userID); ok {
		return conversations, nil
	}

	conversations, err := s.convRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}

	s.cache.SetUserConversations(userID, conversations)
	return conversations, nil
}

// AddMessage はメッセージを永続化し、関連キャッシュを無効化して返す。
// 戻り値のメッセージはstatus=sentで送信者情報込み。
// ライブ配信はこの呼び出しの完了後に行うこと（配信は永続化にhappens-afterする）。
func (s *Service) AddMessage(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(s.sanitizer.Sanitize(content))
	if content == "" {
		return nil, model.NewEmptyMessageError()
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}

	sender, err := s.userRepo.FindByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("送信者の取得に失敗しました: %w", err)
	}
	if sender == nil {
		return nil, model.NewUserNotFoundError(senderID)
	}

	msg, err := s.msgRepo.Add(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	// 無効化は必ずコミット後。会話スナップショットと、変更時点の
	// メンバー全員の会話一覧の両方を対象にする。
	s.cache.InvalidateConversation(conversationID)

	memberIDs, err := s.convRepo.MemberUserIDs(ctx, conversationID)
	if err != nil {
		// メッセージは既にコミット済み。ここで失敗を返すと呼び出し元の
		// リトライが二重書き込みになるため伝播させない。残るのは
		// 会話一覧キャッシュの最長TTLのズレのみ。
		return msg, nil
	}
	s.cache.InvalidateUserConversations(memberIDs...)

	return msg, nil
}

// ListMessages は会話のメッセージ履歴を時系列昇順で返す。
// beforeIDが正の場合はid < beforeIDのメッセージに限定する。
// 会話が存在しない場合はCONVERSATION_NOT_FOUNDエラーを返す。
func (s *Service) ListMessages(ctx context.Context, conversationID int64, take, skip int, beforeID int64) ([]*model.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conversationID, take, skip, beforeID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ履歴の取得に失敗しました: %w", err)
	}

	return messages, nil
}

// UpdateMessageStatus はメッセージ状態を前方向にのみ遷移させる。
// 現在と同じか前の状態への要求は受理するがno-opとして現在値を返す。
// readからsentへ逆行させる手段は公開APIに存在しない。
func (s *Service) UpdateMessageStatus(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error) {
	if !status.Valid() {
		return nil, model.NewInvalidStatusError(string(status))
	}

	msg, err := s.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	if msg == nil {
		return nil, model.NewMessageNotFoundError(messageID)
	}

	// 単調性の強制はこの層の責務。ストア層は状態を無条件に上書きする。
	if !msg.Status.Before(status) {
		return msg, nil
	}

	ok, err := s.msgRepo.SetStatus(ctx, messageID, status)
	if err != nil {
		return nil, fmt.Errorf("メッセージ状態の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewMessageNotFoundError(messageID)
	}

	msg.Status = status
	return msg, nil
}

// AddMember はユーザーを会話に追加する。
// 実際に追加された場合はtrue、既にメンバーだった場合はfalseを返す。
func (s *Service) AddMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, model.NewConversationNotFoundError(conversationID)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return false, model.NewUserNotFoundError(userID)
	}

	added, err := s.convRepo.AddMembership(ctx, conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("メンバーシップの追加に失敗しました: %w", err)
	}
	if !added {
		return false, nil
	}

	s.invalidateMembershipChange(ctx, conversationID, userID)
	return true, nil
}

// RemoveMember はユーザーを会話から除外する。
// 実際に除外された場合はtrue、メンバーでなかった場合はfalseを返す。
// メンバー数が2名未満になっても会話は削除されない。
func (s *Service) RemoveMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	removed, err := s.convRepo.RemoveMembership(ctx, conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("メンバーシップの削除に失敗しました: %w", err)
	}
	if !removed {
		return false, nil
	}

	s.invalidateMembershipChange(ctx, conversationID, userID)
	return true, nil
}

// invalidateMembershipChange はメンバーシップ変更後のキャッシュ無効化を行う。
// 変更されたユーザー自身と、変更後の会話メンバー全員の一覧を無効化する。
func (s *Service) invalidateMembershipChange(ctx context.Context, conversationID, changedUserID int64) {
	s.cache.InvalidateConversation(conversationID)
	s.cache.InvalidateUserConversations(changedUserID)

	memberIDs, err := s.convRepo.MemberUserIDs(ctx, conversationID)
	if err != nil {
		// 無効化対象の解決に失敗しても書き込み自体は成功している。
		// 残るのは最長TTLのズレのみで、呼び出し元へは伝播させない。
		return
	}
	s.cache.InvalidateUserConversations(memberIDs...)
}
