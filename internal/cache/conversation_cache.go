// Package cache は会話状態の短命リードキャッシュを提供する。
//
// 永続ストアが常に正であり、キャッシュはコピーを鮮度ウィンドウ付きで保持する。
// キーは conversation:{id} と userConversations:{userId} の2系統。
// 期限切れ判定は読み取り時に受動的に行い、バックグラウンドスイープは持たない。
// ネガティブキャッシュは行わない（ストアの「未検出」は格納されない）。
package cache

import (
	"sync"
	"time"

	"github.com/hitoshi/chatline/internal/model"
)

// Recorder はキャッシュのヒット/ミスを記録するインターフェース。
type Recorder interface {
	RecordCacheHit(family string)
	RecordCacheMiss(family string)
}

// メトリクスのキーファミリーラベル
const (
	familyConversation      = "conversation"
	familyUserConversations = "user_conversations"
)

// conversationEntry は会話キャッシュの1エントリ。
type conversationEntry struct {
	value     *model.Conversation
	expiresAt time.Time
}

// userListEntry はユーザー別会話一覧キャッシュの1エントリ。
type userListEntry struct {
	value     []*model.Conversation
	expiresAt time.Time
}

// ConversationCache は会話と会話一覧のTTL付きリードキャッシュ。
// 無効化はコミット済みの永続書き込みの後にのみ呼び出すこと。
type ConversationCache struct {
	conversationTTL time.Duration
	userListTTL     time.Duration

	mu            sync.RWMutex
	conversations map[int64]conversationEntry
	userLists     map[int64]userListEntry

	metrics Recorder
	now     func() time.Time
}

// New はConversationCacheを生成する。
// conversationTTLは会話単体、userListTTLはユーザー別会話一覧の鮮度ウィンドウ。
// metricsがnilの場合は記録をスキップする。
func New(conversationTTL, userListTTL time.Duration, metrics Recorder) *ConversationCache {
	return &ConversationCache{
		conversationTTL: conversationTTL,
		userListTTL:     userListTTL,
		conversations:   make(map[int64]conversationEntry),
		userLists:       make(map[int64]userListEntry),
		metrics:         metrics,
		now:             time.Now,
	}
}

// GetConversation はキャッシュ済みの会話を返す。
// エントリが存在しないか期限切れの場合はfalseを返し、期限切れエントリは破棄する。
func (c *ConversationCache) GetConversation(id int64) (*model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.conversations[id]
	if !ok || c.now().After(entry.expiresAt) {
		if ok {
			delete(c.conversations, id)
		}
		c.recordMiss(familyConversation)
		return nil, false
	}
	c.recordHit(familyConversation)
	return entry.value, true
}

// SetConversation は会話をキャッシュに格納する。nilは格納しない。
func (c *ConversationCache) SetConversation(conv *model.Conversation) {
	if conv == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations[conv.ID] = conversationEntry{
		value:     conv,
		expiresAt: c.now().Add(c.conversationTTL),
	}
}

// GetUserConversations はキャッシュ済みのユーザー別会話一覧を返す。
// エントリが存在しないか期限切れの場合はfalseを返す。
func (c *ConversationCache) GetUserConversations(userID int64) ([]*model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.userLists[userID]
	if !ok || c.now().After(entry.expiresAt) {
		if ok {
			delete(c.userLists, userID)
		}
		c.recordMiss(familyUserConversations)
		return nil, false
	}
	c.recordHit(familyUserConversations)
	return entry.value, true
}

// SetUserConversations はユーザー別会話一覧をキャッシュに格納する。
// 空の一覧は有効な値として格納する（未検出のネガティブキャッシュとは異なる）。
func (c *ConversationCache) SetUserConversations(userID int64, conversations []*model.Conversation) {
	if conversations == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userLists[userID] = userListEntry{
		value:     conversations,
		expiresAt: c.now().Add(c.userListTTL),
	}
}

// InvalidateConversation は会話キャッシュの1エントリを無効化する。
func (c *ConversationCache) InvalidateConversation(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, id)
}

// InvalidateUserConversations は指定ユーザー群の会話一覧キャッシュを無効化する。
// 会話のメンバーシップ変更やメッセージ追加の際、変更時点のメンバー全員に対して呼び出す。
func (c *ConversationCache) InvalidateUserConversations(userIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.userLists, id)
	}
}

func (c *ConversationCache) recordHit(family string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(family)
	}
}

func (c *ConversationCache) recordMiss(family string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(family)
	}
}
