package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/hitoshi/chatline/internal/model"
)

// ChatService はハブが必要とするメッセージ操作のインターフェース。
// 永続書き込みとキャッシュ無効化はこの背後で完了し、
// ハブはその後のライブ配信のみを担当する。
type ChatService interface {
	// AddMessage はメッセージを永続化し、関連キャッシュを無効化して返す。
	AddMessage(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error)
	// UpdateMessageStatus はメッセージ状態を前方向にのみ遷移させる。
	UpdateMessageStatus(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error)
}

// Collector はハブのメトリクス記録インターフェース。
type Collector interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordEventDelivered(eventType string)
	RecordEventDropped(eventType string)
	RecordMessagePublished(source string)
}

// Config はハブとライブ接続のチューニング設定を保持する。
type Config struct {
	WriteTimeout  time.Duration
	PongTimeout   time.Duration
	PingInterval  time.Duration
	SendBuffer    int
	MaxMessageLen int64
	CommandRate   rate.Limit // 1接続あたりの受信コマンドレート（req/sec）
	CommandBurst  int
}

// DefaultConfig はデフォルトのハブ設定を返す。
func DefaultConfig() Config {
	return Config{
		WriteTimeout:  10 * time.Second,
		PongTimeout:   60 * time.Second,
		PingInterval:  54 * time.Second,
		SendBuffer:    256,
		MaxMessageLen: 65536,
		CommandRate:   rate.Limit(10),
		CommandBurst:  20,
	}
}

// dispatchTimeout はコマンド1件あたりの永続化操作の上限時間。
const dispatchTimeout = 10 * time.Second

// Hub はライブ接続の受付、受信コマンドのディスパッチ、
// レジストリが選択した接続群へのイベントファンアウトを担う。
//
// プレゼンス・ルーム・入力中状態はすべてプロセスローカルであり、
// 複数インスタンスへの水平分割には外部Pub/Sub層が別途必要（スコープ外）。
type Hub struct {
	cfg      Config
	registry *Registry
	chat     ChatService
	metrics  Collector
	logger   *slog.Logger

	clientsMu sync.Mutex
	clients   map[*Client]struct{}

	wg sync.WaitGroup
}

// NewHub はHubを生成する。metricsがnilの場合は記録をスキップする。
func NewHub(cfg Config, chat ChatService, metrics Collector, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		registry: NewRegistry(),
		chat:     chat,
		metrics:  metrics,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
}

// Registry はハブのレジストリを返す。
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ConnectionCount は現在のライブ接続数を返す。
func (h *Hub) ConnectionCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// ServeConn はアップグレード済みのWebSocket接続の面倒を見る。
// 書き込みポンプをバックグラウンドで起動し、読み取りポンプで
// ブロックする。接続終了時にはdetachが完了している。
func (h *Hub) ServeConn(conn *websocket.Conn) {
	c := newClient(h, conn)

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordConnectionOpened()
	}
	h.logger.Info("live connection opened", slog.String("connection_id", c.id))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	c.readPump()
}

// Dispatch は受信コマンドを種別に応じて処理する。
// 永続化を伴うコマンドの失敗はログに記録し、接続は維持する。
func (h *Hub) Dispatch(c *Client, cmd Command) {
	switch cmd.Type {
	case CommandAttach:
		h.Attach(c, cmd.UserID, cmd.Username)
	case CommandJoin:
		h.JoinRoom(c, cmd.ConversationID)
	case CommandLeave:
		h.LeaveRoom(c, cmd.ConversationID)
	case CommandTyping:
		h.SetTyping(c, cmd.ConversationID, cmd.IsTyping)
	case CommandSend:
		h.sendMessage(c, cmd.ConversationID, cmd.Content)
	case CommandAckDelivered:
		h.updateStatus(c, cmd.MessageID, model.StatusDelivered)
	case CommandMarkRead:
		h.updateStatus(c, cmd.MessageID, model.StatusRead)
	default:
		h.logger.Warn("unknown command type",
			slog.String("connection_id", c.id),
			slog.String("type", string(cmd.Type)),
		)
	}
}

// Attach は接続をユーザーに紐付ける。接続ごとに冪等。
// ユーザーの最初の接続であればオンラインのプレゼンスイベントを配信する。
func (h *Hub) Attach(c *Client, userID int64, username string) {
	if userID <= 0 || username == "" {
		h.logger.Warn("attach with invalid identity",
			slog.String("connection_id", c.id),
		)
		return
	}
	if !c.setIdentity(userID, username) {
		return
	}

	first := h.registry.Attach(c, userID)
	h.logger.Info("connection attached",
		slog.String("connection_id", c.id),
		slog.Int64("user_id", userID),
	)

	if first {
		h.broadcastAll(NewPresenceEvent(userID, username, true))
	}
}

// JoinRoom は接続を会話ルームのライブイベント購読に追加する。
// 永続的なMembershipの有無は検証しない（ルーム参加は永続的な
// アクセス制御から意図的に切り離されたライブ購読である）。
func (h *Hub) JoinRoom(c *Client, conversationID int64) bool {
	if _, _, ok := c.identity(); !ok {
		h.logger.Warn("join before attach",
			slog.String("connection_id", c.id),
		)
		return false
	}
	if conversationID <= 0 {
		return false
	}
	return h.registry.JoinRoom(c, conversationID)
}

// LeaveRoom は接続のルーム購読を解除する。非メンバーへのno-opはfalse。
func (h *Hub) LeaveRoom(c *Client, conversationID int64) bool {
	return h.registry.LeaveRoom(c, conversationID)
}

// SetTyping は接続のユーザーの入力中フラグを設定し、
// 発信元を除くルームの全購読者へ変化を配信する。
// 同値への再設定は変化ではないため配信しない。
func (h *Hub) SetTyping(c *Client, conversationID int64, isTyping bool) {
	userID, username, ok := c.identity()
	if !ok {
		return
	}

	if !h.registry.SetTyping(conversationID, userID, username, isTyping) {
		return
	}
	h.broadcastRoom(conversationID, NewTypingEvent(conversationID, userID, username, isTyping), c)
}

// PublishPersisted は永続化済みメッセージをルームの全購読者へ配信する。
// 購読者がいない場合イベントは単に破棄される（オフライン配送はなく、
// 非購読者は以後の履歴取得でのみメッセージを見る）。
// 配信失敗は呼び出し元へ決して伝播しない。
func (h *Hub) PublishPersisted(msg *model.Message) {
	if msg == nil {
		return
	}
	h.broadcastRoom(msg.ConversationID, NewPersistedMessageEvent(msg), nil)
}

// PublishMessage は軽量ライブメッセージをルームの全購読者へ配信する。
// 永続化を伴わない通知経路。配信失敗は呼び出し元へ伝播しない。
func (h *Hub) PublishMessage(conversationID int64, senderUsername, content string) {
	h.broadcastRoom(conversationID, NewLiveMessageEvent(conversationID, senderUsername, content), nil)
}

// Detach は接続をプレゼンス・全ルーム・全入力中集合から除去する。
// 巻き込まれて解除された入力中フラグの解除イベントを各ルームへ配信し、
// ユーザーの最後の接続であればオフラインのプレゼンスイベントを配信する。
// 何度呼んでも安全。
func (h *Hub) Detach(c *Client) {
	c.detachOnce.Do(func() {
		h.clientsMu.Lock()
		delete(h.clients, c)
		h.clientsMu.Unlock()

		userID, username, attached := c.identity()

		var result DetachResult
		if attached {
			result = h.registry.Detach(c, userID)
		}

		h.closeClient(c)
		if h.metrics != nil {
			h.metrics.RecordConnectionClosed()
		}
		h.logger.Info("live connection closed", slog.String("connection_id", c.id))

		for _, conversationID := range result.TypingCleared {
			h.broadcastRoom(conversationID, NewTypingEvent(conversationID, userID, username, false), nil)
		}
		if result.LastConnection {
			h.broadcastAll(NewPresenceEvent(userID, username, false))
		}
	})
}

// Shutdown は全ライブ接続を閉じ、ポンプの終了を待つ。
func (h *Hub) Shutdown(ctx context.Context) error {
	h.clientsMu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			c.conn.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed", slog.Int("connections_closed", len(clients)))
		return nil
	case <-ctx.Done():
		h.logger.Warn("hub shutdown timed out")
		return ctx.Err()
	}
}

// sendMessage はライブ経路のメッセージ送信を処理する。
// 順序不変条件を守るため、永続化とキャッシュ無効化が完了してから配信する。
func (h *Hub) sendMessage(c *Client, conversationID int64, content string) {
	userID, _, ok := c.identity()
	if !ok {
		h.logger.Warn("send before attach", slog.String("connection_id", c.id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	msg, err := h.chat.AddMessage(ctx, conversationID, userID, content)
	if err != nil {
		h.logger.Warn("live message persist failed",
			slog.String("connection_id", c.id),
			slog.Int64("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessagePublished("live")
	}
	h.PublishPersisted(msg)
}

// updateStatus はライブ経路のメッセージ状態遷移を処理する。
func (h *Hub) updateStatus(c *Client, messageID int64, status model.MessageStatus) {
	if _, _, ok := c.identity(); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if _, err := h.chat.UpdateMessageStatus(ctx, messageID, status); err != nil {
		h.logger.Warn("message status update failed",
			slog.String("connection_id", c.id),
			slog.Int64("message_id", messageID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

// broadcastRoom はルームの購読者（exceptを除く）へイベントを配信する。
// 送信できなかった接続は失効とみなして暗黙にdetachするが、
// 残りの受信者への配信は継続する（部分失敗は受信者単位で隔離）。
func (h *Hub) broadcastRoom(conversationID int64, ev Event, except *Client) {
	members := h.registry.RoomMembers(conversationID)
	if len(members) == 0 {
		if h.metrics != nil {
			h.metrics.RecordEventDropped(string(ev.Type))
		}
		return
	}

	var stale []*Client
	for _, member := range members {
		if member == except {
			continue
		}
		if h.safeSend(member, ev) {
			if h.metrics != nil {
				h.metrics.RecordEventDelivered(string(ev.Type))
			}
		} else {
			stale = append(stale, member)
		}
	}

	for _, member := range stale {
		if h.metrics != nil {
			h.metrics.RecordEventDropped(string(ev.Type))
		}
		h.logger.Warn("stale connection detected during broadcast",
			slog.String("connection_id", member.id),
			slog.Int64("conversation_id", conversationID),
		)
		h.Detach(member)
	}
}

// broadcastAll は全ライブ接続へイベントを配信する（プレゼンス通知用）。
func (h *Hub) broadcastAll(ev Event) {
	h.clientsMu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.Unlock()

	var stale []*Client
	for _, c := range clients {
		if h.safeSend(c, ev) {
			if h.metrics != nil {
				h.metrics.RecordEventDelivered(string(ev.Type))
			}
		} else {
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		if h.metrics != nil {
			h.metrics.RecordEventDropped(string(ev.Type))
		}
		h.Detach(c)
	}
}

// safeSend はイベントを接続のバッファへ書き込む。
// クローズ済みまたはバッファ満杯の接続にはfalseを返す。
func (h *Hub) safeSend(c *Client, ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// closeClient はsendチャネルを一度だけ閉じる。
func (h *Hub) closeClient(c *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
