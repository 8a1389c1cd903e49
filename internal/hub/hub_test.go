package hub

import (
	"context"
	"testing"

	"github.com/hitoshi/chatline/internal/model"
)

// chatServiceMock はChatServiceのテスト用モック。
type chatServiceMock struct {
	addMessageFunc          func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error)
	updateMessageStatusFunc func(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error)
}

func (m *chatServiceMock) AddMessage(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
	return m.addMessageFunc(ctx, conversationID, senderID, content)
}

func (m *chatServiceMock) UpdateMessageStatus(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error) {
	return m.updateMessageStatusFunc(ctx, messageID, status)
}

func newTestHub(chat ChatService) *Hub {
	cfg := DefaultConfig()
	cfg.SendBuffer = 8
	return NewHub(cfg, chat, nil, nil)
}

// addTestClient は接続なしのクライアントをハブへ登録する。
// イベントはsendチャネルから直接読み取って検証する。
func addTestClient(h *Hub) *Client {
	c := newClient(h, nil)
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()
	return c
}

// drainEvents はクライアントのバッファ済みイベントをすべて取り出す。
func drainEvents(c *Client) []Event {
	var events []Event
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// TestAttach_BroadcastsPresenceOnline は最初のattachで全接続へオンラインの
// プレゼンスイベントが配信されることを検証する。
func TestAttach_BroadcastsPresenceOnline(t *testing.T) {
	h := newTestHub(nil)
	c1 := addTestClient(h)
	c2 := addTestClient(h)

	h.Attach(c1, 10, "alice")

	for _, c := range []*Client{c1, c2} {
		events := drainEvents(c)
		if len(events) != 1 {
			t.Fatalf("events = %d, want 1", len(events))
		}
		ev := events[0]
		if ev.Type != EventPresenceChanged {
			t.Errorf("Type = %q, want %q", ev.Type, EventPresenceChanged)
		}
		if ev.UserID != 10 || ev.Username != "alice" {
			t.Errorf("identity = (%d, %q), want (10, alice)", ev.UserID, ev.Username)
		}
		if ev.IsOnline == nil || !*ev.IsOnline {
			t.Error("IsOnline should be true")
		}
	}
}

// TestAttach_SecondConnectionSilent は同一ユーザーの2本目の接続で
// プレゼンスイベントが配信されないことを検証する。
func TestAttach_SecondConnectionSilent(t *testing.T) {
	h := newTestHub(nil)
	c1 := addTestClient(h)
	c2 := addTestClient(h)

	h.Attach(c1, 10, "alice")
	drainEvents(c1)
	drainEvents(c2)

	h.Attach(c2, 10, "alice")

	if events := drainEvents(c1); len(events) != 0 {
		t.Errorf("second attach should not broadcast presence, got %d events", len(events))
	}
}

// TestAttach_IdempotentPerConnection は同一接続の二重attachが無視される
// ことを検証する。
func TestAttach_IdempotentPerConnection(t *testing.T) {
	h := newTestHub(nil)
	c := addTestClient(h)

	h.Attach(c, 10, "alice")
	drainEvents(c)

	h.Attach(c, 11, "bob")

	userID, username, _ := c.identity()
	if userID != 10 || username != "alice" {
		t.Errorf("identity = (%d, %q), want original (10, alice)", userID, username)
	}
	if events := drainEvents(c); len(events) != 0 {
		t.Errorf("repeated attach should not broadcast, got %d events", len(events))
	}
}

// TestJoinRoom_RequiresAttach はattach前のjoinが拒否されることを検証する。
func TestJoinRoom_RequiresAttach(t *testing.T) {
	h := newTestHub(nil)
	c := addTestClient(h)

	if h.JoinRoom(c, 1) {
		t.Error("join before attach should be rejected")
	}
}

// TestPublishPersisted_BroadcastScoping はルームに参加した接続のみが
// イベントを受信することを検証する。
func TestPublishPersisted_BroadcastScoping(t *testing.T) {
	h := newTestHub(nil)
	member := addTestClient(h)
	outsider := addTestClient(h)

	h.Attach(member, 10, "alice")
	h.Attach(outsider, 20, "bob")
	h.JoinRoom(member, 1)
	drainEvents(member)
	drainEvents(outsider)

	msg := &model.Message{ID: 5, ConversationID: 1, SenderID: 20, Content: "hi", Status: model.StatusSent, Sender: &model.User{ID: 20, Username: "bob"}}
	h.PublishPersisted(msg)

	memberEvents := drainEvents(member)
	if len(memberEvents) != 1 {
		t.Fatalf("member events = %d, want 1", len(memberEvents))
	}
	ev := memberEvents[0]
	if ev.Type != EventMessageReceived {
		t.Errorf("Type = %q, want %q", ev.Type, EventMessageReceived)
	}
	if ev.Message == nil || ev.Message.ID != 5 {
		t.Error("persisted event should carry the full message")
	}
	if ev.SenderUsername != "bob" || ev.Content != "hi" {
		t.Errorf("payload = (%q, %q), want (bob, hi)", ev.SenderUsername, ev.Content)
	}

	if events := drainEvents(outsider); len(events) != 0 {
		t.Errorf("connection not joined to the room received %d events", len(events))
	}
}

// TestLeaveRoom_StopsDelivery はleave後の接続がイベントを受信しなくなる
// ことを検証する。
func TestLeaveRoom_StopsDelivery(t *testing.T) {
	h := newTestHub(nil)
	c := addTestClient(h)

	h.Attach(c, 10, "alice")
	h.JoinRoom(c, 1)
	drainEvents(c)

	if !h.LeaveRoom(c, 1) {
		t.Fatal("leave of joined room should return true")
	}

	h.PublishMessage(1, "bob", "after leave")

	if events := drainEvents(c); len(events) != 0 {
		t.Errorf("left connection received %d events", len(events))
	}
}

// TestSetTyping_ExcludesOrigin は入力中イベントが発信元以外の購読者へ
// 配信されることを検証する。
func TestSetTyping_ExcludesOrigin(t *testing.T) {
	h := newTestHub(nil)
	typist := addTestClient(h)
	watcher := addTestClient(h)

	h.Attach(typist, 10, "alice")
	h.Attach(watcher, 20, "bob")
	h.JoinRoom(typist, 1)
	h.JoinRoom(watcher, 1)
	drainEvents(typist)
	drainEvents(watcher)

	h.SetTyping(typist, 1, true)

	if events := drainEvents(typist); len(events) != 0 {
		t.Errorf("origin received its own typing event")
	}

	events := drainEvents(watcher)
	if len(events) != 1 {
		t.Fatalf("watcher events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != EventTypingChanged {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypingChanged)
	}
	if ev.IsTyping == nil || !*ev.IsTyping {
		t.Error("IsTyping should be true")
	}
	if ev.UserID != 10 || ev.Username != "alice" {
		t.Errorf("identity = (%d, %q), want (10, alice)", ev.UserID, ev.Username)
	}
}

// TestSetTyping_RepeatedSignalNotRebroadcast は同値への再設定が
// 重複イベントを生まないことを検証する。
func TestSetTyping_RepeatedSignalNotRebroadcast(t *testing.T) {
	h := newTestHub(nil)
	typist := addTestClient(h)
	watcher := addTestClient(h)

	h.Attach(typist, 10, "alice")
	h.Attach(watcher, 20, "bob")
	h.JoinRoom(typist, 1)
	h.JoinRoom(watcher, 1)
	drainEvents(typist)
	drainEvents(watcher)

	h.SetTyping(typist, 1, true)
	h.SetTyping(typist, 1, true)
	h.SetTyping(typist, 1, true)

	if events := drainEvents(watcher); len(events) != 1 {
		t.Errorf("watcher events = %d, want 1 (re-signals are not state changes)", len(events))
	}

	// 解除は変化なので1回だけ配信される
	h.SetTyping(typist, 1, false)
	h.SetTyping(typist, 1, false)

	events := drainEvents(watcher)
	if len(events) != 1 {
		t.Fatalf("watcher events after clear = %d, want 1", len(events))
	}
	if events[0].IsTyping == nil || *events[0].IsTyping {
		t.Error("IsTyping should be false")
	}
}

// TestDetach_BroadcastsTypingClearedAndOffline はdetachが入力中解除と
// オフラインのイベントを配信することを検証する。
func TestDetach_BroadcastsTypingClearedAndOffline(t *testing.T) {
	h := newTestHub(nil)
	leaver := addTestClient(h)
	watcher := addTestClient(h)

	h.Attach(leaver, 10, "alice")
	h.Attach(watcher, 20, "bob")
	h.JoinRoom(leaver, 1)
	h.JoinRoom(watcher, 1)
	h.SetTyping(leaver, 1, true)
	drainEvents(leaver)
	drainEvents(watcher)

	h.Detach(leaver)

	events := drainEvents(watcher)
	if len(events) != 2 {
		t.Fatalf("watcher events = %d, want 2 (typing cleared + offline)", len(events))
	}

	typing := events[0]
	if typing.Type != EventTypingChanged {
		t.Errorf("first event Type = %q, want %q", typing.Type, EventTypingChanged)
	}
	if typing.IsTyping == nil || *typing.IsTyping {
		t.Error("typing should be cleared")
	}

	offline := events[1]
	if offline.Type != EventPresenceChanged {
		t.Errorf("second event Type = %q, want %q", offline.Type, EventPresenceChanged)
	}
	if offline.IsOnline == nil || *offline.IsOnline {
		t.Error("IsOnline should be false")
	}
}

// TestDetach_Repeatable はdetachを何度呼んでも安全であることを検証する。
func TestDetach_Repeatable(t *testing.T) {
	h := newTestHub(nil)
	c := addTestClient(h)

	h.Attach(c, 10, "alice")
	h.Detach(c)
	h.Detach(c)

	if h.ConnectionCount() != 0 {
		t.Errorf("connections = %d, want 0", h.ConnectionCount())
	}
}

// TestBroadcastRoom_StaleConnectionImplicitDetach は送信できない接続が
// 暗黙にdetachされ、残りの受信者への配信が継続することを検証する。
func TestBroadcastRoom_StaleConnectionImplicitDetach(t *testing.T) {
	h := newTestHub(nil)
	stale := addTestClient(h)
	healthy := addTestClient(h)

	h.Attach(stale, 10, "alice")
	h.Attach(healthy, 20, "bob")
	h.JoinRoom(stale, 1)
	h.JoinRoom(healthy, 1)
	drainEvents(stale)
	drainEvents(healthy)

	// staleのバッファを満杯にし、次の配信で書き込み失敗させる
	for i := 0; i < h.cfg.SendBuffer; i++ {
		stale.send <- Event{}
	}

	h.PublishMessage(1, "bob", "delivery continues")

	members := h.registry.RoomMembers(1)
	if len(members) != 1 || members[0] != healthy {
		t.Errorf("room should retain only the healthy connection")
	}
	if h.ConnectionCount() != 1 {
		t.Errorf("connections = %d, want 1 after implicit detach", h.ConnectionCount())
	}

	// 部分失敗は受信者単位で隔離される。healthyにはメッセージに加えて
	// staleのdetachに伴うオフラインのプレゼンスイベントが届く。
	events := drainEvents(healthy)
	var messages, presence int
	for _, ev := range events {
		switch ev.Type {
		case EventMessageReceived:
			messages++
		case EventPresenceChanged:
			presence++
		}
	}
	if messages != 1 {
		t.Errorf("message events = %d, want 1 (delivery isolated per recipient)", messages)
	}
	if presence != 1 {
		t.Errorf("presence events = %d, want 1 (stale user went offline)", presence)
	}
}

// TestSendMessage_PersistHappensBeforeBroadcast はライブ経路の送信で
// 永続化完了後にのみ配信されることを検証する。
func TestSendMessage_PersistHappensBeforeBroadcast(t *testing.T) {
	var h *Hub
	var receiver *Client

	chat := &chatServiceMock{
		addMessageFunc: func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
			// 永続化の時点で配信はまだ起きていない
			if events := drainEvents(receiver); len(events) != 0 {
				t.Errorf("broadcast happened before persistence completed")
			}
			return &model.Message{
				ID:             1,
				ConversationID: conversationID,
				SenderID:       senderID,
				Content:        content,
				Status:         model.StatusSent,
				Sender:         &model.User{ID: senderID, Username: "alice"},
			}, nil
		},
	}

	h = newTestHub(chat)
	sender := addTestClient(h)
	receiver = addTestClient(h)

	h.Attach(sender, 10, "alice")
	h.Attach(receiver, 20, "bob")
	h.JoinRoom(sender, 1)
	h.JoinRoom(receiver, 1)
	drainEvents(sender)
	drainEvents(receiver)

	h.Dispatch(sender, Command{Type: CommandSend, ConversationID: 1, Content: "hi"})

	events := drainEvents(receiver)
	if len(events) != 1 {
		t.Fatalf("receiver events = %d, want 1", len(events))
	}
	if events[0].Message == nil || events[0].Message.Status != model.StatusSent {
		t.Error("delivered event should carry the persisted message with status sent")
	}
}

// TestSendMessage_PersistFailureNotBroadcast は永続化失敗時に配信が
// 起きないことを検証する。
func TestSendMessage_PersistFailureNotBroadcast(t *testing.T) {
	chat := &chatServiceMock{
		addMessageFunc: func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
			return nil, model.NewEmptyMessageError()
		},
	}
	h := newTestHub(chat)
	sender := addTestClient(h)
	receiver := addTestClient(h)

	h.Attach(sender, 10, "alice")
	h.Attach(receiver, 20, "bob")
	h.JoinRoom(sender, 1)
	h.JoinRoom(receiver, 1)
	drainEvents(sender)
	drainEvents(receiver)

	h.Dispatch(sender, Command{Type: CommandSend, ConversationID: 1, Content: "<script></script>"})

	if events := drainEvents(receiver); len(events) != 0 {
		t.Errorf("failed persistence must not broadcast, got %d events", len(events))
	}
}

// TestDispatch_MarkRead はmarkReadコマンドがread状態への遷移要求に
// 変換されることを検証する。
func TestDispatch_MarkRead(t *testing.T) {
	var gotID int64
	var gotStatus model.MessageStatus
	chat := &chatServiceMock{
		updateMessageStatusFunc: func(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error) {
			gotID, gotStatus = messageID, status
			return &model.Message{ID: messageID, Status: status}, nil
		},
	}
	h := newTestHub(chat)
	c := addTestClient(h)
	h.Attach(c, 10, "alice")

	h.Dispatch(c, Command{Type: CommandMarkRead, MessageID: 42})

	if gotID != 42 || gotStatus != model.StatusRead {
		t.Errorf("update = (%d, %q), want (42, read)", gotID, gotStatus)
	}

	h.Dispatch(c, Command{Type: CommandAckDelivered, MessageID: 43})

	if gotID != 43 || gotStatus != model.StatusDelivered {
		t.Errorf("update = (%d, %q), want (43, delivered)", gotID, gotStatus)
	}
}

// TestScenario_DirectMessageFlow は基本シナリオを検証する:
// 2ユーザーの直接会話で、ユーザー2の購読接続がメッセージ投稿の
// イベントを受信する。
func TestScenario_DirectMessageFlow(t *testing.T) {
	chat := &chatServiceMock{
		addMessageFunc: func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
			return &model.Message{
				ID:             1,
				ConversationID: conversationID,
				SenderID:       senderID,
				Content:        content,
				Status:         model.StatusSent,
				Sender:         &model.User{ID: senderID, Username: "A"},
			}, nil
		},
	}
	h := newTestHub(chat)

	userB := addTestClient(h)
	h.Attach(userB, 2, "B")
	h.JoinRoom(userB, 1)
	drainEvents(userB)

	// HTTP経路の投稿後に呼ばれる配信と同じ経路
	msg, err := chat.AddMessage(context.Background(), 1, 1, "hi")
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	h.PublishPersisted(msg)

	events := drainEvents(userB)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != EventMessageReceived {
		t.Errorf("Type = %q, want %q", ev.Type, EventMessageReceived)
	}
	if ev.SenderUsername != "A" || ev.Content != "hi" {
		t.Errorf("payload = (%q, %q), want (A, hi)", ev.SenderUsername, ev.Content)
	}
	if ev.Message == nil || ev.Message.Status != model.StatusSent {
		t.Error("message should be delivered with status sent")
	}
}
