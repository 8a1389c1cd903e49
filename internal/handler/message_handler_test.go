package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/chatline/internal/model"
)

// mockMessageService はMessageServiceInterfaceのモック実装。
type mockMessageService struct {
	addMessageFn   func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error)
	listMessagesFn func(ctx context.Context, conversationID int64, take, skip int, beforeID int64) ([]*model.Message, error)
	updateStatusFn func(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error)
}

func (m *mockMessageService) AddMessage(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
	if m.addMessageFn != nil {
		return m.addMessageFn(ctx, conversationID, senderID, content)
	}
	return nil, nil
}

func (m *mockMessageService) ListMessages(ctx context.Context, conversationID int64, take, skip int, beforeID int64) ([]*model.Message, error) {
	if m.listMessagesFn != nil {
		return m.listMessagesFn(ctx, conversationID, take, skip, beforeID)
	}
	return nil, nil
}

func (m *mockMessageService) UpdateMessageStatus(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, messageID, status)
	}
	return nil, nil
}

// mockPublisher はMessagePublisherのモック実装。
type mockPublisher struct {
	published []*model.Message
}

func (m *mockPublisher) PublishPersisted(msg *model.Message) {
	m.published = append(m.published, msg)
}

// --- POST /conversations/{id}/messages テスト ---

func TestMessageHandler_Send_PersistsThenPublishes(t *testing.T) {
	persisted := false
	svc := &mockMessageService{
		addMessageFn: func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
			persisted = true
			return &model.Message{ID: 1, ConversationID: conversationID, SenderID: senderID, Content: content, Status: model.StatusSent}, nil
		},
	}
	pub := &mockPublisher{}
	h := NewMessageHandler(svc, pub)

	body := bytes.NewBufferString(`{"senderId":1,"content":"hi"}`)
	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/conversations/1/messages", body), "id", "1")
	w := httptest.NewRecorder()

	h.Send(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if !persisted {
		t.Error("message should be persisted")
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}
	if pub.published[0].Status != model.StatusSent {
		t.Errorf("published status = %q, want sent", pub.published[0].Status)
	}

	var msg model.Message
	if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if msg.Content != "hi" || msg.Status != model.StatusSent {
		t.Errorf("message = %+v, want content hi with status sent", msg)
	}
}

func TestMessageHandler_Send_FailureNotPublished(t *testing.T) {
	svc := &mockMessageService{
		addMessageFn: func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
			return nil, model.NewEmptyMessageError()
		},
	}
	pub := &mockPublisher{}
	h := NewMessageHandler(svc, pub)

	body := bytes.NewBufferString(`{"senderId":1,"content":""}`)
	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/conversations/1/messages", body), "id", "1")
	w := httptest.NewRecorder()

	h.Send(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(pub.published) != 0 {
		t.Errorf("failed persistence must not publish, got %d", len(pub.published))
	}
}

func TestMessageHandler_Send_MissingSenderReturns400(t *testing.T) {
	h := NewMessageHandler(&mockMessageService{}, &mockPublisher{})

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/conversations/1/messages", body), "id", "1")
	w := httptest.NewRecorder()

	h.Send(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMessageHandler_Send_UnknownConversationReturns404(t *testing.T) {
	svc := &mockMessageService{
		addMessageFn: func(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
			return nil, model.NewConversationNotFoundError(conversationID)
		},
	}
	h := NewMessageHandler(svc, &mockPublisher{})

	body := bytes.NewBufferString(`{"senderId":1,"content":"hi"}`)
	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/conversations/99/messages", body), "id", "99")
	w := httptest.NewRecorder()

	h.Send(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- GET /conversations/{id}/messages テスト ---

func TestMessageHandler_List_PassesQueryParams(t *testing.T) {
	var gotTake, gotSkip int
	var gotBefore int64
	svc := &mockMessageService{
		listMessagesFn: func(ctx context.Context, conversationID int64, take, skip int, beforeID int64) ([]*model.Message, error) {
			gotTake, gotSkip, gotBefore = take, skip, beforeID
			return []*model.Message{}, nil
		},
	}
	h := NewMessageHandler(svc, nil)

	req := withChiURLParam(
		httptest.NewRequest(http.MethodGet, "/conversations/1/messages?take=20&skip=40&before=100", nil),
		"id", "1",
	)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotTake != 20 || gotSkip != 40 || gotBefore != 100 {
		t.Errorf("params = (%d, %d, %d), want (20, 40, 100)", gotTake, gotSkip, gotBefore)
	}
}

func TestMessageHandler_List_DefaultsApplied(t *testing.T) {
	var gotTake, gotSkip int
	svc := &mockMessageService{
		listMessagesFn: func(ctx context.Context, conversationID int64, take, skip int, beforeID int64) ([]*model.Message, error) {
			gotTake, gotSkip = take, skip
			return nil, nil
		},
	}
	h := NewMessageHandler(svc, nil)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/conversations/1/messages", nil), "id", "1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if gotTake != defaultPageSize || gotSkip != 0 {
		t.Errorf("defaults = (%d, %d), want (%d, 0)", gotTake, gotSkip, defaultPageSize)
	}
}

// --- PUT /messages/{id}/status テスト ---

func TestMessageHandler_UpdateStatus_Success(t *testing.T) {
	svc := &mockMessageService{
		updateStatusFn: func(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error) {
			return &model.Message{ID: messageID, Status: status}, nil
		},
	}
	h := NewMessageHandler(svc, nil)

	body := bytes.NewBufferString(`{"status":"read"}`)
	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/messages/1/status", body), "id", "1")
	w := httptest.NewRecorder()

	h.UpdateStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMessageHandler_UpdateStatus_InvalidReturns400(t *testing.T) {
	svc := &mockMessageService{
		updateStatusFn: func(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error) {
			return nil, model.NewInvalidStatusError(string(status))
		},
	}
	h := NewMessageHandler(svc, nil)

	body := bytes.NewBufferString(`{"status":"archived"}`)
	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/messages/1/status", body), "id", "1")
	w := httptest.NewRecorder()

	h.UpdateStatus(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
