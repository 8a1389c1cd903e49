package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/chatline/internal/model"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	// AddMessage はメッセージを永続化して返す。キャッシュ無効化まで完了してから戻る。
	AddMessage(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error)
	// ListMessages は会話のメッセージ履歴を時系列昇順で返す。
	ListMessages(ctx context.Context, conversationID int64, take, skip int, beforeID int64) ([]*model.Message, error)
	// UpdateMessageStatus はメッセージ状態を前方向にのみ遷移させる。
	UpdateMessageStatus(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, error)
}

// MessagePublisher は永続化済みメッセージのライブ配信を行うインターフェース。
// 配信失敗はHTTPレスポンスに影響しない。
type MessagePublisher interface {
	PublishPersisted(msg *model.Message)
}

// MessageHandler はメッセージ管理のHTTPハンドラー。
type MessageHandler struct {
	service   MessageServiceInterface
	publisher MessagePublisher
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface, publisher MessagePublisher) *MessageHandler {
	return &MessageHandler{
		service:   service,
		publisher: publisher,
	}
}

// sendMessageRequest はメッセージ投稿のリクエストボディ。
type sendMessageRequest struct {
	SenderID int64  `json:"senderId"`
	Content  string `json:"content"`
}

// updateStatusRequest はメッセージ状態更新のリクエストボディ。
type updateStatusRequest struct {
	Status string `json:"status"`
}

// defaultPageSize はtake未指定時の履歴取得件数。
const defaultPageSize = 50

// Send はメッセージを投稿する。
// POST /conversations/{id}/messages
//
// 永続化とキャッシュ無効化の完了後にライブ配信を起動する。
// 配信の成否はレスポンスに影響しない（201は永続化成功のみを意味する）。
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}
	if req.SenderID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("senderIdを指定してください。"))
		return
	}

	msg, err := h.service.AddMessage(r.Context(), conversationID, req.SenderID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 永続化がコミット済みなのでこの時点で配信してよい
	if h.publisher != nil {
		h.publisher.PublishPersisted(msg)
	}

	writeJSONResponse(w, http.StatusCreated, msg)
}

// List は会話のメッセージ履歴を返す。
// GET /conversations/{id}/messages?take&skip&before
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	take, err := queryInt(r, "take", defaultPageSize)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	beforeID, err := queryInt64(r, "before")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	messages, err := h.service.ListMessages(r.Context(), conversationID, take, skip, beforeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if messages == nil {
		messages = []*model.Message{}
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// UpdateStatus はメッセージ状態を更新する。
// PUT /messages/{id}/status
//
// 状態は前方向にのみ遷移する。現在と同じか前の状態への要求は
// no-opとして現在のメッセージを返す。
func (h *MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	messageID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	msg, err := h.service.UpdateMessageStatus(r.Context(), messageID, model.MessageStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, msg)
}
