package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/chatline/internal/model"
)

// ConversationServiceInterface は会話ハンドラーが必要とするサービスインターフェース。
type ConversationServiceInterface interface {
	// CreateConversation は会話を作成する。参加者2名未満はエラー。
	CreateConversation(ctx context.Context, name string, participantIDs []int64) (*model.Conversation, error)
	// GetConversation は会話を取得する。存在しない場合はnilを返す。
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	// ListUserConversations はユーザーの会話一覧を作成日時降順で返す。
	ListUserConversations(ctx context.Context, userID int64) ([]*model.Conversation, error)
	// AddMember はユーザーを会話に追加する。既存メンバーならfalse。
	AddMember(ctx context.Context, conversationID, userID int64) (bool, error)
	// RemoveMember はユーザーを会話から除外する。非メンバーならfalse。
	RemoveMember(ctx context.Context, conversationID, userID int64) (bool, error)
}

// ConversationHandler は会話管理のHTTPハンドラー。
type ConversationHandler struct {
	service ConversationServiceInterface
}

// NewConversationHandler はConversationHandlerを生成する。
func NewConversationHandler(service ConversationServiceInterface) *ConversationHandler {
	return &ConversationHandler{
		service: service,
	}
}

// createConversationRequest は会話作成のリクエストボディ。
type createConversationRequest struct {
	Name           string  `json:"name"`
	ParticipantIDs []int64 `json:"participantIds"`
}

// memberRequest はメンバー追加のリクエストボディ。
type memberRequest struct {
	UserID int64 `json:"userId"`
}

// membershipChangeResponse はメンバーシップ変更の冪等な結果。
type membershipChangeResponse struct {
	Changed bool `json:"changed"`
}

// Create は会話を作成する。
// POST /conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	if len(req.ParticipantIDs) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInsufficientParticipantsError(0))
		return
	}

	conv, err := h.service.CreateConversation(r.Context(), req.Name, req.ParticipantIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, conv)
}

// Get は会話を取得する。
// GET /conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	conv, err := h.service.GetConversation(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if conv == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewConversationNotFoundError(id))
		return
	}

	writeJSONResponse(w, http.StatusOK, conv)
}

// ListForUser はユーザーの会話一覧を返す。
// GET /conversations/user/{userId}
func (h *ConversationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	conversations, err := h.service.ListUserConversations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if conversations == nil {
		conversations = []*model.Conversation{}
	}
	writeJSONResponse(w, http.StatusOK, conversations)
}

// AddMember はユーザーを会話に追加する。
// POST /conversations/{id}/members
func (h *ConversationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}
	if req.UserID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("userIdを指定してください。"))
		return
	}

	added, err := h.service.AddMember(r.Context(), id, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, membershipChangeResponse{Changed: added})
}

// RemoveMember はユーザーを会話から除外する。
// DELETE /conversations/{id}/members/{userId}
func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	userID, err := pathID(r, "userId")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	removed, err := h.service.RemoveMember(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, membershipChangeResponse{Changed: removed})
}
