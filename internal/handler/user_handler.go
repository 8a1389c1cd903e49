package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/chatline/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Create はユーザーを作成する。名前重複時はDUPLICATE_USERNAMEエラーを返す。
	Create(ctx context.Context, username string) (*model.User, error)
	// Get はIDでユーザーを取得する。存在しない場合はnilを返す。
	Get(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername はユーザー名でユーザーを取得する。存在しない場合はnilを返す。
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List は全ユーザーを返す。
	List(ctx context.Context) ([]*model.User, error)
	// Rename はユーザー名を変更する。
	Rename(ctx context.Context, id int64, username string) (*model.User, error)
	// Delete はユーザーを削除する。存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userRequest はユーザー作成・リネームのリクエストボディ。
type userRequest struct {
	Name string `json:"name"`
}

// Create はユーザーを作成する。
// POST /users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	user, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, user)
}

// List は全ユーザーを返す。
// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if users == nil {
		users = []*model.User{}
	}
	writeJSONResponse(w, http.StatusOK, users)
}

// Get はIDでユーザーを取得する。
// GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(id))
		return
	}

	writeJSONResponse(w, http.StatusOK, user)
}

// GetByUsername はユーザー名でユーザーを取得する。
// GET /users/username/{name}
func (h *UserHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	user, err := h.service.GetByUsername(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeUserNotFound,
			Message:  "指定されたユーザーが見つかりません: " + name,
			Category: "user",
			Action:   "ユーザー名を確認してください。",
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, user)
}

// Rename はユーザー名を変更する。
// PUT /users/{id}
func (h *UserHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	user, err := h.service.Rename(r.Context(), id, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, user)
}

// Delete はユーザーを削除する。
// DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
