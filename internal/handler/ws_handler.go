package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// ConnectionServer はアップグレード済みWebSocket接続を引き受けるインターフェース。
type ConnectionServer interface {
	ServeConn(conn *websocket.Conn)
}

// WSHandler はライブチャネルへのアップグレードを処理するHTTPハンドラー。
type WSHandler struct {
	server   ConnectionServer
	upgrader websocket.Upgrader
}

// NewWSHandler はWSHandlerを生成する。
// allowedOriginが空の場合は全オリジンを許可する（開発用）。
func NewWSHandler(server ConnectionServer, allowedOrigin string) *WSHandler {
	return &WSHandler{
		server: server,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Serve はHTTP接続をWebSocketへアップグレードし、ハブへ引き渡す。
// GET /ws
//
// アップグレード後のレスポンスはWebSocketプロトコルが占有するため、
// 失敗時のエラー書き込みはupgraderに任せる。
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	h.server.ServeConn(conn)
}
