package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/chatline/internal/middleware"
)

// HealthPinger はヘルスチェックが必要とする疎通確認インターフェース。
type HealthPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder

	// サービス
	UserService         UserServiceInterface
	ConversationService ConversationServiceInterface
	MessageService      MessageServiceInterface

	// ライブチャネル
	Publisher        MessagePublisher
	ConnectionServer ConnectionServer

	// 運用
	HealthPinger   HealthPinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → LoggingMiddleware → RecoveryMiddleware → RateLimitMiddleware(General)
//
// /health、/metrics、/wsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())

	userHandler := NewUserHandler(deps.UserService)
	convHandler := NewConversationHandler(deps.ConversationService)
	msgHandler := NewMessageHandler(deps.MessageService, deps.Publisher)
	wsHandler := NewWSHandler(deps.ConnectionServer, deps.CORSAllowedOrigin)

	// --- レート制限の外のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthPinger))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// ライブチャネル。接続確立後のコマンドはハブ側のリミッターが制御する
	r.Get("/ws", wsHandler.Serve)

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー管理
		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.Create)
			r.Get("/", userHandler.List)
			r.Get("/username/{name}", userHandler.GetByUsername)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Put("/", userHandler.Rename)
				r.Delete("/", userHandler.Delete)
			})
		})

		// 会話管理
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", convHandler.Create)

			// GET /conversations/user/{userId} - ユーザーの会話一覧
			r.Get("/user/{userId}", convHandler.ListForUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", convHandler.Get)

				// POST /conversations/{id}/messages - 投稿専用レート制限を追加
				r.With(deps.RateLimiter.SendMessageMiddleware()).Post("/messages", msgHandler.Send)
				r.Get("/messages", msgHandler.List)

				// メンバーシップ管理
				r.Post("/members", convHandler.AddMember)
				r.Delete("/members/{userId}", convHandler.RemoveMember)
			})
		})

		// メッセージ状態管理
		r.Put("/messages/{id}/status", msgHandler.UpdateStatus)
	})

	return r
}

// NewHealthHandler はヘルスチェックのHTTPハンドラーを返す。
// データストアへの疎通を確認し、失敗時は503を返す。
func NewHealthHandler(pinger HealthPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := pinger.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
