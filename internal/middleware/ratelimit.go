package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/chatline/internal/model"
)

// RateLimiter はクライアントIP単位のレートリミッターを管理する。
// 一般リクエストとメッセージ投稿で別系統の制限を持つ。
type RateLimiter struct {
	mu sync.RWMutex

	generalLimiters map[string]*rate.Limiter
	sendLimiters    map[string]*rate.Limiter

	generalRate  rate.Limit
	generalBurst int

	sendRate  rate.Limit
	sendBurst int

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter はRateLimiterを生成し、バックグラウンドのクリーンアップを開始する。
// generalPerMin は一般リクエストの分間許容数、sendPerMin はメッセージ投稿の分間許容数。
func NewRateLimiter(generalPerMin, sendPerMin int) *RateLimiter {
	rl := &RateLimiter{
		generalLimiters: make(map[string]*rate.Limiter),
		sendLimiters:    make(map[string]*rate.Limiter),
		generalRate:     rate.Limit(float64(generalPerMin) / 60.0),
		generalBurst:    generalPerMin,
		sendRate:        rate.Limit(float64(sendPerMin) / 60.0),
		sendBurst:       sendPerMin,
		cleanupInterval: 10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// cleanupLoop は定期的に全リミッターを破棄し、メモリ使用量を抑える。
// トークンは再生成されるため、破棄はバースト許容量のリセットに相当する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			rl.generalLimiters = make(map[string]*rate.Limiter)
			rl.sendLimiters = make(map[string]*rate.Limiter)
			rl.mu.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}

// getOrCreateGeneralLimiter はIPに対応する一般リミッターを取得または生成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.generalLimiters[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック: RLock解放からLock取得までの間に他のゴルーチンが生成した可能性
	if limiter, exists := rl.generalLimiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.generalRate, rl.generalBurst)
	rl.generalLimiters[ip] = limiter
	return limiter
}

// getOrCreateSendLimiter はIPに対応するメッセージ投稿リミッターを取得または生成する。
func (rl *RateLimiter) getOrCreateSendLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.sendLimiters[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.sendLimiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.sendRate, rl.sendBurst)
	rl.sendLimiters[ip] = limiter
	return limiter
}

// clientIP はリクエスト元のIPアドレスを返す。
// リバースプロキシ配下ではX-Forwarded-Forの先頭を優先する。
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GeneralMiddleware は全APIリクエストに適用するレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			limiter := rl.getOrCreateGeneralLimiter(ip)

			if !limiter.Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("limiter", "general"),
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SendMessageMiddleware はメッセージ投稿エンドポイントに適用する、
// より厳しいレート制限ミドルウェアを返す。
func (rl *RateLimiter) SendMessageMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			limiter := rl.getOrCreateSendLimiter(ip)

			if !limiter.Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("limiter", "send_message"),
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitResponse は429レスポンスをAPIエラー形式で書き込む。
func writeRateLimitResponse(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく時間をおいてから再度お試しください。",
	})
}
