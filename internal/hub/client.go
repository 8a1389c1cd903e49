package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client は1本のライブ接続を表す。
// 接続はattachコマンドでユーザーに紐付くまで匿名であり、
// 紐付け後は複数の会話ルームに参加できる（マルチデバイス対応のため、
// 同一ユーザーが複数のClientを同時に持ち得る）。
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Event
	hub  *Hub

	limiter *rate.Limiter

	mu       sync.Mutex
	attached bool
	userID   int64
	username string
	closed   bool

	detachOnce sync.Once
}

// newClient はClientを生成する。接続IDにはUUIDを割り当てる。
func newClient(h *Hub, conn *websocket.Conn) *Client {
	if conn != nil {
		conn.SetReadLimit(h.cfg.MaxMessageLen)
	}
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan Event, h.cfg.SendBuffer),
		hub:     h,
		limiter: rate.NewLimiter(h.cfg.CommandRate, h.cfg.CommandBurst),
	}
}

// ID は接続の一意な識別子を返す。
func (c *Client) ID() string {
	return c.id
}

// identity は接続に紐付いたユーザー情報を返す。
// attach前の接続はok=falseを返す。
func (c *Client) identity() (userID int64, username string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.username, c.attached
}

// setIdentity は接続をユーザーに紐付ける。
// 既に紐付け済みの場合はfalseを返す（attachは接続ごとに冪等）。
func (c *Client) setIdentity(userID int64, username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return false
	}
	c.attached = true
	c.userID = userID
	c.username = username
	return true
}

// readPump は接続からコマンドを読み続け、ハブへディスパッチする。
// 接続エラーで終了し、終了時に必ずdetachを実行する。
func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error",
					slog.String("connection_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if !c.limiter.Allow() {
			slog.Debug("command rate limit exceeded; discarding",
				slog.String("connection_id", c.id),
			)
			continue
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			slog.Warn("invalid command payload",
				slog.String("connection_id", c.id),
				slog.String("error", err.Error()),
			)
			continue
		}

		c.hub.Dispatch(c, cmd)
	}
}

// writePump はsendチャネルのイベントを接続へ書き続ける。
// 定期的にpingを送り、チャネルクローズまたは書き込みエラーで終了する。
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				slog.Debug("websocket write error",
					slog.String("connection_id", c.id),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
