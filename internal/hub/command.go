package hub

// CommandType は受信コマンドの種別を表す。
type CommandType string

const (
	// CommandAttach は接続をユーザーに紐付ける。最初に1回送ること。
	CommandAttach CommandType = "attach"
	// CommandJoin は会話ルームのライブイベント購読を開始する。
	CommandJoin CommandType = "join"
	// CommandLeave は会話ルームの購読を解除する。
	CommandLeave CommandType = "leave"
	// CommandTyping は入力中フラグを設定する。
	CommandTyping CommandType = "typing"
	// CommandSend はメッセージを永続化してルームへ配信する。
	CommandSend CommandType = "send"
	// CommandAckDelivered はメッセージの受領を確認する（sent → delivered）。
	CommandAckDelivered CommandType = "ackDelivered"
	// CommandMarkRead はメッセージを既読にする（→ read）。
	CommandMarkRead CommandType = "markRead"
)

// Command はライブ接続から受信するコマンドのワイヤ形式。
// 種別ごとに使用するフィールドが異なる。
type Command struct {
	Type           CommandType `json:"type"`
	UserID         int64       `json:"userId,omitempty"`
	Username       string      `json:"username,omitempty"`
	ConversationID int64       `json:"conversationId,omitempty"`
	IsTyping       bool        `json:"isTyping,omitempty"`
	Content        string      `json:"content,omitempty"`
	MessageID      int64       `json:"messageId,omitempty"`
}
