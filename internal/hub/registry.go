package hub

import "sync"

// Registry はプレゼンス・ルーム・入力中状態のインメモリレジストリ。
//
// 3つのマップはすべてプロセス存続期間のみ有効で、再起動時にゼロから
// 再構築される（ライブ状態は永続化しない）。ルームのメンバーシップは
// 永続的なMembershipとは独立しており、接続後に明示的なjoinが必要。
//
// ロック粒度は会話ID単位（roomごと）とユーザーID単位（presenceごと）。
// レジストリ全体のロックはマップエントリの生成・削除時のみ短く取る。
// ロック順序は外側マップ → エントリの順で固定する。
type Registry struct {
	roomsMu sync.RWMutex
	rooms   map[int64]*room

	usersMu sync.RWMutex
	users   map[int64]*presence
}

// room は1会話のライブ購読者と入力中状態を保持する。
// 同一ルームへの操作はmuで直列化され、別ルームの操作とは並行に進む。
type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
	typing  map[int64]string // userID → username
}

// presence は1ユーザーのライブ接続集合を保持する（マルチデバイス対応）。
type presence struct {
	mu    sync.Mutex
	conns map[*Client]struct{}
}

// NewRegistry はRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[int64]*room),
		users: make(map[int64]*presence),
	}
}

// Attach は接続をユーザーのプレゼンスに追加する。
// このユーザーの最初の接続だった場合はtrueを返す（オンライン遷移）。
func (r *Registry) Attach(c *Client, userID int64) bool {
	r.usersMu.Lock()
	p, ok := r.users[userID]
	if !ok {
		p = &presence{conns: make(map[*Client]struct{})}
		r.users[userID] = p
	}
	r.usersMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[c] = struct{}{}
	return len(p.conns) == 1
}

// JoinRoom は接続をルームに追加する。冪等であり、
// 実際に追加された場合のみtrueを返す。
func (r *Registry) JoinRoom(c *Client, conversationID int64) bool {
	rm := r.getOrCreateRoom(conversationID)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.members[c]; ok {
		return false
	}
	rm.members[c] = struct{}{}
	return true
}

// LeaveRoom は接続をルームから除外する。
// メンバーでなかった場合はno-opとしてfalseを返す。
func (r *Registry) LeaveRoom(c *Client, conversationID int64) bool {
	rm := r.getRoom(conversationID)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	_, ok := rm.members[c]
	if ok {
		delete(rm.members, c)
	}
	empty := len(rm.members) == 0 && len(rm.typing) == 0
	rm.mu.Unlock()

	if empty {
		r.dropRoomIfEmpty(conversationID, rm)
	}
	return ok
}

// SetTyping はルームの入力中集合にユーザーを追加/削除する。
// 集合が実際に変化した場合にtrueを返す。
// 入力中フラグにサーバー側の期限はなく、明示的な解除信号か
// 接続のdetachまで残り続ける（呼び出し側が再送・解除に責任を持つ）。
func (r *Registry) SetTyping(conversationID, userID int64, username string, isTyping bool) bool {
	if isTyping {
		rm := r.getOrCreateRoom(conversationID)
		rm.mu.Lock()
		defer rm.mu.Unlock()
		if _, ok := rm.typing[userID]; ok {
			return false
		}
		rm.typing[userID] = username
		return true
	}

	rm := r.getRoom(conversationID)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.typing[userID]; !ok {
		return false
	}
	delete(rm.typing, userID)
	return true
}

// RoomMembers はルームの現時点の購読接続のスナップショットを返す。
func (r *Registry) RoomMembers(conversationID int64) []*Client {
	rm := r.getRoom(conversationID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	members := make([]*Client, 0, len(rm.members))
	for c := range rm.members {
		members = append(members, c)
	}
	return members
}

// TypingUsers はルームの現時点の入力中ユーザーのスナップショットを返す。
func (r *Registry) TypingUsers(conversationID int64) map[int64]string {
	rm := r.getRoom(conversationID)
	if rm == nil {
		return map[int64]string{}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	users := make(map[int64]string, len(rm.typing))
	for id, name := range rm.typing {
		users[id] = name
	}
	return users
}

// DetachResult はDetachが除去した状態の要約。
// 呼び出し側はTypingClearedの各ルームへ入力解除イベントを、
// LastConnectionの場合はオフラインイベントを配信する。
type DetachResult struct {
	LastConnection bool
	TypingCleared  []int64
}

// Detach は接続をプレゼンス・全ルーム・全入力中集合から除去する。
func (r *Registry) Detach(c *Client, userID int64) DetachResult {
	result := DetachResult{}

	// プレゼンスから除去
	r.usersMu.Lock()
	p := r.users[userID]
	r.usersMu.Unlock()

	if p != nil {
		p.mu.Lock()
		delete(p.conns, c)
		last := len(p.conns) == 0
		p.mu.Unlock()
		result.LastConnection = last

		if last {
			r.usersMu.Lock()
			if cur := r.users[userID]; cur == p {
				p.mu.Lock()
				if len(p.conns) == 0 {
					delete(r.users, userID)
				}
				p.mu.Unlock()
			}
			r.usersMu.Unlock()
		}
	}

	// 全ルームから除去し、このユーザーの入力中フラグも解除する
	r.roomsMu.RLock()
	ids := make([]int64, 0, len(r.rooms))
	snapshots := make([]*room, 0, len(r.rooms))
	for id, rm := range r.rooms {
		ids = append(ids, id)
		snapshots = append(snapshots, rm)
	}
	r.roomsMu.RUnlock()

	for i, rm := range snapshots {
		rm.mu.Lock()
		_, wasMember := rm.members[c]
		delete(rm.members, c)
		_, wasTyping := rm.typing[userID]
		if wasTyping {
			delete(rm.typing, userID)
		}
		empty := len(rm.members) == 0 && len(rm.typing) == 0
		rm.mu.Unlock()

		if wasTyping {
			result.TypingCleared = append(result.TypingCleared, ids[i])
		}
		if (wasMember || wasTyping) && empty {
			r.dropRoomIfEmpty(ids[i], rm)
		}
	}

	return result
}

// getRoom は既存のルームエントリを返す。存在しない場合はnil。
func (r *Registry) getRoom(conversationID int64) *room {
	r.roomsMu.RLock()
	defer r.roomsMu.RUnlock()
	return r.rooms[conversationID]
}

// getOrCreateRoom はルームエントリを取得し、なければ生成する。
func (r *Registry) getOrCreateRoom(conversationID int64) *room {
	r.roomsMu.RLock()
	rm, ok := r.rooms[conversationID]
	r.roomsMu.RUnlock()
	if ok {
		return rm
	}

	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	if rm, ok := r.rooms[conversationID]; ok {
		return rm
	}
	rm = &room{
		members: make(map[*Client]struct{}),
		typing:  make(map[int64]string),
	}
	r.rooms[conversationID] = rm
	return rm
}

// dropRoomIfEmpty は空になったルームエントリをマップから除去する。
// roomsMu → room.mu の順でロックを取り直し、競合するjoinと安全に共存する。
func (r *Registry) dropRoomIfEmpty(conversationID int64, rm *room) {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	if cur := r.rooms[conversationID]; cur != rm {
		return
	}
	rm.mu.Lock()
	empty := len(rm.members) == 0 && len(rm.typing) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, conversationID)
	}
}
