package ws

import (
	"sync"

	"chatapi/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Registry 维护房间名到在线连接集合的映射，是本进程消息扇出的核心。
// 房间随第一个连接出现，随最后一个连接离开删除，不做单独的清扫。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Client]struct{})}
}

// Admit 把连接加入房间，房间不存在则懒创建。
func (r *Registry) Admit(room string, c *Client) {
	r.mu.Lock()
	set := r.rooms[room]
	if set == nil {
		set = make(map[*Client]struct{})
		r.rooms[room] = set
		log.Debug().Str("room", room).Msg("room created")
	}
	set[c] = struct{}{}
	r.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Remove 把连接移出房间，集合变空时在同一临界区内删除房间条目。
// 对已移除的连接重复调用是空操作。
func (r *Registry) Remove(room string, c *Client) {
	r.mu.Lock()
	set, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, room)
		log.Debug().Str("room", room).Msg("room removed (empty)")
	}
	r.mu.Unlock()
	metrics.WsConnections.Dec()
}

// Broadcast 把负载投递给房间内的每个连接。先快照成员集合再迭代，
// 发送失败的连接在本轮投递结束后统一移除，不阻塞其他投递。
// 对不存在的房间广播是静默空操作：房间可能在发布决定与投递之间合法消失。
func (r *Registry) Broadcast(room string, payload []byte) {
	r.mu.RLock()
	set, ok := r.rooms[room]
	if !ok {
		r.mu.RUnlock()
		return
	}
	snapshot := make([]*Client, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	var failed []*Client
	for _, c := range snapshot {
		if !c.trySend(payload) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		log.Debug().Str("room", room).Msg("dropping unresponsive connection")
		r.Remove(room, c)
		c.Close()
	}
}

// RoomSummary 是单个房间的诊断快照。
type RoomSummary struct {
	Room    string `json:"room"`
	Clients int    `json:"clients"`
}

// Summaries 返回所有活跃房间及各自的连接数。
func (r *Registry) Summaries() []RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomSummary, 0, len(r.rooms))
	for room, set := range r.rooms {
		out = append(out, RoomSummary{Room: room, Clients: len(set)})
	}
	return out
}

// Total 返回全部房间的连接总数。
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, set := range r.rooms {
		total += len(set)
	}
	return total
}
