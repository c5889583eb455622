package hub

// 在场跟踪是 Hub 状态的派生视图：没有独立的变更路径，
// 始终与 Join/Leave 同步更新，"谁在线" 与 "谁显示在场" 不可能漂移。

// ActiveParticipants 返回房间当前在线的参与者身份。
// 房间不在内存时返回 nil。
func (h *Hub) ActiveParticipants(roomID uint) []Identity {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	ids := make([]Identity, 0, len(room.participants))
	for _, p := range room.participants {
		ids = append(ids, p.identity)
	}
	return ids
}

// ActiveRoomIDs 返回当前驻留内存的房间 ID 列表，供后台任务遍历。
func (h *Hub) ActiveRoomIDs() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uint, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}
