// Package hub 实现房间中枢：按房间分组的活跃连接注册表、在场状态跟踪，
// 以及把一个参与者的入站事件变为房间内其他参与者的有序出站事件的广播管线。
//
// 每个房间有自己的串行化点（roomState.mu）：序列号分配、日志追加和
// 收件人入队在锁内完成，持久化 I/O 和 WebSocket 写出都在锁外。
// 不同房间之间完全并行，没有全局锁。
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/event"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
)

// Hub 的业务错误。
var (
	// ErrDuplicateParticipant 表示该身份已在房间内有活跃连接。
	ErrDuplicateParticipant = errors.New("hub: participant identity already active in room")
	// ErrHubClosed 表示 Hub 已关闭，不再接受加入。
	ErrHubClosed = errors.New("hub: hub is shut down")
)

// Identity 标识房间内的一个参与者。
type Identity struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// EventSink 是 Hub 向单个连接投递出站事件的出口。
// Send 必须是非阻塞的（内部排队），队列满时返回 false；
// Close 幂等地关闭底层通道。Client 是生产实现，测试注入内存实现。
type EventSink interface {
	Send(data []byte) bool
	Close(code int, reason string)
}

// Config 是 Hub 的调优参数。零值字段取默认值。
type Config struct {
	// EvictionGrace 是房间变空后到内存逐出之间的宽限期，期间重新加入会取消逐出。
	EvictionGrace time.Duration
	// ChatHydrateLimit 是水合载荷携带的最近聊天条数。
	ChatHydrateLimit int
	// PersistAttempts 是单个事件持久化的最大尝试次数。
	PersistAttempts int
	// PersistBackoff 是持久化重试的初始退避，之后按指数增长。
	PersistBackoff time.Duration
	// PersistMaxBackoff 是退避上限。
	PersistMaxBackoff time.Duration
	// PersistQueueSize 是每个房间待持久化事件队列的容量。
	PersistQueueSize int
	// PersistTimeout 是单次持久化写入的超时。
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.EvictionGrace <= 0 {
		c.EvictionGrace = 30 * time.Second
	}
	if c.ChatHydrateLimit <= 0 {
		c.ChatHydrateLimit = 50
	}
	if c.PersistAttempts <= 0 {
		c.PersistAttempts = 5
	}
	if c.PersistBackoff <= 0 {
		c.PersistBackoff = 100 * time.Millisecond
	}
	if c.PersistMaxBackoff <= 0 {
		c.PersistMaxBackoff = 5 * time.Second
	}
	if c.PersistQueueSize <= 0 {
		c.PersistQueueSize = 1024
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	return c
}

// Hub 是房间中枢。一个进程内通常只有一个实例，由 bootstrap 注入依赖创建，
// 生命周期可控，便于测试隔离。
type Hub struct {
	history repository.HistoryRepository
	blobs   repository.BlobRepository
	cfg     Config
	log     *logrus.Entry

	mu     sync.RWMutex
	rooms  map[uint]*roomState
	closed bool
}

// New 创建 Hub 实例。
func New(history repository.HistoryRepository, blobs repository.BlobRepository, cfg Config) *Hub {
	if history == nil {
		panic("HistoryRepository cannot be nil for Hub")
	}
	if blobs == nil {
		panic("BlobRepository cannot be nil for Hub")
	}
	return &Hub{
		history: history,
		blobs:   blobs,
		cfg:     cfg.withDefaults(),
		log:     logrus.WithField("component", "hub"),
		rooms:   make(map[uint]*roomState),
	}
}

// JoinResult 返回给加入方的水合状态。只发给加入的连接，不广播。
type JoinResult struct {
	RoomID       uint
	Actions      []domain.WhiteboardAction
	RecentChat   []domain.ChatMessage
	Participants []Identity
	NextSequence uint64
}

// Join 把一个连接注册到房间。
//
// 身份在房间内必须唯一，重复加入返回 ErrDuplicateParticipant 且不改变现有状态。
// 房间不在内存时从持久化网关水合。水合载荷在锁内先于任何后续广播入队到
// sink，保证连接在参与实时分发之前收到当前状态。
// 其他参与者收到 joined 在场事件；加入方自己不收（参与者列表已在水合载荷里）。
func (h *Hub) Join(ctx context.Context, roomID uint, id Identity, sink EventSink) (*JoinResult, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoomState(roomID, h.cfg)
		h.rooms[roomID] = room
		go room.runPersister(h)
	}
	h.mu.Unlock()

	if err := room.ensureHydrated(ctx, h); err != nil {
		// 水合失败的空房间从注册表摘除，下一次加入会重试
		h.dropRoomIfUnusable(roomID, room)
		return nil, err
	}

	room.mu.Lock()
	if room.evicted {
		room.mu.Unlock()
		// 与逐出竞争：重试一次，新的 roomState 会被创建
		return h.Join(ctx, roomID, id, sink)
	}
	if _, dup := room.participants[id.UserID]; dup {
		room.mu.Unlock()
		return nil, ErrDuplicateParticipant
	}
	room.cancelEviction()
	room.participants[id.UserID] = &participant{identity: id, sink: sink, joinedAt: time.Now()}

	result := room.snapshotLocked()
	hydration, err := event.Marshal(event.RoomState{
		Type:         event.KindRoomState,
		RoomID:       roomID,
		Actions:      result.Actions,
		RecentChat:   result.RecentChat,
		Participants: toParticipants(result.Participants),
		NextSequence: result.NextSequence,
	})
	if err == nil {
		sink.Send(hydration)
	}

	presence, _ := event.Marshal(event.Presence{
		Type:      event.KindPresence,
		Kind:      event.PresenceJoined,
		UserID:    id.UserID,
		Username:  id.Username,
		Timestamp: time.Now().UTC(),
	})
	room.fanoutLocked(presence, id.UserID)
	room.mu.Unlock()

	h.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": id.UserID}).Info("Participant joined room")
	return result, nil
}

// Leave 把参与者从房间移除并向剩余参与者广播 left 在场事件。
// 房间变空时安排宽限期后的逐出。对不在房间内的身份是无操作。
func (h *Hub) Leave(roomID uint, userID uint) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return
	}

	room.mu.Lock()
	p, ok := room.participants[userID]
	if !ok || room.evicted {
		room.mu.Unlock()
		return
	}
	delete(room.participants, userID)

	presence, _ := event.Marshal(event.Presence{
		Type:      event.KindPresence,
		Kind:      event.PresenceLeft,
		UserID:    userID,
		Username:  p.identity.Username,
		Timestamp: time.Now().UTC(),
	})
	room.fanoutLocked(presence, userID)

	if len(room.participants) == 0 {
		room.scheduleEviction(func() { h.evictIfEmpty(roomID) })
	}
	room.mu.Unlock()

	h.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Participant left room")
}

// Dispatch 处理来自某个连接的一条原始入站消息。
// 这是房间所有变更事件的唯一入口：解码、校验、序列号分配、日志变更、
// 持久化提交和广播都从这里走。错误只回送给触发的连接。
func (h *Hub) Dispatch(roomID uint, sender Identity, raw []byte) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		// 连接与房间逐出竞争，消息作废
		return
	}

	in, err := event.Decode(raw)
	if err != nil {
		code := event.CodeInvalidPayload
		if errors.Is(err, event.ErrUnknownKind) {
			code = event.CodeUnknownEventType
		}
		room.sendErrorTo(sender.UserID, code, err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		room.sendErrorTo(sender.UserID, event.CodeInvalidPayload, err.Error())
		return
	}

	switch in.Kind {
	case event.KindChatMessage:
		h.dispatchChat(room, sender, in.Chat)
	case event.KindWhiteboardAction:
		h.dispatchAction(room, sender, in.Action)
	case event.KindFileUpload:
		h.dispatchFile(room, sender, in.File)
	case event.KindPing:
		pong, _ := event.Marshal(event.Pong{Type: event.KindPong})
		room.sendTo(sender.UserID, pong)
	}
}

// dispatchChat 为聊天消息分配序列号、提交持久化并广播。
// 发送方自己的连接不回显：发起连接对本地事件是权威的，
// 且一个身份在房间内只允许一条连接，没有需要同步的同房间多端。
func (h *Hub) dispatchChat(room *roomState, sender Identity, p *event.ChatPayload) {
	now := time.Now().UTC()

	room.mu.Lock()
	if room.evicted {
		room.mu.Unlock()
		return
	}
	seq, ok := room.assignSeqLocked()
	if !ok {
		room.mu.Unlock()
		h.forceEvict(room.id, "sequence state corrupted")
		return
	}
	msg := domain.ChatMessage{
		RoomID:      room.id,
		UserID:      sender.UserID,
		Username:    sender.Username,
		Content:     p.Content,
		MessageType: p.MessageType,
		Seq:         seq,
		CreatedAt:   now,
	}
	room.rememberChatLocked(msg)
	room.submitPersistLocked(h, persistJob{chat: &msg})

	data, _ := event.Marshal(event.ChatBroadcast{
		Type:        event.KindChatMessage,
		Sequence:    seq,
		SenderID:    sender.UserID,
		SenderName:  sender.Username,
		Content:     p.Content,
		MessageType: p.MessageType,
		Timestamp:   now,
	})
	room.fanoutLocked(data, sender.UserID)
	room.mu.Unlock()
}

// dispatchAction 为白板操作分配序列号并广播。
// clear 截断内存日志并保留自身为新起点；序列号计数器不重置，
// 客户端可以通过序列号空洞发现错过的 clear。
func (h *Hub) dispatchAction(room *roomState, sender Identity, p *event.ActionPayload) {
	now := time.Now().UTC()

	room.mu.Lock()
	if room.evicted {
		room.mu.Unlock()
		return
	}
	seq, ok := room.assignSeqLocked()
	if !ok {
		room.mu.Unlock()
		h.forceEvict(room.id, "sequence state corrupted")
		return
	}
	action := domain.WhiteboardAction{
		RoomID:     room.id,
		UserID:     sender.UserID,
		Username:   sender.Username,
		ActionType: p.ActionType,
		X:          p.X,
		Y:          p.Y,
		Color:      p.Color,
		BrushSize:  p.BrushSize,
		IsDrawing:  p.IsDrawing,
		Seq:        seq,
		Timestamp:  now,
	}
	if p.ActionType == domain.ActionClear {
		room.log = append(room.log[:0:0], action)
		room.submitPersistLocked(h, persistJob{action: &action, clear: true})
	} else {
		room.log = append(room.log, action)
		room.submitPersistLocked(h, persistJob{action: &action})
	}

	data, _ := event.Marshal(event.ActionBroadcast{
		Type:       event.KindWhiteboardAction,
		Sequence:   seq,
		SenderID:   sender.UserID,
		SenderName: sender.Username,
		ActionType: p.ActionType,
		X:          p.X,
		Y:          p.Y,
		Color:      p.Color,
		BrushSize:  p.BrushSize,
		IsDrawing:  p.IsDrawing,
		Timestamp:  now,
	})
	room.fanoutLocked(data, sender.UserID)
	room.mu.Unlock()
}

// dispatchFile 校验 Blob 引用后广播文件分享通知。
// 字节内容已由 Blob 网关持久化，这里只转发元数据；
// 通知同时落库为一条 file 类型的聊天消息，历史回放时可还原下载链接。
// 引用解析是外部 I/O，在进入房间串行化点之前完成。
func (h *Hub) dispatchFile(room *roomState, sender Identity, p *event.FilePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.PersistTimeout)
	ref, err := h.blobs.Resolve(ctx, p.FileID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrBlobNotFound) {
			room.sendErrorTo(sender.UserID, event.CodeBlobReferenceInvalid, "file reference is not registered")
		} else {
			h.log.WithError(err).WithField("room_id", room.id).Error("Blob gateway lookup failed")
			room.sendErrorTo(sender.UserID, event.CodeBlobReferenceInvalid, "file reference could not be verified")
		}
		return
	}
	now := time.Now().UTC()

	room.mu.Lock()
	if room.evicted {
		room.mu.Unlock()
		return
	}
	seq, ok := room.assignSeqLocked()
	if !ok {
		room.mu.Unlock()
		h.forceEvict(room.id, "sequence state corrupted")
		return
	}
	msg := domain.ChatMessage{
		RoomID:      room.id,
		UserID:      sender.UserID,
		Username:    sender.Username,
		Content:     "Uploaded: " + ref.Name,
		MessageType: domain.MessageTypeFile,
		Seq:         seq,
		CreatedAt:   now,
		FileID:      ref.ID,
		FileName:    ref.Name,
		FileType:    ref.ContentType,
		FileURL:     ref.DownloadURL,
	}
	room.rememberChatLocked(msg)
	room.submitPersistLocked(h, persistJob{chat: &msg})

	data, _ := event.Marshal(event.FileBroadcast{
		Type:        event.KindFileUpload,
		Sequence:    seq,
		SenderID:    sender.UserID,
		SenderName:  sender.Username,
		FileID:      ref.ID,
		Filename:    ref.Name,
		ContentType: ref.ContentType,
		Size:        ref.Size,
		DownloadURL: ref.DownloadURL,
		Timestamp:   now,
	})
	room.fanoutLocked(data, sender.UserID)
	room.mu.Unlock()
}

// InjectChat 代表 REST 接口向房间注入一条聊天消息。
// 走与 Dispatch 相同的串行化点，保证序列号分配的唯一权威是 Hub。
// 发送者没有活跃连接，消息广播给房间内所有参与者。
func (h *Hub) InjectChat(ctx context.Context, roomID uint, sender Identity, content, msgType string) (*domain.ChatMessage, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoomState(roomID, h.cfg)
		h.rooms[roomID] = room
		go room.runPersister(h)
	}
	h.mu.Unlock()

	if err := room.ensureHydrated(ctx, h); err != nil {
		h.dropRoomIfUnusable(roomID, room)
		return nil, err
	}
	now := time.Now().UTC()

	room.mu.Lock()
	if room.evicted {
		room.mu.Unlock()
		return h.InjectChat(ctx, roomID, sender, content, msgType)
	}
	seq, ok := room.assignSeqLocked()
	if !ok {
		room.mu.Unlock()
		h.forceEvict(roomID, "sequence state corrupted")
		return nil, errors.New("hub: room sequence state corrupted")
	}
	msg := domain.ChatMessage{
		RoomID:      roomID,
		UserID:      sender.UserID,
		Username:    sender.Username,
		Content:     content,
		MessageType: msgType,
		Seq:         seq,
		CreatedAt:   now,
	}
	room.rememberChatLocked(msg)
	room.submitPersistLocked(h, persistJob{chat: &msg})

	data, _ := event.Marshal(event.ChatBroadcast{
		Type:        event.KindChatMessage,
		Sequence:    seq,
		SenderID:    sender.UserID,
		SenderName:  sender.Username,
		Content:     content,
		MessageType: msgType,
		Timestamp:   now,
	})
	room.fanoutLocked(data, 0)
	if len(room.participants) == 0 {
		room.scheduleEviction(func() { h.evictIfEmpty(roomID) })
	}
	room.mu.Unlock()
	return &msg, nil
}

// SnapshotWhiteboard 返回内存中房间的白板日志副本。
// 第二个返回值为 false 表示房间不在内存里（调用方应回退到持久化网关）。
func (h *Hub) SnapshotWhiteboard(roomID uint) ([]domain.WhiteboardAction, bool) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted || !room.hydrated {
		return nil, false
	}
	return append([]domain.WhiteboardAction(nil), room.log...), true
}

// evictIfEmpty 在宽限期到点后把仍然为空的房间逐出内存。
// 宽限期内有人重新加入时 cancelEviction 已经停掉定时器，这里再查一次
// 只是为了挡住 AfterFunc 已经触发但尚未拿到锁的窗口。
func (h *Hub) evictIfEmpty(roomID uint) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		h.mu.Unlock()
		return
	}
	room.mu.Lock()
	if len(room.participants) > 0 {
		room.mu.Unlock()
		h.mu.Unlock()
		return
	}
	room.evicted = true
	delete(h.rooms, roomID)
	room.mu.Unlock()
	h.mu.Unlock()

	room.stopPersister()
	h.log.WithField("room_id", roomID).Info("Empty room evicted from memory")
}

// forceEvict 立即逐出房间并关闭其全部连接。
// 只用于序列号状态损坏这类无法局部修复的情况，客户端重连后重新水合。
func (h *Hub) forceEvict(roomID uint, reason string) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, roomID)
	h.mu.Unlock()

	room.mu.Lock()
	room.evicted = true
	room.cancelEviction()
	sinks := make([]EventSink, 0, len(room.participants))
	for _, p := range room.participants {
		sinks = append(sinks, p.sink)
	}
	room.participants = make(map[uint]*participant)
	room.mu.Unlock()

	for _, s := range sinks {
		s.Close(1008, reason)
	}
	room.stopPersister()
	h.log.WithFields(logrus.Fields{"room_id": roomID, "reason": reason}).Error("Room forcibly evicted")
}

// dropRoomIfUnusable 把水合失败且没有参与者的房间从注册表摘除。
func (h *Hub) dropRoomIfUnusable(roomID uint, room *roomState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.participants) == 0 && h.rooms[roomID] == room {
		room.evicted = true
		delete(h.rooms, roomID)
		go room.stopPersister()
	}
}

// Shutdown 关闭 Hub：拒绝新加入、关闭所有连接并等待各房间的持久化队列排空。
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := make([]*roomState, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[uint]*roomState)
	h.mu.Unlock()

	for _, room := range rooms {
		room.mu.Lock()
		room.evicted = true
		room.cancelEviction()
		sinks := make([]EventSink, 0, len(room.participants))
		for _, p := range room.participants {
			sinks = append(sinks, p.sink)
		}
		room.participants = make(map[uint]*participant)
		room.mu.Unlock()

		for _, s := range sinks {
			s.Close(1001, "server shutting down")
		}
		room.stopPersister()

		select {
		case <-room.persistDone:
		case <-ctx.Done():
			h.log.WithField("room_id", room.id).Warn("Shutdown timed out waiting for persistence queue")
		}
	}
	h.log.Info("Hub shut down")
}

func toParticipants(ids []Identity) []event.Participant {
	out := make([]event.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, event.Participant{UserID: id.UserID, Username: id.Username})
	}
	return out
}
