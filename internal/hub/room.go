package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/event"
)

// participant 是房间内的一个已加入身份及其连接出口。
type participant struct {
	identity Identity
	sink     EventSink
	joinedAt time.Time
}

// roomState 是单个房间的内存状态，由 Hub 独占持有。
// mu 是房间的串行化点：序列号分配、日志变更、参与者集合变更和
// 收件人入队都必须在 mu 内进行，保证同一房间内事件的全序。
type roomState struct {
	id  uint
	cfg Config

	hydrateOnce sync.Once
	hydrateErr  error

	mu           sync.Mutex
	hydrated     bool
	nextSeq      uint64
	lastSeq      uint64
	log          []domain.WhiteboardAction
	recentChat   []domain.ChatMessage
	participants map[uint]*participant
	evictTimer   *time.Timer
	evicted      bool
	degraded     bool

	persistCh   chan persistJob
	persistStop sync.Once
	persistDone chan struct{}
}

func newRoomState(id uint, cfg Config) *roomState {
	return &roomState{
		id:           id,
		cfg:          cfg,
		nextSeq:      1,
		participants: make(map[uint]*participant),
		persistCh:    make(chan persistJob, cfg.PersistQueueSize),
		persistDone:  make(chan struct{}),
	}
}

// ensureHydrated 在首次使用前从持久化网关加载房间历史。
// 并发的加入者共享同一次加载；序列号计数器从持久化历史的最大序列号续起，
// 因此跨逐出周期依然单调。
func (r *roomState) ensureHydrated(ctx context.Context, h *Hub) error {
	r.hydrateOnce.Do(func() {
		history, err := h.history.LoadRoomHistory(ctx, r.id, r.cfg.ChatHydrateLimit)
		if err != nil {
			r.hydrateErr = fmt.Errorf("hub: hydrate room %d: %w", r.id, err)
			return
		}
		r.mu.Lock()
		r.log = history.Actions
		r.recentChat = history.RecentChat
		var maxSeq uint64
		if n := len(history.Actions); n > 0 {
			maxSeq = history.Actions[n-1].Seq
		}
		if n := len(history.RecentChat); n > 0 && history.RecentChat[n-1].Seq > maxSeq {
			maxSeq = history.RecentChat[n-1].Seq
		}
		r.nextSeq = maxSeq + 1
		r.lastSeq = maxSeq
		r.hydrated = true
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"room_id":  r.id,
			"actions":  len(history.Actions),
			"next_seq": r.nextSeq,
		}).Debug("Room hydrated from persistence gateway")
	})
	return r.hydrateErr
}

// assignSeqLocked 分配下一个序列号。调用方必须持有 mu。
// 观察到非单调状态返回 false，调用方据此强制逐出房间（致命、不可局部修复）。
func (r *roomState) assignSeqLocked() (uint64, bool) {
	seq := r.nextSeq
	if seq <= r.lastSeq {
		return 0, false
	}
	r.lastSeq = seq
	r.nextSeq = seq + 1
	return seq, true
}

// rememberChatLocked 把消息追加到水合用的最近聊天环，保持长度上限。
func (r *roomState) rememberChatLocked(msg domain.ChatMessage) {
	r.recentChat = append(r.recentChat, msg)
	if overflow := len(r.recentChat) - r.cfg.ChatHydrateLimit; overflow > 0 {
		r.recentChat = append(r.recentChat[:0:0], r.recentChat[overflow:]...)
	}
}

// fanoutLocked 把序列化后的事件入队给除 exclude 之外的所有参与者。
// 入队在锁内完成以保持广播顺序与序列号分配顺序一致；实际写出由各连接的
// write pump 负责。单个收件人队列满只丢弃该收件人的这条消息，不影响其他人。
func (r *roomState) fanoutLocked(data []byte, exclude uint) {
	for uid, p := range r.participants {
		if uid == exclude {
			continue
		}
		if !p.sink.Send(data) {
			logrus.WithFields(logrus.Fields{
				"room_id":     r.id,
				"receiver_id": uid,
			}).Warn("Recipient send queue full, dropping event for this recipient")
		}
	}
}

// sendTo 把事件投递给房间内指定参与者。
func (r *roomState) sendTo(userID uint, data []byte) {
	r.mu.Lock()
	p := r.participants[userID]
	r.mu.Unlock()
	if p != nil {
		p.sink.Send(data)
	}
}

// sendErrorTo 向触发错误的连接回送 error 事件。
func (r *roomState) sendErrorTo(userID uint, code, message string) {
	data, _ := event.Marshal(event.Error{Type: event.KindError, Code: code, Message: message})
	r.sendTo(userID, data)
}

// snapshotLocked 返回水合载荷的内容副本。调用方必须持有 mu。
func (r *roomState) snapshotLocked() *JoinResult {
	ids := make([]Identity, 0, len(r.participants))
	for _, p := range r.participants {
		ids = append(ids, p.identity)
	}
	return &JoinResult{
		RoomID:       r.id,
		Actions:      append([]domain.WhiteboardAction(nil), r.log...),
		RecentChat:   append([]domain.ChatMessage(nil), r.recentChat...),
		Participants: ids,
		NextSequence: r.nextSeq,
	}
}

// scheduleEviction 启动逐出宽限定时器。调用方必须持有 mu。
func (r *roomState) scheduleEviction(evict func()) {
	if r.evictTimer != nil || r.evicted {
		return
	}
	r.evictTimer = time.AfterFunc(r.cfg.EvictionGrace, evict)
}

// cancelEviction 取消挂起的逐出。调用方必须持有 mu。
func (r *roomState) cancelEviction() {
	if r.evictTimer != nil {
		r.evictTimer.Stop()
		r.evictTimer = nil
	}
}
