package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/event"
)

// persistJob 是一条待落库的事件。chat 与 action 互斥；clear 标记走
// ClearWhiteboard 而不是 AppendAction。
type persistJob struct {
	chat   *domain.ChatMessage
	action *domain.WhiteboardAction
	clear  bool
}

// submitPersistLocked 把事件提交到房间的持久化队列。调用方必须持有 mu。
// 广播已经完成，这里只影响持久性：队列满视同一次写入失败，进入降级路径。
func (r *roomState) submitPersistLocked(h *Hub, job persistJob) {
	select {
	case r.persistCh <- job:
	default:
		logrus.WithField("room_id", r.id).Error("Persistence queue full, event dropped from durability path")
		r.markDegradedLocked()
	}
}

// runPersister 是房间的持久化协程，串行消费队列直到房间被逐出。
// 在自己的 goroutine 中运行；耗时 I/O 不持有房间的串行化点。
func (r *roomState) runPersister(h *Hub) {
	for job := range r.persistCh {
		r.persistWithRetry(h, job)
	}
	close(r.persistDone)
}

// stopPersister 关闭持久化队列，队列中剩余的事件仍会被写完。
// 房间逐出与 Hub 关闭可能竞争，关闭动作只执行一次。
func (r *roomState) stopPersister() {
	r.persistStop.Do(func() {
		close(r.persistCh)
	})
}

// persistWithRetry 以指数退避重试单条事件的落库。
// 重试耗尽后房间进入持久化降级：向所有参与者广播系统级警告，
// 告知最近的历史可能不持久，但不关闭连接也不阻塞后续分发。
// 下一次成功写入清除降级标记。
func (r *roomState) persistWithRetry(h *Hub, job persistJob) {
	backoff := r.cfg.PersistBackoff
	for attempt := 1; attempt <= r.cfg.PersistAttempts; attempt++ {
		err := r.writeJob(h, job)
		if err == nil {
			r.clearDegraded()
			return
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": r.id,
			"attempt": attempt,
		}).Warn("Persistence write failed")
		if attempt == r.cfg.PersistAttempts {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > r.cfg.PersistMaxBackoff {
			backoff = r.cfg.PersistMaxBackoff
		}
	}

	r.mu.Lock()
	r.markDegradedLocked()
	r.mu.Unlock()
}

func (r *roomState) writeJob(h *Hub, job persistJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()
	switch {
	case job.chat != nil:
		return h.history.AppendChat(ctx, job.chat)
	case job.clear:
		return h.history.ClearWhiteboard(ctx, job.action)
	default:
		return h.history.AppendAction(ctx, job.action)
	}
}

// markDegradedLocked 置位降级标记并广播警告。调用方必须持有 mu。
// 已处于降级状态时不重复广播。
func (r *roomState) markDegradedLocked() {
	if r.degraded {
		return
	}
	r.degraded = true
	data, _ := event.Marshal(event.Error{
		Type:    event.KindError,
		Code:    event.CodePersistenceDegraded,
		Message: "recent events may not be durable; persistence is being retried",
	})
	r.fanoutLocked(data, 0)
	logrus.WithField("room_id", r.id).Error("Room entered persistence-degraded state")
}

func (r *roomState) clearDegraded() {
	r.mu.Lock()
	was := r.degraded
	r.degraded = false
	r.mu.Unlock()
	if was {
		logrus.WithField("room_id", r.id).Info("Room recovered from persistence-degraded state")
	}
}
