package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/event"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository/mocks"
)

// fakeSink 是 EventSink 的内存实现，记录投递的事件供断言。
type fakeSink struct {
	mu        sync.Mutex
	messages  [][]byte
	closed    bool
	closeCode int
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) Send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.messages = append(s.messages, data)
	return true
}

func (s *fakeSink) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCode = code
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// eventsOfType 返回指定 type 的所有事件，按送达顺序解码为 map。
func (s *fakeSink) eventsOfType(kind event.Kind) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, raw := range s.messages {
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if m["type"] == string(kind) {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSink) typeAt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.messages) {
		return ""
	}
	var m map[string]interface{}
	_ = json.Unmarshal(s.messages[i], &m)
	t, _ := m["type"].(string)
	return t
}

func emptyHistoryMock() *mocks.HistoryRepository {
	historyRepo := new(mocks.HistoryRepository)
	historyRepo.On("LoadRoomHistory", mock.Anything, mock.Anything, mock.Anything).
		Return(repository.RoomHistory{}, nil)
	historyRepo.On("AppendChat", mock.Anything, mock.Anything).Return(nil)
	historyRepo.On("AppendAction", mock.Anything, mock.Anything).Return(nil)
	historyRepo.On("ClearWhiteboard", mock.Anything, mock.Anything).Return(nil)
	return historyRepo
}

func testConfig() Config {
	return Config{
		EvictionGrace:  50 * time.Millisecond,
		PersistBackoff: time.Millisecond,
	}
}

func chatRaw(content string) []byte {
	return []byte(fmt.Sprintf(`{"type":"chat_message","content":%q}`, content))
}

func actionRaw(actionType string) []byte {
	return []byte(fmt.Sprintf(`{"type":"whiteboard_action","action_type":%q,"x":1,"y":2,"is_drawing":true}`, actionType))
}

func TestJoinSendsHydrationBeforeBroadcasts(t *testing.T) {
	historyRepo := emptyHistoryMock()
	h := New(historyRepo, new(mocks.BlobRepository), testConfig())

	alice := Identity{UserID: 1, Username: "alice"}
	bob := Identity{UserID: 2, Username: "bob"}
	aliceSink, bobSink := newFakeSink(), newFakeSink()

	res, err := h.Join(context.Background(), 7, alice, aliceSink)
	require.NoError(t, err)
	assert.Equal(t, uint(7), res.RoomID)
	assert.Equal(t, uint64(1), res.NextSequence)
	assert.Empty(t, res.Actions)

	_, err = h.Join(context.Background(), 7, bob, bobSink)
	require.NoError(t, err)

	h.Dispatch(7, alice, chatRaw("hello"))

	// Bob 的第一条消息必须是水合载荷，随后才是广播
	require.GreaterOrEqual(t, bobSink.count(), 2)
	assert.Equal(t, string(event.KindRoomState), bobSink.typeAt(0))
	chats := bobSink.eventsOfType(event.KindChatMessage)
	require.Len(t, chats, 1)
	assert.Equal(t, "hello", chats[0]["content"])
	assert.Equal(t, float64(1), chats[0]["sequence"])
}

func TestJoinDuplicateIdentityRejected(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}

	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)

	_, err = h.Join(context.Background(), 1, alice, newFakeSink())
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
	assert.Len(t, h.ActiveParticipants(1), 1)
}

func TestDispatchNoEchoToSender(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bob := Identity{UserID: 2, Username: "bob"}
	aliceSink, bobSink := newFakeSink(), newFakeSink()

	_, err := h.Join(context.Background(), 1, alice, aliceSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, bob, bobSink)
	require.NoError(t, err)

	h.Dispatch(1, alice, chatRaw("hi"))

	assert.Len(t, bobSink.eventsOfType(event.KindChatMessage), 1)
	assert.Empty(t, aliceSink.eventsOfType(event.KindChatMessage))
}

func TestSequencesGaplessAcrossChatAndActions(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bob := Identity{UserID: 2, Username: "bob"}
	bobSink := newFakeSink()

	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, bob, bobSink)
	require.NoError(t, err)

	h.Dispatch(1, alice, chatRaw("one"))
	h.Dispatch(1, alice, actionRaw("draw"))
	h.Dispatch(1, alice, chatRaw("two"))
	h.Dispatch(1, alice, actionRaw("erase"))

	// 聊天与白板共享同一个序列号计数器，Bob 观察到的序列严格递增无空洞
	var seqs []uint64
	bobSink.mu.Lock()
	for _, raw := range bobSink.messages {
		var m struct {
			Type     string `json:"type"`
			Sequence uint64 `json:"sequence"`
		}
		_ = json.Unmarshal(raw, &m)
		if m.Type == string(event.KindChatMessage) || m.Type == string(event.KindWhiteboardAction) {
			seqs = append(seqs, m.Sequence)
		}
	}
	bobSink.mu.Unlock()
	require.Len(t, seqs, 4)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestConcurrentDispatchUniqueSequences(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	observer := Identity{UserID: 100, Username: "observer"}
	obsSink := newFakeSink()
	_, err := h.Join(context.Background(), 1, observer, obsSink)
	require.NoError(t, err)

	const senders = 8
	const perSender = 25
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		id := Identity{UserID: uint(i + 1), Username: fmt.Sprintf("u%d", i+1)}
		_, err := h.Join(context.Background(), 1, id, newFakeSink())
		require.NoError(t, err)
		wg.Add(1)
		go func(sender Identity) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				h.Dispatch(1, sender, chatRaw("msg"))
			}
		}(id)
	}
	wg.Wait()

	chats := obsSink.eventsOfType(event.KindChatMessage)
	require.Len(t, chats, senders*perSender)
	seen := make(map[uint64]bool)
	var max uint64
	for _, m := range chats {
		seq := uint64(m["sequence"].(float64))
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
		if seq > max {
			max = seq
		}
	}
	// 无空洞：最大序列号等于事件总数
	assert.Equal(t, uint64(senders*perSender), max)
}

func TestRoomsSequenceIndependently(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	carol := Identity{UserID: 3, Username: "carol"}
	sink1, sink2 := newFakeSink(), newFakeSink()

	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, Identity{UserID: 9, Username: "obs1"}, sink1)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 2, carol, newFakeSink())
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 2, Identity{UserID: 10, Username: "obs2"}, sink2)
	require.NoError(t, err)

	h.Dispatch(1, alice, chatRaw("room1"))
	h.Dispatch(2, carol, chatRaw("room2"))

	// 每个房间的计数器独立，都从 1 开始
	chats1 := sink1.eventsOfType(event.KindChatMessage)
	chats2 := sink2.eventsOfType(event.KindChatMessage)
	require.Len(t, chats1, 1)
	require.Len(t, chats2, 1)
	assert.Equal(t, float64(1), chats1[0]["sequence"])
	assert.Equal(t, float64(1), chats2[0]["sequence"])
}

func TestClearTruncatesLogButNotSequence(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)

	h.Dispatch(1, alice, actionRaw("draw"))
	h.Dispatch(1, alice, actionRaw("draw"))
	h.Dispatch(1, alice, actionRaw("clear"))

	// clear 之后内存日志只剩 clear 自身，序列号计数器继续
	actions, ok := h.SnapshotWhiteboard(1)
	require.True(t, ok)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionClear, actions[0].ActionType)
	assert.Equal(t, uint64(3), actions[0].Seq)

	h.Dispatch(1, alice, actionRaw("draw"))
	actions, ok = h.SnapshotWhiteboard(1)
	require.True(t, ok)
	require.Len(t, actions, 2)
	assert.Equal(t, uint64(4), actions[1].Seq)
}

func TestHydrationResumesSequenceFromHistory(t *testing.T) {
	historyRepo := new(mocks.HistoryRepository)
	historyRepo.On("LoadRoomHistory", mock.Anything, uint(1), mock.Anything).Return(repository.RoomHistory{
		Actions: []domain.WhiteboardAction{
			{RoomID: 1, ActionType: domain.ActionClear, Seq: 5},
			{RoomID: 1, ActionType: domain.ActionDraw, Seq: 6},
		},
		RecentChat: []domain.ChatMessage{
			{RoomID: 1, Content: "old", Seq: 8},
		},
	}, nil)
	historyRepo.On("AppendChat", mock.Anything, mock.Anything).Return(nil)

	h := New(historyRepo, new(mocks.BlobRepository), testConfig())
	sink := newFakeSink()
	res, err := h.Join(context.Background(), 1, Identity{UserID: 1, Username: "alice"}, sink)
	require.NoError(t, err)

	// 计数器从持久化历史的最大序列号续起
	assert.Equal(t, uint64(9), res.NextSequence)
	assert.Len(t, res.Actions, 2)
	assert.Len(t, res.RecentChat, 1)

	states := sink.eventsOfType(event.KindRoomState)
	require.Len(t, states, 1)
	assert.Equal(t, float64(9), states[0]["next_sequence"])
}

func TestUnknownEventTypeErrorOnlyToSender(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bob := Identity{UserID: 2, Username: "bob"}
	aliceSink, bobSink := newFakeSink(), newFakeSink()

	_, err := h.Join(context.Background(), 1, alice, aliceSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, bob, bobSink)
	require.NoError(t, err)
	bobBefore := bobSink.count()

	h.Dispatch(1, alice, []byte(`{"type":"mystery"}`))

	errs := aliceSink.eventsOfType(event.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, event.CodeUnknownEventType, errs[0]["code"])
	assert.Equal(t, bobBefore, bobSink.count())

	// 序列号没有被消耗
	h.Dispatch(1, alice, chatRaw("ok"))
	chats := bobSink.eventsOfType(event.KindChatMessage)
	require.Len(t, chats, 1)
	assert.Equal(t, float64(1), chats[0]["sequence"])
}

func TestFileShareInvalidReferenceRejected(t *testing.T) {
	blobRepo := new(mocks.BlobRepository)
	blobRepo.On("Resolve", mock.Anything, "nope").Return(nil, repository.ErrBlobNotFound)

	h := New(emptyHistoryMock(), blobRepo, testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bob := Identity{UserID: 2, Username: "bob"}
	aliceSink, bobSink := newFakeSink(), newFakeSink()
	_, err := h.Join(context.Background(), 1, alice, aliceSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, bob, bobSink)
	require.NoError(t, err)

	h.Dispatch(1, alice, []byte(`{"type":"file_upload","file_id":"nope"}`))

	errs := aliceSink.eventsOfType(event.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, event.CodeBlobReferenceInvalid, errs[0]["code"])
	assert.Empty(t, bobSink.eventsOfType(event.KindFileUpload))
}

func TestFileShareBroadcastsWithSequence(t *testing.T) {
	blobRepo := new(mocks.BlobRepository)
	blobRepo.On("Resolve", mock.Anything, "blob-1").Return(&domain.FileRef{
		ID: "blob-1", Name: "notes.pdf", ContentType: "application/pdf",
		Size: 1234, DownloadURL: "/api/files/blob-1",
	}, nil)

	h := New(emptyHistoryMock(), blobRepo, testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bobSink := newFakeSink()
	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, Identity{UserID: 2, Username: "bob"}, bobSink)
	require.NoError(t, err)

	h.Dispatch(1, alice, []byte(`{"type":"file_upload","file_id":"blob-1"}`))

	files := bobSink.eventsOfType(event.KindFileUpload)
	require.Len(t, files, 1)
	assert.Equal(t, "notes.pdf", files[0]["filename"])
	assert.Equal(t, float64(1), files[0]["sequence"])
	assert.Equal(t, "/api/files/blob-1", files[0]["download_url"])
}

func TestPresenceEventsOnJoinAndLeave(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	aliceSink := newFakeSink()
	_, err := h.Join(context.Background(), 1, Identity{UserID: 1, Username: "alice"}, aliceSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, Identity{UserID: 2, Username: "bob"}, newFakeSink())
	require.NoError(t, err)

	h.Leave(1, 2)

	presence := aliceSink.eventsOfType(event.KindPresence)
	require.Len(t, presence, 2)
	assert.Equal(t, event.PresenceJoined, presence[0]["kind"])
	assert.Equal(t, "bob", presence[0]["username"])
	assert.Equal(t, event.PresenceLeft, presence[1]["kind"])
}

func TestPingPong(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	sink := newFakeSink()
	_, err := h.Join(context.Background(), 1, alice, sink)
	require.NoError(t, err)

	h.Dispatch(1, alice, []byte(`{"type":"ping"}`))
	assert.Len(t, sink.eventsOfType(event.KindPong), 1)
}

func TestEmptyRoomEvictedAfterGrace(t *testing.T) {
	historyRepo := emptyHistoryMock()
	h := New(historyRepo, new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)

	h.Dispatch(1, alice, actionRaw("draw"))
	h.Leave(1, 1)

	require.Eventually(t, func() bool {
		_, ok := h.SnapshotWhiteboard(1)
		return !ok
	}, time.Second, 5*time.Millisecond, "room should be evicted after grace period")

	// 逐出后重新加入会再次水合
	_, err = h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)
	historyRepo.AssertNumberOfCalls(t, "LoadRoomHistory", 2)
}

func TestRejoinWithinGraceCancelsEviction(t *testing.T) {
	historyRepo := emptyHistoryMock()
	cfg := testConfig()
	cfg.EvictionGrace = 200 * time.Millisecond
	h := New(historyRepo, new(mocks.BlobRepository), cfg)
	alice := Identity{UserID: 1, Username: "alice"}

	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)
	h.Leave(1, 1)

	time.Sleep(20 * time.Millisecond)
	_, err = h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	_, ok := h.SnapshotWhiteboard(1)
	assert.True(t, ok, "rejoin within grace must cancel eviction")
	historyRepo.AssertNumberOfCalls(t, "LoadRoomHistory", 1)
}

func TestPersistenceDegradedBroadcastAfterRetries(t *testing.T) {
	historyRepo := new(mocks.HistoryRepository)
	historyRepo.On("LoadRoomHistory", mock.Anything, mock.Anything, mock.Anything).
		Return(repository.RoomHistory{}, nil)
	historyRepo.On("AppendChat", mock.Anything, mock.Anything).Return(errors.New("db down"))

	cfg := testConfig()
	cfg.PersistAttempts = 2
	h := New(historyRepo, new(mocks.BlobRepository), cfg)
	alice := Identity{UserID: 1, Username: "alice"}
	aliceSink := newFakeSink()
	_, err := h.Join(context.Background(), 1, alice, aliceSink)
	require.NoError(t, err)

	h.Dispatch(1, alice, chatRaw("will not persist"))

	// 重试耗尽后所有参与者（包括发送者）收到降级警告，且只收到一次
	require.Eventually(t, func() bool {
		return len(aliceSink.eventsOfType(event.KindError)) > 0
	}, 2*time.Second, 5*time.Millisecond)
	errs := aliceSink.eventsOfType(event.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, event.CodePersistenceDegraded, errs[0]["code"])

	// 降级期间连接保持打开，后续事件继续分发
	h.Dispatch(1, alice, chatRaw("still works"))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, aliceSink.eventsOfType(event.KindError), 1)
}

func TestInjectChatReachesAllParticipants(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	aliceSink, bobSink := newFakeSink(), newFakeSink()
	_, err := h.Join(context.Background(), 1, Identity{UserID: 1, Username: "alice"}, aliceSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, Identity{UserID: 2, Username: "bob"}, bobSink)
	require.NoError(t, err)

	msg, err := h.InjectChat(context.Background(), 1, Identity{UserID: 3, Username: "carol"}, "via rest", domain.MessageTypeText)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Seq)

	// REST 注入的发送者没有连接，广播到达所有在线参与者
	assert.Len(t, aliceSink.eventsOfType(event.KindChatMessage), 1)
	assert.Len(t, bobSink.eventsOfType(event.KindChatMessage), 1)
}

func TestInjectChatIntoIdleRoomHydratesAndEvicts(t *testing.T) {
	historyRepo := emptyHistoryMock()
	h := New(historyRepo, new(mocks.BlobRepository), testConfig())

	msg, err := h.InjectChat(context.Background(), 1, Identity{UserID: 3, Username: "carol"}, "hello", domain.MessageTypeText)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Seq)

	// 没有参与者的房间在宽限期后被逐出
	require.Eventually(t, func() bool {
		_, ok := h.SnapshotWhiteboard(1)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownClosesConnections(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	sink := newFakeSink()
	_, err := h.Join(context.Background(), 1, Identity{UserID: 1, Username: "alice"}, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.Shutdown(ctx)

	sink.mu.Lock()
	assert.True(t, sink.closed)
	assert.Equal(t, 1001, sink.closeCode)
	sink.mu.Unlock()

	_, err = h.Join(context.Background(), 1, Identity{UserID: 2, Username: "bob"}, newFakeSink())
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestCorruptedSequenceStateForcesEviction(t *testing.T) {
	historyRepo := emptyHistoryMock()
	h := New(historyRepo, new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bob := Identity{UserID: 2, Username: "bob"}
	aliceSink, bobSink := newFakeSink(), newFakeSink()
	_, err := h.Join(context.Background(), 1, alice, aliceSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, bob, bobSink)
	require.NoError(t, err)

	h.mu.RLock()
	room := h.rooms[1]
	h.mu.RUnlock()
	require.NotNil(t, room)

	// 制造非单调状态：下一次序列号分配必然失败
	room.mu.Lock()
	room.lastSeq = room.nextSeq
	room.mu.Unlock()

	h.Dispatch(1, alice, chatRaw("boom"))

	// 房间整体逐出，所有连接以 1008 关闭
	for _, s := range []*fakeSink{aliceSink, bobSink} {
		s.mu.Lock()
		assert.True(t, s.closed)
		assert.Equal(t, 1008, s.closeCode)
		s.mu.Unlock()
	}
	_, ok := h.SnapshotWhiteboard(1)
	assert.False(t, ok, "corrupted room must leave the registry")

	// 重连后从持久化历史重新水合
	freshSink := newFakeSink()
	_, err = h.Join(context.Background(), 1, alice, freshSink)
	require.NoError(t, err)
	historyRepo.AssertNumberOfCalls(t, "LoadRoomHistory", 2)
	assert.Equal(t, string(event.KindRoomState), freshSink.typeAt(0))
}

func TestUndeliverableRecipientDoesNotBlockOthers(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	alice := Identity{UserID: 1, Username: "alice"}
	bobSink, carolSink := newFakeSink(), newFakeSink()
	_, err := h.Join(context.Background(), 1, alice, newFakeSink())
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, Identity{UserID: 2, Username: "bob"}, bobSink)
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 1, Identity{UserID: 3, Username: "carol"}, carolSink)
	require.NoError(t, err)

	// carol 的出口不再接收，模拟写缓冲满时 Send 返回 false
	carolSink.mu.Lock()
	carolSink.closed = true
	carolSink.mu.Unlock()

	h.Dispatch(1, alice, chatRaw("first"))
	h.Dispatch(1, alice, actionRaw("draw"))

	// 单个收件人投递失败只影响它自己，其他参与者照常收到全部事件
	assert.Len(t, bobSink.eventsOfType(event.KindChatMessage), 1)
	assert.Len(t, bobSink.eventsOfType(event.KindWhiteboardAction), 1)
	assert.Empty(t, carolSink.eventsOfType(event.KindChatMessage))

	// 房间仍然存活，序列号继续推进
	actions, ok := h.SnapshotWhiteboard(1)
	require.True(t, ok)
	require.Len(t, actions, 1)
	assert.Equal(t, uint64(2), actions[0].Seq)
}

func TestActiveParticipantsAndRooms(t *testing.T) {
	h := New(emptyHistoryMock(), new(mocks.BlobRepository), testConfig())
	_, err := h.Join(context.Background(), 1, Identity{UserID: 1, Username: "alice"}, newFakeSink())
	require.NoError(t, err)
	_, err = h.Join(context.Background(), 2, Identity{UserID: 2, Username: "bob"}, newFakeSink())
	require.NoError(t, err)

	assert.Len(t, h.ActiveParticipants(1), 1)
	assert.Empty(t, h.ActiveParticipants(99))
	assert.ElementsMatch(t, []uint{1, 2}, h.ActiveRoomIDs())
}
