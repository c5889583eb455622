package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/event"
)

func TestDecode_ChatMessageDefaultsToText(t *testing.T) {
	in, err := event.Decode([]byte(`{"type":"chat_message","content":"hello"}`))

	require.NoError(t, err)
	assert.Equal(t, event.KindChatMessage, in.Kind)
	require.NotNil(t, in.Chat)
	assert.Equal(t, "hello", in.Chat.Content)
	assert.Equal(t, domain.MessageTypeText, in.Chat.MessageType)
}

func TestDecode_WhiteboardAction(t *testing.T) {
	in, err := event.Decode([]byte(`{"type":"whiteboard_action","action_type":"draw","x":10.5,"y":20,"color":"#fff","brush_size":3,"is_drawing":true}`))

	require.NoError(t, err)
	assert.Equal(t, event.KindWhiteboardAction, in.Kind)
	require.NotNil(t, in.Action)
	assert.Equal(t, domain.ActionDraw, in.Action.ActionType)
	assert.Equal(t, 10.5, in.Action.X)
	assert.True(t, in.Action.IsDrawing)
	assert.NoError(t, in.Validate())
}

func TestDecode_UnknownTypeRejected(t *testing.T) {
	// type 是封闭集合，未知值在解码阶段被拒绝
	_, err := event.Decode([]byte(`{"type":"cursor_teleport"}`))

	require.Error(t, err)
	assert.ErrorIs(t, err, event.ErrUnknownKind)
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	_, err := event.Decode([]byte(`{not json`))

	require.Error(t, err)
	assert.NotErrorIs(t, err, event.ErrUnknownKind)
}

func TestValidate_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty chat content", `{"type":"chat_message","content":""}`},
		{"bad message type", `{"type":"chat_message","content":"x","message_type":"file"}`},
		{"unknown action type", `{"type":"whiteboard_action","action_type":"teleport"}`},
		{"missing file id", `{"type":"file_upload","file_id":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := event.Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Error(t, in.Validate())
		})
	}
}

func TestValidate_PingHasNoPayload(t *testing.T) {
	in, err := event.Decode([]byte(`{"type":"ping"}`))

	require.NoError(t, err)
	assert.Equal(t, event.KindPing, in.Kind)
	assert.NoError(t, in.Validate())
}
